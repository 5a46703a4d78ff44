// Package session drives one user's chat: the active conversation, the
// selected mode and temperature, and every save into the shared history.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/pkg/conversation"
)

var tracer = otel.Tracer("github.com/flemzord/chatgate/internal/session")

// Providers resolves a provider module id. *provider.Registry satisfies it.
type Providers interface {
	Get(id string) (provider.Provider, error)
}

// Observer receives turn outcomes. Used for metrics.
type Observer interface {
	Turn(mode string, err error)
}

type nopObserver struct{}

func (nopObserver) Turn(string, error) {}

// Config holds what every Session of a process shares.
type Config struct {
	History   *history.Store
	Providers Providers
	Modes     *Modes
	Preamble  string
	Logger    *slog.Logger
	Observer  Observer

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Modes == nil {
		c.Modes = DefaultModes()
	}
	if c.Preamble == "" {
		c.Preamble = DefaultPreamble
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.History == nil {
		c.History = history.NewStore(history.StoreConfig{Logger: c.Logger})
	}
}

// Session is the sole owner of its active conversation. All methods are
// safe for concurrent use; mutations are serialized through the turn lock
// and fail fast with ErrTurnInProgress while a reply is streaming.
type Session struct {
	cfg Config

	// turn is held for the duration of any mutation, including a whole Send.
	turn sync.Mutex

	mu          sync.RWMutex
	active      *conversation.Conversation
	mode        Mode
	temperature float64
}

// New returns a Fresh session in the default mode.
func New(cfg Config) *Session {
	cfg.defaults()
	mode := cfg.Modes.Default()
	return &Session{
		cfg:         cfg,
		active:      conversation.New(mode.ID, conversation.Developer(cfg.Preamble)),
		mode:        mode,
		temperature: mode.Temperature,
	}
}

// Active returns a copy of the active conversation.
func (s *Session) Active() *conversation.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Clone()
}

// Mode returns the selected mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Temperature returns the sampling temperature used for the next turn.
func (s *Session) Temperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temperature
}

// History returns the saved conversations, most recent first.
func (s *Session) History() []*conversation.Conversation {
	return s.cfg.History.All()
}

// Modes returns the mode table.
func (s *Session) Modes() []Mode {
	return s.cfg.Modes.List()
}

func (s *Session) lockTurn() error {
	if !s.turn.TryLock() {
		return ErrTurnInProgress
	}
	return nil
}

// StartNew saves the current conversation and begins a fresh one with a new
// id, keeping the preamble and the selected mode.
func (s *Session) StartNew(ctx context.Context) error {
	if err := s.lockTurn(); err != nil {
		return err
	}
	defer s.turn.Unlock()

	s.saveActive(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conversation.New(s.mode.ID, s.active.Preamble())
	return nil
}

// LoadFrom replaces the active conversation with history entry index.
// The current conversation is left untouched when index is out of range.
// A stored mode is matched by id or label; one missing from the table
// keeps the current mode.
func (s *Session) LoadFrom(index int) error {
	if err := s.lockTurn(); err != nil {
		return err
	}
	defer s.turn.Unlock()

	entry, err := s.cfg.History.Get(index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.EnsurePreamble(s.active.Preamble())
	if mode, ok := s.cfg.Modes.Resolve(entry.Mode); ok {
		if mode.ID != s.mode.ID {
			s.mode = mode
			s.temperature = mode.Temperature
		}
		entry.Mode = mode.ID
	} else {
		s.cfg.Logger.Warn("loaded conversation has unknown mode, keeping current",
			"conversation", entry.ID, "mode", entry.Mode, "current", s.mode.ID)
		entry.Mode = s.mode.ID
	}
	s.active = entry
	return nil
}

// RecordTurn appends a completed user/assistant exchange and saves it.
func (s *Session) RecordTurn(ctx context.Context, userText, assistantText string) error {
	if err := s.lockTurn(); err != nil {
		return err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	s.active.Append(conversation.User(userText), conversation.Assistant(assistantText))
	s.mu.Unlock()

	s.saveActive(ctx)
	return nil
}

// Clear saves the current conversation, then drops its turns while keeping
// the same id. A later turn therefore overwrites the saved entry.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.lockTurn(); err != nil {
		return err
	}
	defer s.turn.Unlock()

	s.saveActive(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.Reset()
	return nil
}

// Delete removes history entry index. The active conversation is unaffected.
func (s *Session) Delete(ctx context.Context, index int) error {
	return s.cfg.History.Remove(ctx, index)
}

// SetMode selects a mode for subsequent turns and resets the temperature to
// the mode's default.
func (s *Session) SetMode(id string) error {
	mode, ok := s.cfg.Modes.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, id)
	}
	if err := s.lockTurn(); err != nil {
		return err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.temperature = mode.Temperature
	s.active.Mode = mode.ID
	return nil
}

// SetTemperature overrides the temperature until the next mode switch.
func (s *Session) SetTemperature(t float64) error {
	if err := checkTemperature(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature = t
	return nil
}

// Send runs one streamed turn. The user message is appended first; every
// non-empty fragment is passed to sink as it arrives; the trimmed reply is
// appended and saved once the stream completes. On failure the user message
// stays in the conversation and the error is returned. Nothing is retried.
func (s *Session) Send(ctx context.Context, text string, sink func(string)) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if err := s.lockTurn(); err != nil {
		return "", err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	s.active.Append(conversation.User(text))
	mode := s.mode
	temperature := s.temperature
	msgs := slices.Clone(s.active.Messages)
	convID := s.active.ID
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "session.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.mode", mode.ID),
		attribute.String("chat.model", mode.Model),
		attribute.String("chat.conversation", convID),
		attribute.Int("chat.messages", len(msgs)),
	)

	reply, err := s.complete(ctx, mode, temperature, msgs, sink)
	s.cfg.Observer.Turn(mode.ID, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.cfg.Logger.Warn("completion failed",
			"mode", mode.ID, "model", mode.Model, "conversation", convID, "error", err)
		return "", err
	}

	reply = strings.TrimSpace(reply)
	s.mu.Lock()
	s.active.Append(conversation.Assistant(reply))
	s.mu.Unlock()

	// The reply is complete; a disconnect must not cancel its save.
	s.saveActive(context.WithoutCancel(ctx))
	span.SetAttributes(attribute.Int("chat.reply_runes", len([]rune(reply))))
	return reply, nil
}

func (s *Session) complete(
	ctx context.Context,
	mode Mode,
	temperature float64,
	msgs []conversation.Message,
	sink func(string),
) (string, error) {
	if s.cfg.Providers == nil {
		return "", provider.ErrNoProvider
	}
	p, err := s.cfg.Providers.Get(mode.Provider)
	if err != nil {
		return "", err
	}
	ch, err := p.Stream(ctx, provider.Request{
		Model:       mode.Model,
		Messages:    msgs,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return provider.Collect(ctx, ch, sink)
}

// saveActive upserts a timestamped snapshot of the active conversation.
// Must be called with the turn lock held.
func (s *Session) saveActive(ctx context.Context) {
	s.mu.RLock()
	snap := s.active.Snapshot(s.cfg.Now())
	s.mu.RUnlock()
	s.cfg.History.Upsert(ctx, snap)
}
