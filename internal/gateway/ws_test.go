package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/internal/provider/providertest"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
	"github.com/flemzord/chatgate/pkg/conversation"
)

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Cookie", DefaultCookieName+"="+token)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws/chat", &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil collects frames until one of type stop arrives.
func readUntil(t *testing.T, conn *websocket.Conn, stop string) []outboundFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []outboundFrame
	for {
		var f outboundFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v (got %+v)", err, frames)
		}
		frames = append(frames, f)
		if f.Type == stop {
			return frames
		}
	}
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, inboundFrame{Type: frameSend, Text: text}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestChatSocket_StreamsReply(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, token := env.login(t)
	conn := env.dial(t, token)

	sendText(t, conn, "Hi")
	frames := readUntil(t, conn, frameDone)

	var deltas []string
	for _, f := range frames[:len(frames)-1] {
		if f.Type != frameDelta {
			t.Fatalf("unexpected frame before done: %+v", f)
		}
		deltas = append(deltas, f.Text)
	}
	if strings.Join(deltas, "") != "Hello there" {
		t.Errorf("deltas = %q", deltas)
	}

	done := frames[len(frames)-1]
	if done.Text != "Hello there" {
		t.Errorf("done text = %q", done.Text)
	}
	if done.State == nil || len(done.State.Messages) != 2 || len(done.State.History) != 1 {
		t.Fatalf("done state = %+v", done.State)
	}
	if !done.State.CanExport {
		t.Error("export should be offered after a turn")
	}

	req := env.mock.Request()
	if req.Model != "gpt-5-mini" {
		t.Errorf("model = %q, want the fast mode's", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != conversation.RoleDeveloper {
		t.Errorf("request messages = %+v", req.Messages)
	}
}

func TestChatSocket_CompletionError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.mock.StreamFunc = func(context.Context, provider.Request) (<-chan provider.Delta, error) {
		return nil, provider.ErrRateLimit
	}
	_, token := env.login(t)
	conn := env.dial(t, token)

	sendText(t, conn, "Hi")
	frames := readUntil(t, conn, frameError)
	f := frames[len(frames)-1]

	if !strings.Contains(f.Error, "rate limit") {
		t.Errorf("error = %q", f.Error)
	}
	if f.Hint != session.ModelErrorHint {
		t.Errorf("hint = %q", f.Hint)
	}
	if f.State == nil || len(f.State.Messages) != 1 || f.State.Messages[0].Content != "Hi" {
		t.Errorf("user message should be kept: %+v", f.State)
	}
}

func TestChatSocket_Limits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t,
		withLimiter(security.NewRateLimiter(1, time.Minute)),
		withLimits(config.LimitsConfig{MaxMessageBytes: 16}),
	)
	var calls atomic.Int32
	env.mock.StreamFunc = func(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
		calls.Add(1)
		return providertest.Reply("ok")(ctx, req)
	}
	_, token := env.login(t)
	conn := env.dial(t, token)

	sendText(t, conn, strings.Repeat("x", 17))
	f := readUntil(t, conn, frameError)[0]
	if !strings.Contains(f.Error, "maximum size") {
		t.Errorf("oversize error = %q", f.Error)
	}
	if f.Hint != "" {
		t.Errorf("limit errors carry no model hint, got %q", f.Hint)
	}

	sendText(t, conn, "first")
	readUntil(t, conn, frameDone)

	sendText(t, conn, "second")
	f = readUntil(t, conn, frameError)[0]
	if !strings.Contains(f.Error, "too many") {
		t.Errorf("rate limit error = %q", f.Error)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("stream calls = %d, want 1", n)
	}
}

func TestChatSocket_UnknownFrame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, token := env.login(t)
	conn := env.dial(t, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, inboundFrame{Type: "shout"}); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, conn, frameError)[0]
	if !strings.Contains(f.Error, "shout") {
		t.Errorf("error = %q", f.Error)
	}
}

func TestChatSocket_DisconnectCancelsTurn(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	env.mock.StreamFunc = func(ctx context.Context, _ provider.Request) (<-chan provider.Delta, error) {
		ch := make(chan provider.Delta)
		go func() {
			close(started)
			<-ctx.Done()
			close(cancelled)
			close(ch)
		}()
		return ch, nil
	}
	_, token := env.login(t)
	conn := env.dial(t, token)

	sendText(t, conn, "long question")
	<-started
	_ = conn.Close(websocket.StatusGoingAway, "page closed")

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("completion was not cancelled on disconnect")
	}
}

func TestChatSocket_SendKeepsSessionActive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, token := env.login(t)
	conn := env.dial(t, token)

	// The upgrade request was the last HTTP activity.
	time.Sleep(100 * time.Millisecond)
	mark := time.Now()
	sendText(t, conn, "Hi")
	readUntil(t, conn, frameDone)

	if n := env.sessions.Prune(time.Since(mark) + 50*time.Millisecond); n != 0 {
		t.Fatalf("Prune removed %d sessions, want the chatting one kept", n)
	}
	if env.sessions.Len() != 1 {
		t.Errorf("Len = %d, want 1", env.sessions.Len())
	}
}

func TestChatSocket_ExpiredSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, token := env.login(t)
	conn := env.dial(t, token)

	env.sessions.Delete(token)
	sendText(t, conn, "Hi")
	frames := readUntil(t, conn, frameError)
	if got := frames[len(frames)-1].Error; got != errSessionExpired {
		t.Errorf("error = %q, want %q", got, errSessionExpired)
	}
	if env.mock.Calls() != 0 {
		t.Errorf("provider called %d times for an expired session", env.mock.Calls())
	}
}
