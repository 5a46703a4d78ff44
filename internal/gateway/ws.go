package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
)

// Frame types exchanged over /ws/chat.
const (
	frameSend  = "send"
	frameDelta = "delta"
	frameDone  = "done"
	frameError = "error"
)

const errSessionExpired = "session expired, log in again"

// inboundFrame is what the page sends.
type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// outboundFrame is what the server streams back.
type outboundFrame struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Error string     `json:"error,omitempty"`
	Hint  string     `json:"hint,omitempty"`
	State *stateJSON `json:"state,omitempty"`
}

// handleChatSocket upgrades to a websocket and runs turns as "send" frames
// arrive. Each turn is bound to the connection: closing the page cancels
// the completion in flight. A send while a turn is streaming is rejected.
func (g *Gateway) handleChatSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r.Context())
		token := tokenFrom(r.Context())

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Debug("websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var turns sync.WaitGroup
		defer turns.Wait()

		for {
			var in inboundFrame
			if err := wsjson.Read(ctx, conn, &in); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					g.logger.Debug("websocket read error", "error", err)
				}
				cancel()
				return
			}
			if in.Type != frameSend {
				g.send(ctx, conn, outboundFrame{Type: frameError, Error: "unknown frame type " + in.Type})
				continue
			}
			// Chatting over the socket counts as activity for pruning.
			if _, ok := g.sessions.Get(token); !ok {
				g.send(ctx, conn, outboundFrame{Type: frameError, Error: errSessionExpired})
				cancel()
				return
			}
			if err := g.admit(r, token, in.Text); err != nil {
				g.send(ctx, conn, outboundFrame{Type: frameError, Error: err.Error()})
				continue
			}

			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				g.runTurn(ctx, conn, sess, text)
			}(in.Text)
		}
	}
}

// admit applies the size and rate limits to one message.
func (g *Gateway) admit(r *http.Request, token, text string) error {
	if err := security.ValidateMessageSize(text, g.maxBytes); err != nil {
		return err
	}
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Allow(token); err != nil {
		g.emit(r, security.EventRateLimit, token, "")
		return errors.New("too many messages, slow down")
	}
	return nil
}

func (g *Gateway) runTurn(ctx context.Context, conn *websocket.Conn, sess *session.Session, text string) {
	reply, err := sess.Send(ctx, text, func(delta string) {
		g.send(ctx, conn, outboundFrame{Type: frameDelta, Text: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		frame := outboundFrame{Type: frameError, Error: err.Error()}
		if !errors.Is(err, session.ErrTurnInProgress) && !errors.Is(err, session.ErrEmptyMessage) {
			frame.Hint = session.ModelErrorHint
			state := buildState(sess)
			frame.State = &state
		}
		g.send(ctx, conn, frame)
		return
	}
	state := buildState(sess)
	g.send(ctx, conn, outboundFrame{Type: frameDone, Text: reply, State: &state})
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, frame outboundFrame) {
	if err := wsjson.Write(ctx, conn, frame); err != nil && ctx.Err() == nil {
		g.logger.Debug("websocket write failed", "type", frame.Type, "error", err)
	}
}
