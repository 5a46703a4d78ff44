package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/chatgate/internal/export"
	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
	"github.com/flemzord/chatgate/pkg/conversation"
)

// maxBodyBytes bounds the small JSON bodies of the API.
const maxBodyBytes = 4 << 10

// modeJSON is a mode as shown in the selector.
type modeJSON struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description,omitempty"`
}

// historyJSON is one line of the history list.
type historyJSON struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Mode    string `json:"mode"`
	Preview string `json:"preview"`
	Time    string `json:"time"`
}

// stateJSON is everything the page renders.
type stateJSON struct {
	ConversationID string                 `json:"conversation_id"`
	Mode           string                 `json:"mode"`
	Temperature    float64                `json:"temperature"`
	Modes          []modeJSON             `json:"modes"`
	Messages       []conversation.Message `json:"messages"`
	History        []historyJSON          `json:"history"`
	CanExport      bool                   `json:"can_export"`
}

func buildState(s *session.Session) stateJSON {
	active := s.Active()
	visible := active.Visible()
	state := stateJSON{
		ConversationID: active.ID,
		Mode:           s.Mode().ID,
		Temperature:    s.Temperature(),
		Messages:       visible,
		CanExport:      len(visible) > 0,
	}
	if state.Messages == nil {
		state.Messages = []conversation.Message{}
	}
	for _, m := range s.Modes() {
		state.Modes = append(state.Modes, modeJSON{
			ID:          m.ID,
			Label:       m.Label,
			Model:       m.Model,
			Temperature: m.Temperature,
			Description: m.Description,
		})
	}
	state.History = []historyJSON{}
	for i, c := range s.History() {
		state.History = append(state.History, historyJSON{
			Index:   i,
			ID:      c.ID,
			Mode:    c.Mode,
			Preview: c.Preview,
			Time:    c.Timestamp.Format("15:04"),
		})
	}
	return state
}

func (g *Gateway) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildState(sessionFrom(r.Context())))
	}
}

// mutate runs op against the request's session and answers with the new
// state, or with the mapped error.
func (g *Gateway) mutate(op func(r *http.Request, s *session.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		if err := op(r, s); err != nil {
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, buildState(s))
	}
}

func (g *Gateway) handleNewChat() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		return s.StartNew(r.Context())
	})
}

func (g *Gateway) handleClearChat() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		return s.Clear(r.Context())
	})
}

func (g *Gateway) handleSetMode() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := decodeBody(r, &body); err != nil {
			return err
		}
		return s.SetMode(body.Mode)
	})
}

func (g *Gateway) handleSetTemperature() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		var body struct {
			Temperature *float64 `json:"temperature"`
		}
		if err := decodeBody(r, &body); err != nil {
			return err
		}
		if body.Temperature == nil {
			return errBadRequest("temperature is required")
		}
		return s.SetTemperature(*body.Temperature)
	})
}

func (g *Gateway) handleLoadHistory() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		index, err := indexParam(r)
		if err != nil {
			return err
		}
		return s.LoadFrom(index)
	})
}

func (g *Gateway) handleDeleteHistory() http.HandlerFunc {
	return g.mutate(func(r *http.Request, s *session.Session) error {
		index, err := indexParam(r)
		if err != nil {
			return err
		}
		if err := s.Delete(r.Context(), index); err != nil {
			return err
		}
		g.emit(r, security.EventHistoryDrop, tokenFrom(r.Context()), "index "+strconv.Itoa(index))
		return nil
	})
}

// handleExport renders the active conversation. The PDF is buffered so a
// rendering failure still yields a clean error response.
func (g *Gateway) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := sessionFrom(r.Context()).Active()

		var buf bytes.Buffer
		if err := g.exporter.Write(&buf, active); err != nil {
			if errors.Is(err, export.ErrEmpty) {
				writeJSONError(w, http.StatusConflict, err.Error())
				return
			}
			g.logger.Error("export failed", "conversation", active.ID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "export failed")
			return
		}

		g.emit(r, security.EventExport, tokenFrom(r.Context()), active.ID)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(g.now())+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = buf.WriteTo(w)
	}
}

// errBadRequest marks a malformed request.
type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func indexParam(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, errBadRequest("index must be an integer")
	}
	return index, nil
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var bad errBadRequest
	switch {
	case errors.As(err, &bad),
		errors.Is(err, session.ErrUnknownMode),
		errors.Is(err, session.ErrTemperatureRange),
		errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
