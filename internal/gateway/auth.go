package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	tokenKey
)

// sessionFrom returns the browser session attached by requireSession.
func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// requireSession resolves the session cookie. Pages are redirected to the
// login form, everything else gets a 401.
func (g *Gateway) requireSession(page bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *session.Session
			cookie, err := r.Cookie(g.config.CookieName)
			if err == nil {
				sess, _ = g.sessions.Get(cookie.Value)
			}
			if sess == nil {
				if page {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				writeJSONError(w, http.StatusUnauthorized, "login required")
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			ctx = context.WithValue(ctx, tokenKey, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// handleLoginPage renders the passcode form. A visitor who already holds a
// live session goes straight to the chat.
func (g *Gateway) handleLoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(g.config.CookieName); err == nil {
			if _, ok := g.sessions.Get(cookie.Value); ok {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
		}
		g.renderLogin(w, http.StatusOK, "")
	}
}

// handleLogin checks the passcode. A mismatch re-renders the form; there is
// no lockout.
func (g *Gateway) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			g.renderLogin(w, http.StatusBadRequest, "Invalid form submission.")
			return
		}
		if !g.passcode.Check(r.PostFormValue("passcode")) {
			g.metrics.LoginAttempt(false)
			g.emit(r, security.EventLoginFailure, "", "wrong passcode")
			g.renderLogin(w, http.StatusUnauthorized, "Wrong passcode. Try again.")
			return
		}

		entry, err := g.sessions.Create()
		if err != nil {
			status := http.StatusInternalServerError
			msg := "Could not start a session."
			if errors.Is(err, session.ErrStoreFull) {
				status = http.StatusServiceUnavailable
				msg = "Too many people are chatting right now. Try again later."
			}
			g.logger.Warn("login: session not created", "error", err)
			g.renderLogin(w, status, msg)
			return
		}

		g.metrics.LoginAttempt(true)
		g.emit(r, security.EventLoginSuccess, entry.Token, "")
		http.SetCookie(w, g.cookie(entry.Token, int(g.config.SessionTTL.Seconds())))
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// handleLogout drops the session and clears the cookie.
func (g *Gateway) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r.Context())
		g.sessions.Delete(token)
		if g.limiter != nil {
			g.limiter.Forget(token)
		}
		g.emit(r, security.EventLogout, token, "")
		http.SetCookie(w, g.cookie("", -1))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (g *Gateway) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     g.config.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   g.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// emit logs an audit event if an audit logger is available.
func (g *Gateway) emit(r *http.Request, eventType security.EventType, token, detail string) {
	g.audit.Log(security.AuditEvent{
		Type:       eventType,
		Session:    token,
		RemoteAddr: r.RemoteAddr,
		Detail:     detail,
	})
}
