package gateway

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type loginPage struct {
	Error string
}

func (g *Gateway) renderLogin(w http.ResponseWriter, status int, msg string) {
	g.render(w, status, "login.html", loginPage{Error: msg})
}

func (g *Gateway) handleChatPage() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.render(w, http.StatusOK, "chat.html", nil)
	}
}

// render executes into a buffer first so a template error never leaves a
// half-written page behind.
func (g *Gateway) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		g.logger.Error("render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
