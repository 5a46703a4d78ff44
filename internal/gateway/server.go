package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public: no session required.
	r.Get("/health", g.handleHealth())
	if *g.config.Metrics {
		r.Handle("/metrics", g.metrics.Handler())
	}
	r.Get("/login", g.handleLoginPage())
	r.Post("/login", g.handleLogin())

	// Pages redirect to the login form without a session.
	r.Group(func(r chi.Router) {
		r.Use(g.requireSession(true))
		r.Get("/", g.handleChatPage())
		r.Post("/logout", g.handleLogout())
	})

	// API and websocket answer 401 without a session.
	r.Group(func(r chi.Router) {
		r.Use(g.requireSession(false))
		r.Get("/ws/chat", g.handleChatSocket())
		r.Route("/api", func(r chi.Router) {
			r.Get("/state", g.handleState())
			r.Post("/chat/new", g.handleNewChat())
			r.Post("/chat/clear", g.handleClearChat())
			r.Put("/mode", g.handleSetMode())
			r.Put("/temperature", g.handleSetTemperature())
			r.Post("/history/{index}/load", g.handleLoadHistory())
			r.Delete("/history/{index}", g.handleDeleteHistory())
			r.Get("/export.pdf", g.handleExport())
		})
	})

	return r
}
