// Package gateway serves the chat page, its JSON API and the streaming
// websocket behind a shared passcode. It binds to loopback by default and
// follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/export"
	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
)

// ModuleID is the gateway's module id.
const ModuleID = "gateway.http"

// Service names the gateway resolves at Start.
const (
	SessionsService = "chat.sessions"
	HistoryService  = "history.store"
	ExporterService = "chat.exporter"
	AuditService    = "security.audit"
	LimiterService  = "security.ratelimiter"
	LimitsService   = "config.limits"
	MetricsService  = "gateway.metrics"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	passcode  *security.Passcode
	startedAt time.Time
	now       func() time.Time

	// Resolved lazily at Start() via service registry.
	sessions  *session.Store
	history   *history.Store
	persister history.Persister
	exporter  *export.Exporter
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	maxBytes  int
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Metrics are created here so the
// application can hand them to the history store and the sessions before
// Start.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.passcode = security.NewPasscode(g.config.Passcode)
	g.now = time.Now

	ctx.RegisterService(MetricsService, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if g.config.Passcode == "" {
		return errors.New("gateway: passcode is required")
	}
	return nil
}

// SessionTTL is the idle lifetime of a browser session.
func (g *Gateway) SessionTTL() time.Duration {
	return g.config.SessionTTL
}

// Secrets implements the redactor hook: the passcode never reaches the logs.
func (g *Gateway) Secrets() []string {
	return []string{g.config.Passcode}
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}
	g.startedAt = g.now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadHeaderTimeout,
		IdleTimeout:       g.config.IdleTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds the services registered by the application. Only the
// session store is mandatory.
func (g *Gateway) resolve() error {
	sessions, ok := core.Lookup[*session.Store](g.appCtx, SessionsService)
	if !ok {
		return errors.New("gateway: " + SessionsService + " service not registered")
	}
	g.sessions = sessions
	g.metrics.WatchSessions(sessions.Len)

	g.history, _ = core.Lookup[*history.Store](g.appCtx, HistoryService)
	g.persister, _ = core.Lookup[history.Persister](g.appCtx, history.ServiceName)
	g.audit, _ = core.Lookup[*security.AuditLogger](g.appCtx, AuditService)
	g.limiter, _ = core.Lookup[*security.RateLimiter](g.appCtx, LimiterService)

	g.exporter, ok = core.Lookup[*export.Exporter](g.appCtx, ExporterService)
	if !ok {
		g.exporter = &export.Exporter{Logger: g.logger}
	}
	if limits, ok := core.Lookup[config.LimitsConfig](g.appCtx, LimitsService); ok {
		g.maxBytes = limits.MaxMessageBytes
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
