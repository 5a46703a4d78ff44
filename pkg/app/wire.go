package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/cron"
	"github.com/flemzord/chatgate/internal/export"
	"github.com/flemzord/chatgate/internal/gateway"
	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
)

// defaultSessionTTL applies when no gateway module is configured.
const defaultSessionTTL = 24 * time.Hour

// schedulerModule wraps a *cron.Scheduler to satisfy core.Module,
// core.Starter, and core.Stopper, so the scheduler participates in the App
// lifecycle.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron.scheduler"}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }

// Runtime is what wire builds around the loaded modules.
type Runtime struct {
	Providers *provider.Registry
	History   *history.Store
	Sessions  *session.Store
	Limiter   *security.RateLimiter
	Scheduler *cron.Scheduler
}

type wireParams struct {
	app      *core.App
	appCtx   *core.AppContext
	cfg      *config.Config
	ids      []string
	logger   *slog.Logger
	audit    *security.AuditLogger
	redactor *security.Redactor
}

// wire collects providers and secrets from the loaded modules, builds the
// history store, the session store and the scheduler, and registers them
// for the gateway to discover. Must be called after LoadModules and before
// Start.
func wire(ctx context.Context, p wireParams) (*Runtime, error) {
	rt := &Runtime{Providers: provider.NewRegistry()}

	for _, id := range p.ids {
		mod, ok := p.app.Module(id)
		if !ok {
			continue
		}
		if s, ok := mod.(interface{ Secrets() []string }); ok {
			p.redactor.AddLiterals(s.Secrets()...)
		}
		if prov, ok := mod.(provider.Provider); ok {
			rt.Providers.Register(id, prov)
			p.logger.Info("wire: registered provider", "provider", id, "model", prov.ModelName())
		}
	}
	if len(rt.Providers.IDs()) == 0 {
		return nil, fmt.Errorf("wire: at least one provider module is required")
	}
	p.appCtx.RegisterService(provider.ServiceName, rt.Providers)

	modes, err := p.cfg.ModeTable()
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	metrics, hasMetrics := core.Lookup[*gateway.Metrics](p.appCtx, gateway.MetricsService)
	var (
		historyObserver history.Observer
		sessionObserver session.Observer
	)
	if hasMetrics {
		historyObserver = metrics
		sessionObserver = metrics
	}

	persister, ok := core.Lookup[history.Persister](p.appCtx, history.ServiceName)
	if !ok {
		fp := history.NewFilePersister(history.DefaultPath(), p.logger.With("module", "history.file"))
		p.logger.Info("wire: no history module configured, using JSON snapshot", "path", fp.Path())
		persister = fp
		p.appCtx.RegisterService(history.ServiceName, persister)
	}
	rt.History = history.NewStore(history.StoreConfig{
		MaxChats:  p.cfg.Chat.MaxChats,
		Persister: persister,
		Logger:    p.logger.With("component", "history"),
		Observer:  historyObserver,
	})
	loaded := rt.History.Load(ctx)
	p.logger.Info("wire: history loaded", "entries", loaded)

	sessionCfg := session.Config{
		History:   rt.History,
		Providers: rt.Providers,
		Modes:     modes,
		Preamble:  p.cfg.Chat.Preamble,
		Logger:    p.logger.With("component", "session"),
		Observer:  sessionObserver,
	}
	rt.Sessions = session.NewStore(func() *session.Session { return session.New(sessionCfg) })
	rt.Sessions.SetMaxSessions(p.cfg.Limits.MaxSessions)

	limiter := security.NewRateLimiter(p.cfg.Limits.MessagesPerMin, time.Minute)
	rt.Limiter = limiter
	exporter := &export.Exporter{
		Title:   p.cfg.Chat.TranscriptTitle,
		FontDir: p.cfg.Chat.FontDir,
		Logger:  p.logger.With("component", "export"),
	}

	p.appCtx.RegisterService(gateway.SessionsService, rt.Sessions)
	p.appCtx.RegisterService(gateway.HistoryService, rt.History)
	p.appCtx.RegisterService(gateway.ExporterService, exporter)
	p.appCtx.RegisterService(gateway.AuditService, p.audit)
	p.appCtx.RegisterService(gateway.LimiterService, limiter)
	p.appCtx.RegisterService(gateway.LimitsService, p.cfg.Limits)

	var observer cron.Observer
	if hasMetrics {
		observer = metrics
	}
	rt.Scheduler = cron.NewScheduler(p.logger.With("component", "cron"), observer)
	jobs := []cron.Job{
		&cron.SessionPruneJob{
			Store:   rt.Sessions,
			Limiter: limiter,
			MaxIdle: sessionTTL(p.app),
			Logger:  p.logger,
			OnPrune: func(pruned, remaining int) {
				if pruned == 0 {
					return
				}
				p.audit.Log(security.AuditEvent{
					Type:     security.EventSessionPrune,
					Detail:   strconv.Itoa(pruned) + " idle sessions dropped",
					Metadata: map[string]string{"remaining": strconv.Itoa(remaining)},
				})
			},
		},
		&cron.HistoryResyncJob{History: rt.History, Logger: p.logger},
	}
	for _, j := range jobs {
		if err := rt.Scheduler.Add(j); err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
	}
	p.app.AppendModule("cron.scheduler", &schedulerModule{scheduler: rt.Scheduler})

	if _, ok := p.app.Module(gateway.ModuleID); !ok {
		p.logger.Warn("wire: gateway.http is not configured, the chat page is not served")
	}
	return rt, nil
}

// sessionTTL reads the idle lifetime from the gateway module when loaded.
func sessionTTL(app *core.App) time.Duration {
	if mod, ok := app.Module(gateway.ModuleID); ok {
		if g, ok := mod.(interface{ SessionTTL() time.Duration }); ok {
			return g.SessionTTL()
		}
	}
	return defaultSessionTTL
}
