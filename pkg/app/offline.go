package app

import (
	"context"
	"log/slog"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/export"
	"github.com/flemzord/chatgate/internal/history"
)

// OfflineHistory is the persisted history opened outside the server, for
// the history CLI commands.
type OfflineHistory struct {
	Store    *history.Store
	Exporter *export.Exporter

	app *core.App
}

// OpenHistory loads only the history module of the configuration at
// cfgPath (or the default JSON snapshot when none is configured) and reads
// the saved conversations.
func OpenHistory(ctx context.Context, cfgPath, dataDir string, logger *slog.Logger) (*OfflineHistory, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	ids := config.ResolveNamespace(cfg, "history")
	a := core.NewApp(appCtx)
	if err := a.LoadModules(ids); err != nil {
		return nil, err
	}

	persister, ok := core.Lookup[history.Persister](appCtx, history.ServiceName)
	if !ok {
		persister = history.NewFilePersister(history.DefaultPath(), logger)
	}
	store := history.NewStore(history.StoreConfig{
		MaxChats:  cfg.Chat.MaxChats,
		Persister: persister,
		Logger:    logger,
	})
	store.Load(ctx)

	return &OfflineHistory{
		Store: store,
		Exporter: &export.Exporter{
			Title:   cfg.Chat.TranscriptTitle,
			FontDir: cfg.Chat.FontDir,
			Logger:  logger,
		},
		app: a,
	}, nil
}

// Close releases the history module (database handles).
func (h *OfflineHistory) Close() {
	h.app.Close()
}
