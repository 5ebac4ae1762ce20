// Package todoserver wires configuration, storage, the session manager and
// the transports into one runnable application.
package todoserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"todo-mcp/go-backend/internal/adapters/rpc"
	"todo-mcp/go-backend/internal/api"
	"todo-mcp/go-backend/internal/config"
	"todo-mcp/go-backend/internal/domains/todo/registry"
	"todo-mcp/go-backend/internal/domains/todo/usecase"
	"todo-mcp/go-backend/internal/platform/metrics"
	"todo-mcp/go-backend/internal/platform/privacylog"
	"todo-mcp/go-backend/internal/session"
	"todo-mcp/go-backend/internal/storage"
	"todo-mcp/go-backend/internal/uisnapshot"
)

const (
	ServerName       = "todo-mcp"
	metricsNamespace = "todo_mcp"
)

type Options struct {
	ConfigPath string
	// Addr overrides the configured listen address when set.
	Addr    string
	Version string
	// LogOutput receives log lines. The stdio transport owns stdout, so
	// callers pass stderr there.
	LogOutput io.Writer
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Sessions *session.Manager
	Metrics  *metrics.Collector
	HTTP     *api.Server
}

func Build(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	return BuildWithConfig(cfg, opts)
}

func BuildWithConfig(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger, err := privacylog.NewLogger(opts.LogOutput, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(metricsNamespace, knownMethods()...)
	}

	svc := usecase.NewService(usecase.ServiceDeps{Store: storage.NewRecordStore()})
	sessions := session.NewManager(svc, uisnapshot.NewRenderer(), session.Config{
		ServerName:      ServerName,
		ServerVersion:   opts.Version,
		AttachSnapshots: cfg.UI.AttachToMutations,
		IdleTTL:         cfg.Session.IdleTTL,
		Logger:          logger,
		Metrics:         collector,
		RPCMetrics:      collector,
	})
	httpServer := api.NewServer(sessions, api.Options{
		Addr:               cfg.Server.Addr,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		StreamMaxGlobal:    cfg.Stream.MaxGlobal,
		StreamMaxPerClient: cfg.Stream.MaxPerClient,
		RateLimit: api.RateLimitOptions{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
		},
		ServerName:    ServerName,
		ServerVersion: opts.Version,
		Logger:        logger,
		Metrics:       collector,
	})
	return &App{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		Metrics:  collector,
		HTTP:     httpServer,
	}, nil
}

// RunHTTP serves until ctx is cancelled.
func (a *App) RunHTTP(ctx context.Context) error {
	a.Logger.Info("todo-mcp starting", "addr", a.Config.Server.Addr, "metrics", a.Metrics != nil)
	err := a.HTTP.Run(ctx)
	a.Logger.Info("todo-mcp stopped")
	return err
}

// RunStdio serves a single session over in/out until EOF or cancellation.
func (a *App) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return api.ServeStdio(ctx, a.Sessions, in, out, a.Logger)
}

func knownMethods() []string {
	return []string{
		rpc.MethodInitialize,
		rpc.MethodInitialized,
		rpc.MethodPing,
		rpc.MethodToolsList,
		rpc.MethodToolsCall,
		rpc.MethodResourcesList,
		rpc.MethodResourcesRead,
		registry.OpListRecords,
		registry.OpCreateRecord,
		registry.OpUpdateRecord,
		registry.OpDeleteRecord,
		registry.OpRenderUI,
	}
}
