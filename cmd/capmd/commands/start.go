package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/internal/telemetry"
	"github.com/capmd/capmd/pkg/api"
	"github.com/capmd/capmd/pkg/appendlog"
	"github.com/capmd/capmd/pkg/audit"
	"github.com/capmd/capmd/pkg/capability"
	"github.com/capmd/capmd/pkg/clientip"
	"github.com/capmd/capmd/pkg/config"
	"github.com/capmd/capmd/pkg/export"
	"github.com/capmd/capmd/pkg/keys"
	"github.com/capmd/capmd/pkg/orchestration"
	"github.com/capmd/capmd/pkg/ratelimit"
	"github.com/capmd/capmd/pkg/search"
	"github.com/capmd/capmd/pkg/ssrf"
	"github.com/capmd/capmd/pkg/store"
	"github.com/capmd/capmd/pkg/webhook"
	"github.com/capmd/capmd/pkg/workspace"
)

// sweepInterval is how often expired soft-deletes and stale idempotency
// records are purged.
const sweepInterval = time.Hour

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the capmd server",
	Long: `Start the capmd server with the specified configuration.

The server runs in the foreground until it receives SIGINT or SIGTERM,
then shuts down gracefully. Run it under a process supervisor for
daemon-style deployments.

Examples:
  # Start with the default config location
  capmd start

  # Start with a custom config file
  capmd start --config /etc/capmd/config.yaml

  # Start with environment variable overrides
  CAPMD_LOGGING_LEVEL=DEBUG capmd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "capmd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "capmd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", logger.Err(err))
		}
	}()

	exportSvc, err := buildExportService(ctx, st, cfg)
	if err != nil {
		return err
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		// Owner sessions still work, but won't survive a restart.
		logger.Warn("auth.jwt_secret not set, generating an ephemeral secret (run 'capmd init' to persist one)")
		jwtSecret = keys.Generate(48)
	}
	jwtSvc, err := api.NewJWTService(api.JWTConfig{
		Secret:          jwtSecret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session signing: %w", err)
	}

	auditQueue := audit.NewQueue(st, audit.Config{
		DropForeignKeyViolations: cfg.TestMode,
	})
	auditQueue.Start()

	queue, err := webhook.OpenQueue(cfg.Webhooks.QueuePath)
	if err != nil {
		return fmt.Errorf("failed to open webhook queue: %w", err)
	}
	ssrfOpts := ssrf.Options{AllowHTTP: cfg.Server.AllowHTTPWebhooks}
	dispatcher := webhook.NewDispatcher(st, queue, ssrfOpts)
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start webhook dispatcher: %w", err)
	}

	rateCfg := cfg.RateLimit
	if cfg.TestMode {
		rateCfg.Disabled = true
	}

	svc := api.Services{
		Store:    st,
		Resolver: capability.NewResolver(st),
		Workspace: workspace.NewService(st, workspace.Config{
			MaxFileSize: cfg.Limits.MaxFileSize.Int64(),
			MaxStorage:  cfg.Limits.MaxWorkspaceStorageBytes.Int64(),
		}),
		Appends:       appendlog.NewEngine(st),
		Orchestration: orchestration.NewService(st),
		Search:        search.NewService(st),
		Export:        exportSvc,
		Audit:         auditQueue,
		Webhooks:      dispatcher,
		Limiter:       ratelimit.New(rateCfg),
		JWT:           jwtSvc,
	}

	server := api.NewServer(api.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		BaseURL: cfg.Server.BaseURL,
		Proxy: clientip.Policy{
			TrustProxyHeaders:  cfg.Server.Proxy.TrustHeaders,
			TrustSingleXFF:     cfg.Server.Proxy.TrustSingleXFF,
			SharedSecretHeader: cfg.Server.Proxy.SharedSecretHeader,
			SharedSecret:       cfg.Server.Proxy.SharedSecret,
		},
		WebhookSSRF:    ssrfOpts,
		MetricsEnabled: cfg.Metrics.Enabled,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	}, svc)

	go runSweeper(ctx, st)

	serveErr := server.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("webhook dispatcher shutdown error", logger.Err(err))
	}
	if err := queue.Close(); err != nil {
		logger.Error("webhook queue close error", logger.Err(err))
	}
	if err := auditQueue.Shutdown(shutdownCtx); err != nil {
		logger.Error("audit queue shutdown error", logger.Err(err))
	}

	return serveErr
}

func buildExportService(ctx context.Context, st *store.Store, cfg *config.Config) (*export.Service, error) {
	if !cfg.Export.Enabled() {
		return export.NewService(st), nil
	}
	svc, err := export.NewServiceWithS3(ctx, st, cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize export offload: %w", err)
	}
	return svc, nil
}

// runSweeper purges expired soft-deleted files and old idempotency records
// on a fixed interval until ctx is cancelled.
func runSweeper(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			res, err := st.Sweep(ctx, now.UTC())
			if err != nil {
				logger.ErrorCtx(ctx, "sweep failed", logger.Err(err))
				continue
			}
			if res.FilesPurged > 0 || res.IdempotencyPurged > 0 {
				logger.InfoCtx(ctx, "sweep completed",
					"files_purged", res.FilesPurged,
					"idempotency_purged", res.IdempotencyPurged)
			}
		}
	}
}
