// Package daemonrun wires the recap daemon process together.
package daemonrun

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"recap/internal/artifacts"
	"recap/internal/config"
	"recap/internal/daemon"
	"recap/internal/dedup"
	"recap/internal/ipc"
	"recap/internal/logging"
	"recap/internal/metrics"
	"recap/internal/notifications"
	"recap/internal/pool"
	"recap/internal/preflight"
	"recap/internal/queue"
	"recap/internal/recovery"
	"recap/internal/stage"
	"recap/internal/stageexec"
	"recap/internal/staging"
	"recap/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides cfg.Paths.SocketPath when set.
	SocketPath string
}

// Run starts the recap daemon and blocks until SIGINT, SIGTERM, or cmdCtx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "recap.log")
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logDependencySnapshot(logger, cfg)
	logPreflightFailures(logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	artifactStore, err := artifacts.New(cfg.Paths.ArtifactDir)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open artifact store: %w", err)
	}

	registry := stage.NewRegistry()
	if err := stageexec.Register(registry, stageexec.Deps{Config: cfg, Artifacts: artifactStore, Logger: logger}); err != nil {
		_ = store.Close()
		return fmt.Errorf("register stage backends: %w", err)
	}
	if err := notifications.Register(registry, cfg, logger); err != nil {
		_ = store.Close()
		return fmt.Errorf("register publishers: %w", err)
	}
	pipeline, err := registry.Resolve(stage.Selection{
		Acquire:    cfg.Stages.Acquire,
		Extract:    cfg.Stages.Extract,
		Transcribe: cfg.Stages.Transcribe,
		Summarize:  cfg.Stages.Summarize,
		Publish:    cfg.Stages.Publish,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("resolve pipeline: %w", err)
	}

	var (
		observer    workflow.Observer
		poolOpts    []pool.Option
		sweeperOpts = []recovery.Option{recovery.WithAfterSweep(artifactHousekeeping(cfg, store, logger))}
		daemonOpts  = []daemon.Option{daemon.WithLogPath(logPath)}
		collectors  *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		collectors = metrics.New(store.Stats)
		observer = collectors
		poolOpts = append(poolOpts, pool.WithObserver(collectors))
		sweeperOpts = append(sweeperOpts, recovery.WithResetHook(collectors.RecoveryReset))
		daemonOpts = append(daemonOpts, daemon.WithMetricsHandler(metricsHandler(collectors)))
	}

	gate, err := buildGate(signalCtx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	pools := pool.NewSet(cfg.Pools.IOWorkers, cfg.Pools.CPUWorkers, cfg.Pools.QueueDepth, logger, poolOpts...)
	defer shutdownPools(pools, cfg, logger)

	scheduler, err := workflow.New(workflow.Deps{
		Config:   cfg,
		Store:    store,
		Pools:    pools,
		Pipeline: pipeline,
		Gate:     gate,
		Sweeper:  recovery.New(store, logger, sweeperOpts...),
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create scheduler: %w", err)
	}

	d, err := daemon.New(cfg, store, scheduler, logger, daemonOpts...)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := cfg.Paths.SocketPath
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon will not process queued jobs until started"),
		)
	}

	<-signalCtx.Done()
	logger.Info("recap daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// buildGate returns nil when dedup is disabled. A configured but unreachable
// Redis falls back to in-process claims.
func buildGate(ctx context.Context, cfg *config.Config, store *queue.Store, logger *zap.Logger) (*dedup.Gate, error) {
	if !cfg.Dedup.Enabled {
		return nil, nil
	}
	var claimer dedup.Claimer = dedup.NewLocalClaimer()
	if client := dedup.NewRedisClient(cfg.Dedup); client != nil {
		if err := dedup.Ping(ctx, client); err != nil {
			_ = client.Close()
			logging.WarnWithContext(logger, "redis unavailable; using local dedup claims", "dedup_redis_unavailable",
				logging.String("redis_addr", cfg.Dedup.RedisAddr),
				logging.Error(err),
				logging.String(logging.FieldImpact, "duplicate suppression only covers this host"),
				logging.String(logging.FieldErrorHint, "check dedup.redis_addr and that Redis is running"),
			)
		} else {
			claimer = dedup.NewRedisClaimer(client)
		}
	}
	gate, err := dedup.New(store, cfg.Dedup.CacheSize,
		dedup.WithClaimer(claimer),
		dedup.WithClaimTiming(
			time.Duration(cfg.Dedup.ClaimTTL)*time.Second,
			time.Duration(cfg.Dedup.ClaimWait)*time.Second,
			0,
		),
		dedup.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create dedup gate: %w", err)
	}
	return gate, nil
}

func metricsHandler(m *metrics.Metrics) http.Handler {
	if m == nil {
		return nil
	}
	return m.Handler()
}

func shutdownPools(pools *pool.Set, cfg *config.Config, logger *zap.Logger) {
	timeout := time.Duration(cfg.Pools.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := pools.Shutdown(ctx); err != nil {
		logging.WarnWithContext(logger, "worker pools did not drain", "pool_shutdown_timeout",
			logging.Error(err),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldImpact, "interrupted jobs are recovered on next start"),
		)
	}
}

func logDependencySnapshot(logger *zap.Logger, cfg *config.Config) {
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("acquire_backend", cfg.Stages.Acquire),
		logging.String("extract_backend", cfg.Stages.Extract),
		logging.String("transcribe_backend", cfg.Stages.Transcribe),
		logging.String("summarize_backend", cfg.Stages.Summarize),
		logging.Strings("publishers", cfg.Stages.Publish),
		logging.Bool("ytdlp_available", binaryAvailable(cfg.Tools.YtDlpBinary)),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Tools.FFmpegBinary)),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Tools.FFprobeBinary)),
		logging.Bool("whisper_available", binaryAvailable(cfg.Tools.WhisperBinary)),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("dedup_enabled", cfg.Dedup.Enabled),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
		logging.Int("pid", os.Getpid()),
	)
}

func logPreflightFailures(logger *zap.Logger, cfg *config.Config) {
	for _, r := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
			logging.String(logging.FieldErrorHint, "fix the path or setting, then run `recap status`"),
		)
	}
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

// artifactHousekeeping prunes scratch and unreferenced artifact directories
// on the recovery schedule.
func artifactHousekeeping(cfg *config.Config, store *queue.Store, logger *zap.Logger) func(context.Context) {
	cleanupLogger := logging.NewComponentLogger(logger, "artifacts")
	return func(ctx context.Context) {
		result, err := staging.Sweep(ctx, cfg.Paths.ArtifactDir, store, cfg.RecoveryMaxAge(), cleanupLogger)
		if err != nil {
			logging.WarnWithContext(cleanupLogger, "artifact cleanup skipped", "artifact_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "disk space not reclaimed until the next sweep"),
			)
			return
		}
		if len(result.Removed) > 0 {
			cleanupLogger.Info("artifact cleanup finished",
				logging.Int("removed", len(result.Removed)),
				logging.Int("errors", len(result.Errors)),
				logging.String(logging.FieldEventType, "artifact_cleanup_summary"),
			)
		}
	}
}
