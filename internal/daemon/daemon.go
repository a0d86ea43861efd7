package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"recap/internal/config"
	"recap/internal/deps"
	"recap/internal/logging"
	"recap/internal/notifications"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/workflow"
)

// Daemon coordinates the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *queue.Store
	scheduler *workflow.Scheduler
	metrics   http.Handler
	logPath   string

	lockPath string
	pidPath  string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Scheduler    workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetricsHandler mounts h at /metrics on the HTTP API.
func WithMetricsHandler(h http.Handler) Option {
	return func(d *Daemon) { d.metrics = h }
}

// WithLogPath records the daemon log file reported to clients.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, scheduler *workflow.Scheduler, logger *zap.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || scheduler == nil {
		return nil, errors.New("daemon requires config, store, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: scheduler,
		logPath:   filepath.Join(cfg.Paths.LogDir, "recap.log"),
		lockPath:  cfg.LockPath(),
		pidPath:   cfg.PIDPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the instance lock, writes the PID file, starts the
// scheduler, and brings up the HTTP API on first start.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another recap daemon instance is already running")
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		d.releaseLock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.api == nil {
		srv, err := newAPIServer(d.cfg, d, d.logger)
		if err != nil {
			d.scheduler.Stop()
			cancel()
			d.releaseLock()
			return err
		}
		if err := srv.start(); err != nil {
			d.scheduler.Stop()
			cancel()
			d.releaseLock()
			return err
		}
		d.api = srv
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("recap daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. The HTTP
// API stays up so clients can inspect or restart the daemon.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("recap daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon, shuts the HTTP API down, and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	d.mu.Lock()
	srv := d.api
	d.api = nil
	d.mu.Unlock()
	srv.stop()
	return d.store.Close()
}

func (d *Daemon) releaseLock() {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.String("path", d.pidPath), logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Running reports whether the scheduler is processing jobs.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound HTTP API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// CreateJob validates sourceRef and enqueues it. It returns immediately.
func (d *Daemon) CreateJob(ctx context.Context, sourceRef string, priority queue.Priority) (*queue.Job, error) {
	ref, err := validateSourceRef(sourceRef)
	if err != nil {
		return nil, err
	}
	if priority == 0 {
		priority = queue.PriorityNormal
	}
	if !priority.Valid() {
		return nil, services.Wrap(services.ErrValidation, "", "create job", fmt.Sprintf("invalid priority %d", priority), nil)
	}
	job, err := d.store.Create(ctx, ref, priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	d.scheduler.Wake()
	d.logger.Info("job queued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", ref),
		logging.String("priority", priority.String()),
		logging.String(logging.FieldEventType, "job_created"),
	)
	return job, nil
}

// GetJob returns the job with id. A missing job is services.ErrNotFound.
func (d *Daemon) GetJob(ctx context.Context, id int64) (*queue.Job, error) {
	job, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", fmt.Sprintf("job %d not found", id), nil)
	}
	return job, nil
}

// ListJobs returns jobs filtered by optional stages.
func (d *Daemon) ListJobs(ctx context.Context, stages []queue.Stage) ([]*queue.Job, error) {
	return d.store.List(ctx, stages...)
}

// RetryFailed resets failed jobs (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	updated, err := d.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		d.scheduler.Wake()
	}
	return updated, nil
}

// CancelJob stops a running job or withdraws a queued one.
func (d *Daemon) CancelJob(ctx context.Context, id int64) (bool, error) {
	return d.scheduler.Cancel(ctx, id)
}

// RemoveJob deletes a job that no execution owns.
func (d *Daemon) RemoveJob(ctx context.Context, id int64) (bool, error) {
	job, err := d.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if d.scheduler.IsActive(id) || job.Stage.IsProcessing() {
		return false, services.Wrap(services.ErrValidation, "", "remove job",
			fmt.Sprintf("job %d is %s; cancel it first", id, job.Stage), nil)
	}
	return d.store.Remove(ctx, id)
}

// ClearQueue removes every job not owned by a running execution.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed jobs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification sends an ntfy test message using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	ntfy := notifications.NewNtfy(d.cfg.Notifications)
	if ntfy == nil {
		return false, "ntfy topic not configured", nil
	}
	if err := ntfy.Test(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Store returns the queue store backing the daemon.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Scheduler:    d.scheduler.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: deps.Check(d.cfg),
	}
	if status.Running {
		status.PID = os.Getpid()
	}
	return status
}

func validateSourceRef(value string) (string, error) {
	ref := strings.TrimSpace(value)
	if ref == "" {
		return "", services.Wrap(services.ErrValidation, "", "create job", "source reference is required", nil)
	}
	parsed, err := url.Parse(ref)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", services.Wrap(services.ErrValidation, "", "create job",
			fmt.Sprintf("source reference %q is not an http(s) URL", ref), nil)
	}
	return ref, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the PID recorded at path, or 0 when missing or malformed.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
