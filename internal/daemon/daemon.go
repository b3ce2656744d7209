package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"yanode/internal/api"
	"yanode/internal/config"
	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/metrics"
	"yanode/internal/node"
	"yanode/internal/notifications"
	"yanode/internal/notify"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("another yanode instance is already running")

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics exposes m on the HTTP API and feeds it node changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithNotifier replaces the ntfy service built from config.
func WithNotifier(svc notifications.Service) Option {
	return func(d *Daemon) { d.notifier = svc }
}

// WithLogPath records the current log file for status output.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// Daemon owns the node for the lifetime of the process.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	node     *node.Node
	store    *history.Store
	metrics  *metrics.Metrics
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running bool
	PID     int
	Node    api.NodeStatus
	LogPath string
	APIAddr string
}

// New constructs a daemon around n. store may be nil.
func New(cfg *config.Config, n *node.Node, store *history.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || n == nil {
		return nil, errors.New("daemon requires config and node")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		node:     n,
		store:    store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts the watchers and the HTTP API.
// The node itself is started separately with StartNode.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.metrics != nil {
		d.wg.Go(func() { d.metrics.Watch(d.ctx, d.node) })
	}
	d.wg.Go(func() { notifications.Watch(d.ctx, d.notifier, d.node, d.logger) })

	if err := d.api.start(d.ctx); err != nil {
		d.cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("yanode daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// StartNode brings the node up. A node left in Error is reset first.
func (d *Daemon) StartNode(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	if d.node.Status() == node.Error {
		if err := d.node.Stop(ctx); err != nil {
			d.logger.Warn("reset after error incomplete", logging.Error(err))
		}
	}
	return d.node.Start(ctx)
}

// StopNode stops the node but keeps the daemon serving.
func (d *Daemon) StopNode(ctx context.Context) error {
	return d.node.Stop(ctx)
}

// Stop stops the node, the watchers and the HTTP API and releases the lock.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}
	err := d.node.Stop(ctx)
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("yanode daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Close stops the daemon and releases the node and history store.
func (d *Daemon) Close(ctx context.Context) error {
	err := d.Stop(ctx)
	err = errors.Join(err, d.node.Close(ctx))
	if d.store != nil {
		err = errors.Join(err, d.store.Close())
	}
	return err
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running: d.running.Load(),
		PID:     os.Getpid(),
		Node:    d.NodeStatus(ctx),
		LogPath: d.logPath,
		APIAddr: d.api.addr(),
	}
}

// NodeStatus assembles the node view shared by the HTTP API and IPC.
func (d *Daemon) NodeStatus(context.Context) api.NodeStatus {
	latest := d.node.LatestStatus()
	counters, at := d.node.Counters()
	status := api.NodeStatus{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Status:        latest.Value.String(),
		Seq:           latest.Seq,
		NodeID:        d.node.NodeID(),
		WalletAddress: d.node.WalletAddress(),
		Network:       d.cfg.Payment.Network,
		Price:         api.FromPrice(d.node.Price()),
		Job:           api.FromJob(d.node.CurrentJob()),
		Counters:      api.FromCounters(counters),
		Daemons:       api.FromDaemons(d.node.Daemons()),
		LockPath:      d.lockPath,
	}
	if !at.IsZero() {
		status.CountersAt = at.UTC().Format(time.RFC3339)
	}
	if err := d.node.LastError(); err != nil {
		status.LastError = err.Error()
	}
	if d.store != nil {
		status.HistoryPath = d.store.Path()
	}
	return status
}

// CurrentJob returns the job the node is serving, or nil.
func (d *Daemon) CurrentJob() *job.Job {
	return d.node.CurrentJob()
}

// ListJobs returns stored jobs started at or after since.
func (d *Daemon) ListJobs(ctx context.Context, since time.Time) ([]history.Record, error) {
	return d.node.ListJobs(ctx, since)
}

// Payment returns the payment account summary.
func (d *Daemon) Payment(ctx context.Context) (api.PaymentStatus, error) {
	ps, err := d.node.PaymentStatus(ctx)
	if err != nil {
		return api.PaymentStatus{}, fmt.Errorf("payment status: %w", err)
	}
	return api.FromPaymentStatus(d.node.WalletAddress(), ps), nil
}

// SubscribeStatus streams node status changes.
func (d *Daemon) SubscribeStatus(buffer int) (<-chan notify.Update[node.Status], func()) {
	return d.node.SubscribeStatus(buffer)
}

// SubscribeJob streams current job changes.
func (d *Daemon) SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func()) {
	return d.node.SubscribeJob(buffer)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
