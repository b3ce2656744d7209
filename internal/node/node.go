package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yanode/internal/activity"
	"yanode/internal/config"
	"yanode/internal/environ"
	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/notify"
	"yanode/internal/readiness"
	"yanode/internal/supervisor"
	"yanode/internal/yagna"
)

var (
	// ErrAppKeyMissing is returned when neither a default nor an
	// autoconfigured app key exists after the network daemon is up.
	ErrAppKeyMissing = errors.New("no default or autoconfigured app key")
	// ErrProviderExited is returned when the provider daemon dies during
	// launch confirmation.
	ErrProviderExited = errors.New("provider exited during launch")
	// ErrNoHistory is returned by ListJobs when no history store is attached.
	ErrNoHistory = errors.New("job history not configured")
)

// App key names accepted for the provider, in priority order.
var appKeyNames = []string{"default", "autoconfigured"}

const stopCleanupTimeout = 10 * time.Second

// Option configures a Node.
type Option func(*Node)

// WithHistory records every job change in store.
func WithHistory(store *history.Store) Option {
	return func(n *Node) {
		n.store = store
	}
}

// WithExecutor runs daemon CLI commands through exec.
func WithExecutor(exec yagna.Executor) Option {
	return func(n *Node) {
		n.exec = exec
	}
}

// WithHTTPClient sends daemon API requests through doer.
func WithHTTPClient(doer yagna.HTTPDoer) Option {
	return func(n *Node) {
		n.httpClient = doer
	}
}

// WithCommand replaces the executable launched for role. prefix is placed
// before the daemon's own arguments.
func WithCommand(role supervisor.Role, path string, prefix ...string) Option {
	return func(n *Node) {
		n.commands[role] = command{path: path, prefix: slices.Clone(prefix)}
	}
}

// WithFailureCounter reports failed polling cycles to fc.
func WithFailureCounter(fc activity.FailureCounter) Option {
	return func(n *Node) {
		n.failures = fc
	}
}

// WithExitObserver is called for every daemon exit, solicited or not.
func WithExitObserver(fn supervisor.ExitHandler) Option {
	return func(n *Node) {
		if fn != nil {
			n.exitObservers = append(n.exitObservers, fn)
		}
	}
}

// WithLookup resolves ambient environment values for composition.
func WithLookup(lookup environ.LookupFunc) Option {
	return func(n *Node) {
		n.lookup = lookup
	}
}

type command struct {
	path   string
	prefix []string
}

// DaemonInfo describes a running daemon process.
type DaemonInfo struct {
	Role      supervisor.Role `json:"role"`
	PID       int             `json:"pid"`
	Path      string          `json:"path"`
	StartedAt time.Time       `json:"startedAt"`
}

// run is the state owned by one Start..Stop cycle.
type run struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	yagna    *supervisor.Handle
	provider *supervisor.Handle
	loops    *activity.Loops
}

func (r *run) owns(exit supervisor.Exit) bool {
	for _, h := range []*supervisor.Handle{r.yagna, r.provider} {
		if h != nil && h.Role() == exit.Role && h.PID() == exit.PID {
			return true
		}
	}
	return false
}

// Node manages the daemons, status and current job.
type Node struct {
	cfg           *config.Config
	logger        *slog.Logger
	sup           *supervisor.Supervisor
	status        *StateMachine
	jobs          *job.Tracker
	api           *yagna.Client
	store         *history.Store
	exec          yagna.Executor
	httpClient    yagna.HTTPDoer
	failures      activity.FailureCounter
	lookup        environ.LookupFunc
	commands      map[supervisor.Role]command
	exitObservers []supervisor.ExitHandler

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu          sync.Mutex
	run         *run
	startCancel context.CancelFunc
	identity    string
	lastErr     error
}

// New builds a node for cfg. Nothing is launched until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Node {
	if logger == nil {
		logger = logging.NewNop()
	}
	n := &Node{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "node"),
		status: NewStateMachine(),
		jobs:   job.NewTracker(),
		lookup: os.LookupEnv,
		commands: map[supervisor.Role]command{
			supervisor.RoleYagna:    {path: cfg.YagnaBinary()},
			supervisor.RoleProvider: {path: cfg.ProviderBinary()},
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	var clientOpts []yagna.ClientOption
	if n.httpClient != nil {
		clientOpts = append(clientOpts, yagna.WithHTTPClient(n.httpClient))
	}
	n.api = yagna.NewClient(cfg.Yagna.APIURL, cfg.Yagna.AppKey, clientOpts...)

	supOpts := []supervisor.Option{supervisor.WithExitHandler(n.onExit)}
	for _, fn := range n.exitObservers {
		supOpts = append(supOpts, supervisor.WithExitHandler(fn))
	}
	n.sup = supervisor.New(logger, supOpts...)
	return n
}

// Start launches both daemons and blocks until the node is Ready or the
// startup failed. It is only valid from Off.
func (n *Node) Start(ctx context.Context) error {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	if err := n.status.Transition(Starting); err != nil {
		return err
	}
	runID := uuid.NewString()
	logger := logging.WithRunID(n.logger, runID)
	logger.Info("node starting", logging.String(logging.FieldEventType, "node_starting"))

	startCtx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.startCancel = cancel
	n.lastErr = nil
	n.mu.Unlock()

	r, err := n.startup(startCtx, runID, logger)

	n.mu.Lock()
	n.startCancel = nil
	n.mu.Unlock()
	cancel()

	if err != nil {
		n.abortStartup(logger, err)
		return err
	}

	n.mu.Lock()
	if !r.yagna.Alive() || !r.provider.Alive() {
		n.mu.Unlock()
		r.cancel()
		err := ErrProviderExited
		if !r.yagna.Alive() {
			err = readiness.ErrProcessDied
		}
		n.abortStartup(logger, fmt.Errorf("daemon exited before ready: %w", err))
		return err
	}
	n.run = r
	if err := n.status.Transition(Ready); err != nil {
		n.run = nil
		n.mu.Unlock()
		r.cancel()
		n.abortStartup(logger, err)
		return err
	}
	n.mu.Unlock()

	r.loops.Start(r.ctx, &r.wg)
	logger.Info("node ready",
		logging.String("node_id", n.NodeID()),
		logging.Int("yagna_pid", r.yagna.PID()),
		logging.Int("provider_pid", r.provider.PID()),
		logging.String(logging.FieldEventType, "node_ready"),
	)
	return nil
}

func (n *Node) startup(ctx context.Context, runID string, logger *slog.Logger) (*run, error) {
	if err := n.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	yagnaEnv := n.yagnaEnv()
	logger.Debug("network daemon environment", logging.Any("env", environ.Redacted(yagnaEnv)))
	yh, err := n.launch(ctx, supervisor.RoleYagna, n.cfg.Paths.DataDir, yagnaEnv, n.yagnaArgs())
	if err != nil {
		return nil, err
	}

	me, err := readiness.Wait(ctx, n.api.Me, yh.Done(), readiness.Options{
		MaxAttempts: n.cfg.Readiness.MaxAttempts,
		Interval:    n.cfg.ReadinessInterval(),
		Classify:    readiness.StatusClassifier(n.cfg.Readiness.FatalStatusCodes...),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("network daemon readiness: %w", err)
	}
	n.mu.Lock()
	n.identity = me.Identity
	n.mu.Unlock()
	logger.Info("network daemon ready", logging.String("node_id", me.Identity), logging.String("name", me.Name))

	ycli := n.yagnaCLI(yagnaEnv, logger)
	account := n.paymentAccount()
	if err := ycli.PaymentInit(ctx, account); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(logger, "payment init failed", "payment_init_failed",
			logging.String("network", account.Network),
			logging.String("driver", account.Driver),
			logging.String(logging.FieldErrorHint, "check the payment network and driver settings"),
			logging.String(logging.FieldImpact, "earnings may not be received until payment init succeeds"),
			logging.Error(err),
		)
	}

	key, ok, err := ycli.AppKey(ctx, appKeyNames...)
	if err != nil {
		return nil, fmt.Errorf("list app keys: %w", err)
	}
	if !ok {
		return nil, ErrAppKeyMissing
	}
	appKey := strings.TrimSpace(n.cfg.Yagna.AppKey)
	if appKey == "" {
		appKey = key.Key
	}

	providerEnv := n.providerEnv(appKey)
	pcli := yagna.NewProviderCLI(n.commands[supervisor.RoleProvider].path, environ.Merge(os.Environ(), providerEnv), n.cliOptions(logger)...)
	if err := EnsurePreset(ctx, pcli, DesiredPreset(n.cfg), yagna.ProviderConfig{
		NodeName: n.cfg.Provider.NodeName,
		Subnet:   n.cfg.Provider.Subnet,
	}, logger); err != nil {
		return nil, fmt.Errorf("preset setup: %w", err)
	}

	ph, err := n.launch(ctx, supervisor.RoleProvider, n.cfg.ProviderDataDir(), providerEnv, n.providerArgs())
	if err != nil {
		return nil, err
	}
	if settle := n.cfg.ProviderSettle(); settle > 0 {
		timer := time.NewTimer(settle)
		defer timer.Stop()
		select {
		case <-ph.Done():
			if exit, ok := ph.Exit(); ok {
				return nil, fmt.Errorf("%w with code %d", ErrProviderExited, exit.Code)
			}
			return nil, ErrProviderExited
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	r := &run{id: runID, yagna: yh, provider: ph}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	opts := activity.Options{
		ActivityInterval: n.cfg.ActivityInterval(),
		InvoiceInterval:  n.cfg.InvoiceInterval(),
		BreakerFailures:  n.cfg.Polling.BreakerFailures,
		BreakerCooldown:  n.cfg.BreakerCooldown(),
		RunID:            runID,
		Logger:           logger,
		Failures:         n.failures,
	}
	if n.store != nil {
		opts.Recorder = n.store
	}
	r.loops = activity.New(n.api, n.jobs, opts)
	return r, nil
}

func (n *Node) launch(ctx context.Context, role supervisor.Role, dir string, env map[string]string, args []string) (*supervisor.Handle, error) {
	cmd := n.commands[role]
	return n.sup.Start(ctx, supervisor.Spec{
		Role: role,
		Path: cmd.path,
		Dir:  dir,
		Args: append(slices.Clone(cmd.prefix), args...),
		Env:  environ.Merge(os.Environ(), env),
	})
}

// abortStartup stops whatever was launched and moves to Error.
func (n *Node) abortStartup(logger *slog.Logger, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), stopCleanupTimeout)
	defer cancel()
	n.stopDaemons(ctx, logger)

	n.mu.Lock()
	n.lastErr = cause
	if err := n.status.Transition(Error); err != nil {
		logger.Debug("error transition skipped", logging.Error(err))
	}
	n.mu.Unlock()
	logging.ErrorWithContext(logger, "node start failed", "node_start_failed",
		logging.String(logging.FieldErrorHint, startHint(cause)),
		logging.Error(cause),
	)
}

func startHint(err error) string {
	switch {
	case errors.Is(err, readiness.ErrUnauthorized):
		return "check yagna.app_key matches the daemon's autoconfigured key"
	case errors.Is(err, readiness.ErrTimeout):
		return "the network daemon did not answer; check its log lines above"
	case errors.Is(err, readiness.ErrProcessDied), errors.Is(err, ErrProviderExited):
		return "a daemon exited during startup; check its log lines above"
	case errors.Is(err, supervisor.ErrSpawnFailed):
		return "check paths.binaries_dir contains yagna and ya-provider"
	case errors.Is(err, ErrAppKeyMissing):
		return "create an app key named default or set yagna.autoconf_app_key"
	default:
		return "run yanode stop, fix the cause and start again"
	}
}

// Stop shuts the node down. A Start in progress is cancelled first. Stopping
// an Off node is a no-op.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.startCancel != nil {
		n.startCancel()
	}
	n.mu.Unlock()

	n.opMu.Lock()
	defer n.opMu.Unlock()

	if n.status.Current() == Off {
		return nil
	}

	n.mu.Lock()
	r := n.run
	n.run = nil
	n.mu.Unlock()

	logger := n.logger
	if r != nil {
		logger = logging.WithRunID(logger, r.id)
		r.cancel()
		r.wg.Wait()
	}
	logger.Info("node stopping", logging.String(logging.FieldEventType, "node_stopping"))

	err := n.stopDaemons(ctx, logger)
	n.clearJob(logger)

	n.mu.Lock()
	transitionErr := n.status.Transition(Off)
	n.mu.Unlock()
	if transitionErr != nil {
		return errors.Join(err, transitionErr)
	}
	logger.Info("node stopped", logging.String(logging.FieldEventType, "node_stopped"))
	return err
}

// stopOrder stops the provider before the network daemon it depends on.
var stopOrder = []supervisor.Role{supervisor.RoleProvider, supervisor.RoleYagna}

// StopBudget is the longest Stop can spend on the daemons. They are stopped
// one after the other, each with its full graceful window.
func (n *Node) StopBudget() time.Duration {
	return time.Duration(len(stopOrder)) * n.sup.StopBudget(n.cfg.StopTimeout())
}

func (n *Node) stopDaemons(ctx context.Context, logger *slog.Logger) error {
	var errs []error
	for _, role := range stopOrder {
		res, err := n.sup.StopRole(ctx, role, n.cfg.StopTimeout())
		if err != nil {
			logging.WarnWithContext(logger, "daemon stop failed", "daemon_stop_failed",
				logging.String(logging.FieldRole, string(role)),
				logging.String(logging.FieldImpact, "the process may still be running"),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("stop %s: %w", role, err))
			continue
		}
		if res.PID != 0 {
			logger.Debug("daemon stopped",
				logging.String(logging.FieldRole, string(role)),
				logging.Bool("forced", res.Forced),
				logging.Duration("elapsed", res.Elapsed),
			)
		}
	}
	return errors.Join(errs...)
}

// onExit handles daemon exits reported by the supervisor. Only an
// unsolicited exit of a daemon of the current run while Ready matters.
func (n *Node) onExit(exit supervisor.Exit) {
	n.mu.Lock()
	r := n.run
	if r == nil || exit.Solicited || !r.owns(exit) || n.status.Current() != Ready {
		n.mu.Unlock()
		return
	}
	n.lastErr = fmt.Errorf("%s exited unexpectedly with code %d", exit.Role, exit.Code)
	if err := n.status.Transition(Error); err != nil {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	logger := logging.WithRunID(n.logger, r.id)
	logging.ErrorWithContext(logger, "daemon exited unexpectedly", "daemon_crashed",
		logging.String(logging.FieldRole, string(exit.Role)),
		logging.Int("pid", exit.PID),
		logging.Int("exit_code", exit.Code),
		logging.String(logging.FieldImpact, "node is no longer serving jobs"),
		logging.String(logging.FieldErrorHint, "run yanode stop, then start again"),
	)
	r.cancel()
	go func() {
		r.wg.Wait()
		n.clearJob(logger)
	}()
}

// clearJob drops the current job and marks it finished in history.
func (n *Node) clearJob(logger *slog.Logger) {
	prev := n.jobs.Clear()
	if prev == nil {
		return
	}
	logger.Info("job cleared", logging.String(logging.FieldJobID, prev.ID()))
	if n.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopCleanupTimeout)
	defer cancel()
	if err := n.store.Save(ctx, prev.Snapshot(), ""); err != nil {
		logger.Warn("history save failed", logging.String(logging.FieldJobID, prev.ID()), logging.Error(err))
	}
	if err := n.store.Finish(ctx, prev.ID(), time.Now().UTC()); err != nil {
		logger.Warn("history finish failed", logging.String(logging.FieldJobID, prev.ID()), logging.Error(err))
	}
}

// Close stops the node and releases subscribers.
func (n *Node) Close(ctx context.Context) error {
	err := n.Stop(ctx)
	n.status.Close()
	n.jobs.Close()
	return err
}

func (n *Node) yagnaArgs() []string {
	args := []string{"service", "run"}
	if n.cfg.Yagna.Debug {
		args = append(args, "--debug")
	}
	return args
}

func (n *Node) providerArgs() []string {
	args := []string{"run"}
	if n.cfg.Provider.Debug {
		args = append(args, "--debug")
	}
	return append(args, "--payment-network", n.cfg.Payment.Network)
}

// yagnaEnv composes the network daemon environment.
func (n *Node) yagnaEnv() map[string]string {
	y := n.cfg.Yagna
	autoconf := y.AutoconfAppKey
	if strings.TrimSpace(autoconf) == "" {
		autoconf = y.AppKey
	}
	return environ.New().
		APIURL(y.APIURL).
		GSBURL(y.GSBURL).
		NetBindURL(y.NetBindURL).
		RelayHost(y.RelayHost).
		NetworkGroup(y.NetworkGroup).
		AppKey(y.AppKey).
		AutoconfAppKey(autoconf).
		PrivateKey(y.PrivateKey).
		YagnaDataDir(n.cfg.Paths.DataDir).
		SSLCertFile(y.SSLCertFile).
		Build(n.lookup)
}

// providerEnv composes the provider daemon environment.
func (n *Node) providerEnv(appKey string) map[string]string {
	y := n.cfg.Yagna
	return environ.New().
		APIURL(y.APIURL).
		GSBURL(y.GSBURL).
		NetworkGroup(y.NetworkGroup).
		AppKey(appKey).
		ProviderDataDir(n.cfg.ProviderDataDir()).
		ExeUnitPath(n.cfg.Paths.ExeUnitDir).
		SSLCertFile(y.SSLCertFile).
		Set(environ.MinAgreementExpiry, n.cfg.Provider.MinAgreementExpiration).
		Build(n.lookup)
}

func (n *Node) cliOptions(logger *slog.Logger) []yagna.CLIOption {
	opts := []yagna.CLIOption{yagna.WithLogger(logger)}
	if n.exec != nil {
		opts = append(opts, yagna.WithExecutor(n.exec))
	}
	return opts
}

func (n *Node) yagnaCLI(env map[string]string, logger *slog.Logger) *yagna.YagnaCLI {
	return yagna.NewYagnaCLI(n.commands[supervisor.RoleYagna].path, environ.Merge(os.Environ(), env), n.cliOptions(logger)...)
}

func (n *Node) paymentAccount() yagna.PaymentAccount {
	return yagna.PaymentAccount{
		Network: n.cfg.Payment.Network,
		Driver:  n.cfg.Payment.Driver,
		Account: n.WalletAddress(),
	}
}

// Status returns the current node status.
func (n *Node) Status() Status {
	return n.status.Current()
}

// LastError returns the cause of the most recent move to Error.
func (n *Node) LastError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastErr
}

// SubscribeStatus streams status changes.
func (n *Node) SubscribeStatus(buffer int) (<-chan notify.Update[Status], func()) {
	return n.status.Subscribe(buffer)
}

// LatestStatus returns the status with its sequence number.
func (n *Node) LatestStatus() notify.Update[Status] {
	return n.status.Latest()
}

// SubscribeJob streams current job changes; a nil job means none.
func (n *Node) SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func()) {
	return n.jobs.Subscribe(buffer)
}

// LatestJob returns the current job with its sequence number.
func (n *Node) LatestJob() notify.Update[*job.Job] {
	return n.jobs.Latest()
}

// CurrentJob returns the current job or nil.
func (n *Node) CurrentJob() *job.Job {
	return n.jobs.Current()
}

// NodeID returns the identity reported by the network daemon, empty until
// the first successful start.
func (n *Node) NodeID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.identity
}

// WalletAddress returns the configured account or the node identity.
func (n *Node) WalletAddress() string {
	return n.cfg.PaymentAccount(n.NodeID())
}

// Price returns the configured pricing.
func (n *Node) Price() job.Price {
	return PresetPrice(DesiredPreset(n.cfg))
}

// Counters returns activity counts by state from the last activity poll.
func (n *Node) Counters() (map[yagna.ActivityState]int, time.Time) {
	n.mu.Lock()
	r := n.run
	n.mu.Unlock()
	if r == nil {
		return map[yagna.ActivityState]int{}, time.Time{}
	}
	return r.loops.Counters()
}

// PaymentStatus queries the network daemon for the account summary.
func (n *Node) PaymentStatus(ctx context.Context) (yagna.PaymentStatus, error) {
	return n.yagnaCLI(n.yagnaEnv(), n.logger).PaymentStatus(ctx, n.paymentAccount())
}

// ListJobs returns stored jobs started at or after since, newest first.
func (n *Node) ListJobs(ctx context.Context, since time.Time) ([]history.Record, error) {
	if n.store == nil {
		return nil, ErrNoHistory
	}
	return n.store.List(ctx, since)
}

// Daemons returns the live daemon processes.
func (n *Node) Daemons() []DaemonInfo {
	handles := n.sup.Handles()
	out := make([]DaemonInfo, 0, len(handles))
	for _, h := range handles {
		if !h.Alive() {
			continue
		}
		out = append(out, DaemonInfo{Role: h.Role(), PID: h.PID(), Path: h.Path(), StartedAt: h.StartedAt()})
	}
	return out
}
