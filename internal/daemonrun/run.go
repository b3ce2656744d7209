// Package daemonrun hosts the long-running yanode process: logging setup,
// history, metrics, the node, the daemon and its control socket.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"yanode/internal/config"
	"yanode/internal/daemon"
	"yanode/internal/history"
	"yanode/internal/ipc"
	"yanode/internal/logging"
	"yanode/internal/metrics"
	"yanode/internal/node"
	"yanode/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// NoAutoStart leaves the node off until a client asks for it.
	NoAutoStart bool
	// NodeOptions are appended to the node built for this run.
	NodeOptions []node.Option
}

const currentLogName = "yanode.log"

// closeMargin covers the API server, notifier and store on top of the
// node's daemon stop budget.
const closeMargin = 15 * time.Second

// Run starts the yanode daemon runtime loop and blocks until a signal or a
// shutdown request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, shutdown := context.WithCancel(signalCtx)
	defer shutdown()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("yanode-%s.log", runID))
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

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", currentLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "yanode-*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	if closed, err := store.FinishDangling(runCtx, time.Now()); err != nil {
		logging.WarnWithContext(logger, "failed to close jobs from a previous run", "history_dangling_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job history may list finished jobs as running"))
	} else if closed > 0 {
		logger.Info("closed jobs left open by a previous run", logging.Int64("count", closed))
	}

	m := metrics.New()
	nodeOpts := append([]node.Option{
		node.WithHistory(store),
		node.WithFailureCounter(m),
		node.WithExitObserver(m.DaemonExited),
	}, opts.NodeOptions...)
	n := node.New(cfg, logger, nodeOpts...)

	d, err := daemon.New(cfg, n, store, logger,
		daemon.WithMetrics(m),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), n.StopBudget()+closeMargin)
		defer closeCancel()
		if err := d.Close(closeCtx); err != nil {
			logging.WarnWithContext(logger, "daemon shutdown incomplete", "daemon_close_failed", logging.Error(err))
		}
	}()

	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(runCtx, cfg.Paths.SocketPath, d, logger, ipc.WithShutdown(shutdown))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("yanode daemon running",
		logging.String(logging.FieldEventType, "daemon_running"),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("log_path", logPath),
		logging.Int("pid", os.Getpid()))

	if !opts.NoAutoStart {
		go func() {
			if err := d.StartNode(runCtx); err != nil {
				logging.WarnWithContext(logger, "node start failed", "node_start_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check daemon binaries and yagna settings, then run yanode start"),
					logging.String(logging.FieldImpact, "node will not accept jobs"))
			}
		}()
	}

	<-runCtx.Done()
	logger.Info("yanode daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("exe_unit_dir", cfg.Paths.ExeUnitDir),
		logging.Bool("app_key_present", strings.TrimSpace(cfg.Yagna.AppKey) != ""),
		logging.String("payment_network", cfg.Payment.Network),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		key := strings.ReplaceAll(dep.Name, "-", "_")
		attrs = append(attrs,
			logging.Bool(key+"_available", dep.Available),
			logging.String(key+"_binary", dep.Command))
		if !dep.Available {
			logging.WarnWithContext(logger, "daemon executable unavailable", "dependency_missing",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail),
				logging.String(logging.FieldErrorHint, "install it into paths.binaries_dir"),
				logging.String(logging.FieldImpact, "node cannot start"))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
