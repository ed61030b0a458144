// Package daemonrun assembles and runs the relay daemon process.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"relay/internal/broker"
	"relay/internal/config"
	"relay/internal/daemon"
	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel    string
	Development bool
	// Ready, when set, receives the running daemon once it is serving.
	Ready func(*daemon.Daemon)
}

// Run starts the relay daemon and blocks until SIGINT, SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("relay-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("relay-%s.events", runID))
	logHub := logging.NewStreamHub(cfg.Broker.LogCapacity)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else {
		logHub.AddSink(eventArchive)
		defer eventArchive.Close()
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update relay.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "relay-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "relay-*.events", Exclude: []string{eventsPath}},
	)

	if failed := preflight.Failures(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, f := range failed {
			details = append(details, f.Name+": "+f.Detail)
		}
		logging.ErrorWithContext(logger, "preflight checks failed", "preflight_failed",
			logging.String("failures", strings.Join(details, "; ")),
			logging.String(logging.FieldImpact, "relay daemon will not start"),
			logging.String(logging.FieldErrorHint, "fix the listed paths or bind addresses in config.toml"),
		)
		return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, recorder, err := openHistory(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	if store != nil {
		defer store.Close()
		// Drain pending entries before the store closes.
		defer recorder.Close()
	}

	brokerOpts := broker.Options{
		RequestTimeout:    cfg.RequestTimeout(),
		MaxRequestTimeout: cfg.MaxRequestTimeout(),
		LivenessThreshold: cfg.LivenessThreshold(),
		LogCapacity:       cfg.Broker.LogCapacity,
		Logger:            logger,
		LogHub:            logHub,
	}
	if recorder != nil {
		brokerOpts.History = recorder
	}
	b := broker.New(brokerOpts)

	d, err := daemon.New(cfg, b, store, logger,
		daemon.WithLogArchive(eventArchive),
		daemon.WithHistoryRecorder(recorder),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "callers and responder cannot connect"),
			logging.String(logging.FieldErrorHint, "check bind addresses and that no other relay is running"),
		)
		return err
	}
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("relay daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*history.Store, *history.Recorder, error) {
	if !cfg.History.Enabled {
		logger.Info("request history disabled", logging.String(logging.FieldEventType, "history_disabled"))
		return nil, nil, nil
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, nil, err
	}
	if days := cfg.History.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		removed, err := store.Prune(ctx, cutoff)
		if err != nil {
			logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old history rows are kept"),
				logging.String(logging.FieldErrorHint, "run relay history clear if the database keeps growing"),
			)
		} else if removed > 0 {
			logger.Info("pruned request history",
				logging.String(logging.FieldEventType, "history_pruned"),
				logging.Int64("removed", removed),
				logging.Int("retention_days", days),
			)
		}
	}
	return store, history.NewRecorder(store, cfg.History.BufferSize, logger), nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "relay.log")
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

// PIDPath returns where Run records the daemon process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "relay.pid")
}
