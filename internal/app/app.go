package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"gpumon/internal/config"
	"gpumon/internal/history"
	"gpumon/internal/logging"
	"gpumon/internal/metrics"
	"gpumon/internal/monitor"
	"gpumon/internal/notify"
	"gpumon/internal/sink"
	"gpumon/internal/slurm"
	"gpumon/internal/transport"
	"gpumon/internal/tui"
	"gpumon/internal/uifmt"
	"gpumon/internal/web"
)

// missingSlurmCommandsError is typed so retry classification is stable and
// does not depend on brittle string matching.
type missingSlurmCommandsError struct {
	source  string
	missing string
}

func (e *missingSlurmCommandsError) Error() string {
	return fmt.Sprintf("missing required Slurm commands on %s: %s", e.source, e.missing)
}

func Run(cfg config.Config) error {
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	rootCtx := context.Background()
	ctx, cancel := context.WithCancel(rootCtx)
	if cfg.Duration > 0 {
		ctx, cancel = context.WithTimeout(rootCtx, cfg.Duration)
	}
	defer cancel()

	if err := awaitSlurmAvailability(ctx, tr, cfg.CommandTimeout); err != nil {
		return err
	}

	collector := slurm.NewCollector(tr, logger.Named("collector"))
	m := metrics.New()

	dispatcher := sink.NewDispatcher(nil, nil, cfg.NotifyInterval)
	dispatcher.Metrics = m
	dispatcher.Log = logger.Named("sink")

	// The sink fields hold interfaces; assign only values that exist so a
	// disabled sink stays nil instead of wrapping a nil pointer.
	var db *history.DB
	if !cfg.NoDB {
		opened, err := history.Open(cfg.DBPath, logger.Named("history"))
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer opened.Close()
		db = opened
		dispatcher.History = opened
	}
	if cfg.Webhook != "" {
		dispatcher.Notifier = notify.NewWebhook(cfg.Webhook, logger.Named("notify"))
	}

	if cfg.Once {
		return runOnce(ctx, collector, dispatcher, tr.Describe())
	}

	store := monitor.NewStore()
	scheduler := monitor.NewScheduler(collector, store, cfg.Refresh)
	scheduler.Dispatcher = dispatcher
	scheduler.Metrics = m
	scheduler.Log = logger.Named("monitor")

	if cfg.Listen != "" {
		server := web.NewServer(store, db, m, logger.Named("web"))
		server.Start(cfg.Listen)
		defer func() { _ = server.Stop() }()
	}

	updates := make(chan monitor.Update, 8)
	go scheduler.Run(ctx, updates)

	model := tui.NewModel(tui.Options{
		Source:      tr.Describe(),
		NoColor:     cfg.NoColor,
		Refresh:     cfg.Refresh,
		MaxDuration: cfg.Duration,
		Updates:     updates,
		OnRefresh:   scheduler.TriggerRefresh,
	})

	prog := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return err
	}

	// Stop the scheduler and wait for it to close the updates channel so the
	// history file is closed only after the last write.
	cancel()
	for range updates {
	}

	return nil
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogFile == "" && !cfg.Once {
		// The TUI owns the terminal; without a log file there is nowhere
		// sensible to write.
		return zap.NewNop(), nil
	}
	return logging.New(cfg.LogFile, cfg.LogLevel)
}

func buildTransport(cfg config.Config) (transport.Transport, error) {
	switch cfg.Mode {
	case config.ModeLocal:
		return transport.NewLocalTransport(), nil
	case config.ModeRemote:
		return transport.NewSSHTransport(transport.SSHOptions{
			Target:         cfg.Target,
			ConfigPath:     cfg.SSHConfig,
			IdentityFile:   cfg.IdentityFile,
			Port:           cfg.Port,
			ConnectTimeout: cfg.ConnectTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
}

func checkSlurmAvailability(ctx context.Context, tr transport.Transport, timeout time.Duration) error {
	const checkCmd = `missing=""; for c in squeue scontrol; do if ! command -v "$c" >/dev/null 2>&1; then missing="$missing $c"; fi; done; if [ -n "$missing" ]; then echo "$missing"; exit 7; fi`

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := tr.Run(checkCtx, checkCmd)
	if err != nil {
		if missing := strings.TrimSpace(res.Stdout); missing != "" {
			return &missingSlurmCommandsError{
				source:  tr.Describe(),
				missing: missing,
			}
		}
		var runErr *transport.RunError
		if errors.As(err, &runErr) && runErr.Timeout {
			return fmt.Errorf("Slurm capability check timed out on %s; consider increasing --command-timeout", tr.Describe())
		}
		return fmt.Errorf("failed Slurm capability check on %s: %w", tr.Describe(), err)
	}
	return nil
}

func awaitSlurmAvailability(ctx context.Context, tr transport.Transport, timeout time.Duration) error {
	return awaitSlurmAvailabilityWithBackoff(ctx, tr, timeout, 1*time.Second, 30*time.Second)
}

func awaitSlurmAvailabilityWithBackoff(
	ctx context.Context,
	tr transport.Transport,
	timeout time.Duration,
	baseDelay time.Duration,
	maxDelay time.Duration,
) error {
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	delay := baseDelay
	for {
		err := checkSlurmAvailability(ctx, tr, timeout)
		if err == nil {
			return nil
		}
		if isMissingSlurmCommandError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Fprintf(
			os.Stderr,
			"gpumon: transient preflight failure on %s: %v; retrying in %s (Ctrl+C to stop)\n",
			tr.Describe(),
			err,
			delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func isMissingSlurmCommandError(err error) bool {
	if err == nil {
		return false
	}
	var missingErr *missingSlurmCommandsError
	return errors.As(err, &missingErr)
}

func runOnce(ctx context.Context, collector *slurm.Collector, dispatcher *sink.Dispatcher, source string) error {
	collectCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	snapshot, err := collector.Collect(collectCtx)
	if err != nil {
		return err
	}
	dispatcher.Dispatch(collectCtx, &snapshot)

	jobs, gpus := snapshot.Aggregates.QueueTotals()
	fmt.Fprintf(os.Stdout, "source: %s\n", source)
	fmt.Fprintf(os.Stdout, "collected_at: %s\n", snapshot.CollectedAt.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "gpu_nodes: %d\n", len(snapshot.GPUNodes()))
	fmt.Fprintf(os.Stdout, "queue: jobs=%d gpus=%d\n", jobs, gpus)

	fmt.Fprintln(os.Stdout, "types:")
	for _, s := range snapshot.Aggregates.GPUTypes {
		fmt.Fprintf(
			os.Stdout,
			"  - %s total=%d used=%d truly_available=%d nodes=%s used_pct=%s\n",
			s.Type,
			s.Total,
			s.Used,
			s.TrueAvailable,
			uifmt.Ratio(s.HealthyNodes(), s.Nodes),
			uifmt.Percent(s.UsagePercent(), s.Total > 0),
		)
	}
	fmt.Fprintf(os.Stdout, "total_gpus_available: %d\n", snapshot.Aggregates.TotalTrueAvailable())

	return nil
}
