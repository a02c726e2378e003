// Package monitor drives the periodic refresh cycle and holds the
// current snapshot for the rest of the process.
package monitor

import (
	"context"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"gpumon/internal/metrics"
	"gpumon/internal/slurm"
)

// State describes the freshness of the data the monitor is serving.
type State string

const (
	// StateLive means the last collection succeeded.
	StateLive State = "live"
	// StateDegraded means recent collections failed but the previous
	// snapshot is still being served.
	StateDegraded State = "degraded"
	// StateStale means collections have failed at least FailureThreshold
	// times in a row.
	StateStale State = "stale"
)

// Update is pushed to the UI after every cycle, successful or not.
type Update struct {
	Snapshot    *slurm.Snapshot
	State       State
	LastError   string
	LastSuccess time.Time
	Failures    int
}

// Collector produces one snapshot per call.
type Collector interface {
	Collect(ctx context.Context) (slurm.Snapshot, error)
}

// Dispatcher fans a freshly published snapshot out to the sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, snapshot *slurm.Snapshot)
}

type cycleState int

const (
	cycleIdle cycleState = iota
	cycleCollecting
	cyclePublishing
)

func (s cycleState) String() string {
	return [...]string{"Idle", "Collecting", "Publishing"}[s]
}

type cycleEvent int

const (
	eventCollect cycleEvent = iota
	eventPublish
	eventFail
	eventSettle
)

func (e cycleEvent) String() string {
	return [...]string{"Collect", "Publish", "Fail", "Settle"}[e]
}

func newCycleFSM(log *zap.Logger) *fsm.FSM {
	return fsm.NewFSM(
		cycleIdle.String(),
		fsm.Events{
			{Name: eventCollect.String(), Src: []string{cycleIdle.String()}, Dst: cycleCollecting.String()},
			{Name: eventPublish.String(), Src: []string{cycleCollecting.String()}, Dst: cyclePublishing.String()},
			{Name: eventFail.String(), Src: []string{cycleCollecting.String()}, Dst: cycleIdle.String()},
			{Name: eventSettle.String(), Src: []string{cyclePublishing.String()}, Dst: cycleIdle.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, event *fsm.Event) {
				log.Debug("refresh cycle transition",
					zap.String("source", event.Src),
					zap.String("destination", event.Dst),
					zap.String("event", event.Event))
			},
		},
	)
}

// Scheduler runs collections on a fixed cadence and publishes the results.
// A failed cycle keeps the previous snapshot in place; the tick cadence is
// the retry, so no extra backoff is layered on top.
type Scheduler struct {
	Collector        Collector
	Store            *Store
	Dispatcher       Dispatcher
	Interval         time.Duration
	FailureThreshold int
	Metrics          *metrics.Metrics
	Log              *zap.Logger

	cycle   *fsm.FSM
	trigger chan struct{}

	failures    int
	lastErr     string
	lastSuccess time.Time
}

func NewScheduler(collector Collector, store *Store, interval time.Duration) *Scheduler {
	return &Scheduler{
		Collector:        collector,
		Store:            store,
		Interval:         interval,
		FailureThreshold: 3,
		trigger:          make(chan struct{}, 1),
	}
}

// TriggerRefresh requests an immediate cycle without waiting for the next
// tick. Triggers arriving while a cycle is in flight coalesce into at most
// one queued follow-up.
func (s *Scheduler) TriggerRefresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives refresh cycles until ctx is cancelled. The first cycle runs
// immediately, then one per tick or manual trigger. The updates channel is
// closed on return.
func (s *Scheduler) Run(ctx context.Context, updates chan<- Update) {
	defer close(updates)

	if s.Interval <= 0 {
		s.Interval = 30 * time.Second
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.trigger == nil {
		s.trigger = make(chan struct{}, 1)
	}
	if s.cycle == nil {
		s.cycle = newCycleFSM(s.Log)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if !s.runCycle(ctx, updates) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, updates chan<- Update) bool {
	start := time.Now()
	s.fire(ctx, eventCollect)

	snapshot, err := s.Collector.Collect(ctx)
	if err != nil {
		s.fire(ctx, eventFail)
		if ctx.Err() != nil {
			return false
		}
		s.failures++
		s.lastErr = err.Error()
		s.Metrics.ObserveCycle(metrics.OutcomeFailure, time.Since(start))
		s.Log.Warn("collection failed, keeping previous snapshot",
			zap.Int("consecutive_failures", s.failures),
			zap.Error(err))
		return sendUpdate(ctx, updates, Update{
			Snapshot:    s.Store.Current(),
			State:       s.healthState(),
			LastError:   s.lastErr,
			LastSuccess: s.lastSuccess,
			Failures:    s.failures,
		})
	}

	s.fire(ctx, eventPublish)
	s.failures = 0
	s.lastErr = ""
	s.lastSuccess = snapshot.CollectedAt
	s.Store.Publish(&snapshot)
	s.Metrics.ObserveCycle(metrics.OutcomeSuccess, time.Since(start))
	s.Metrics.SetSnapshot(len(snapshot.GPUNodes()), len(snapshot.Queue))
	if s.Dispatcher != nil {
		s.Dispatcher.Dispatch(ctx, &snapshot)
	}
	s.fire(ctx, eventSettle)
	return sendUpdate(ctx, updates, Update{
		Snapshot:    &snapshot,
		State:       StateLive,
		LastSuccess: s.lastSuccess,
	})
}

func (s *Scheduler) healthState() State {
	if s.failures >= s.FailureThreshold {
		return StateStale
	}
	return StateDegraded
}

func (s *Scheduler) fire(ctx context.Context, event cycleEvent) {
	if err := s.cycle.Event(ctx, event.String()); err != nil {
		s.Log.Warn("unexpected refresh cycle transition",
			zap.Stringer("event", event),
			zap.String("current", s.cycle.Current()),
			zap.Error(err))
	}
}

func sendUpdate(ctx context.Context, updates chan<- Update, update Update) bool {
	select {
	case <-ctx.Done():
		return false
	case updates <- update:
		return true
	}
}
