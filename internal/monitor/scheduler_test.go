package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gpumon/internal/slurm"
)

type collectStep struct {
	snapshot slurm.Snapshot
	err      error
}

type scriptedCollector struct {
	mu       sync.Mutex
	position int
	steps    []collectStep
}

func (s *scriptedCollector) Collect(context.Context) (slurm.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position >= len(s.steps) {
		return slurm.Snapshot{}, errors.New("exhausted")
	}
	step := s.steps[s.position]
	s.position++
	return step.snapshot, step.err
}

type recordingDispatcher struct {
	mu        sync.Mutex
	snapshots []*slurm.Snapshot
}

func (d *recordingDispatcher) Dispatch(_ context.Context, snapshot *slurm.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, snapshot)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snapshots)
}

func TestStorePublishAndCurrent(t *testing.T) {
	store := NewStore()
	if store.Current() != nil {
		t.Fatalf("expected empty store before first publish")
	}

	snapshot := &slurm.Snapshot{CollectedAt: time.Now()}
	store.Publish(snapshot)
	if store.Current() != snapshot {
		t.Fatalf("expected the published snapshot back")
	}
}

func TestSchedulerPublishesAndDispatches(t *testing.T) {
	now := time.Now()
	sc := &scriptedCollector{
		steps: []collectStep{
			{snapshot: slurm.Snapshot{CollectedAt: now}},
		},
	}
	dispatcher := &recordingDispatcher{}
	store := NewStore()

	sched := NewScheduler(sc, store, time.Hour)
	sched.Dispatcher = dispatcher

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	updates := make(chan Update, 4)
	go sched.Run(ctx, updates)

	update := <-updates
	cancel()

	if update.State != StateLive {
		t.Fatalf("expected live state, got %s", update.State)
	}
	if update.Snapshot == nil || !update.Snapshot.CollectedAt.Equal(now) {
		t.Fatalf("expected the collected snapshot in the update")
	}
	if !update.LastSuccess.Equal(now) {
		t.Fatalf("expected last success %v, got %v", now, update.LastSuccess)
	}
	current := store.Current()
	if current == nil || !current.CollectedAt.Equal(now) {
		t.Fatalf("expected the snapshot to be published")
	}
	if dispatcher.count() != 1 {
		t.Fatalf("expected one dispatch, got %d", dispatcher.count())
	}
	if dispatcher.snapshots[0] != current {
		t.Fatalf("expected the dispatcher to receive the published snapshot")
	}
}

func TestSchedulerKeepsPreviousSnapshotOnFailure(t *testing.T) {
	now := time.Now()
	sc := &scriptedCollector{
		steps: []collectStep{
			{snapshot: slurm.Snapshot{CollectedAt: now}},
			{err: errors.New("node report: connection refused")},
			{err: errors.New("node report: connection refused")},
			{err: errors.New("node report: connection refused")},
		},
	}
	store := NewStore()
	sched := NewScheduler(sc, store, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := make(chan Update, 16)
	go sched.Run(ctx, updates)

	var got []Update
	for update := range updates {
		got = append(got, update)
		if len(got) >= 4 {
			cancel()
		}
	}

	if len(got) < 4 {
		t.Fatalf("expected at least 4 updates, got %d", len(got))
	}
	states := []State{got[0].State, got[1].State, got[2].State, got[3].State}
	want := []State{StateLive, StateDegraded, StateDegraded, StateStale}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}

	for _, update := range got[1:4] {
		if update.Snapshot == nil || !update.Snapshot.CollectedAt.Equal(now) {
			t.Fatalf("expected failed cycles to keep serving the previous snapshot")
		}
		if update.LastError == "" {
			t.Fatalf("expected failed cycles to carry the error")
		}
		if !update.LastSuccess.Equal(now) {
			t.Fatalf("expected last success to stay at %v, got %v", now, update.LastSuccess)
		}
	}
	if got[3].Failures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", got[3].Failures)
	}

	current := store.Current()
	if current == nil || !current.CollectedAt.Equal(now) {
		t.Fatalf("expected the store to keep the last good snapshot")
	}
}

func TestSchedulerRecoversAfterFailure(t *testing.T) {
	now := time.Now()
	sc := &scriptedCollector{
		steps: []collectStep{
			{err: errors.New("job report: exit status 1")},
			{snapshot: slurm.Snapshot{CollectedAt: now}},
		},
	}
	store := NewStore()
	sched := NewScheduler(sc, store, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := make(chan Update, 16)
	go sched.Run(ctx, updates)

	var got []Update
	for update := range updates {
		got = append(got, update)
		if len(got) >= 2 {
			cancel()
		}
	}

	if len(got) < 2 {
		t.Fatalf("expected at least 2 updates, got %d", len(got))
	}
	if got[0].State != StateDegraded {
		t.Fatalf("expected degraded before any success, got %s", got[0].State)
	}
	if got[0].Snapshot != nil {
		t.Fatalf("expected no snapshot before the first success")
	}
	if got[0].Failures != 1 {
		t.Fatalf("expected one failure, got %d", got[0].Failures)
	}
	if got[1].State != StateLive {
		t.Fatalf("expected recovery to publish live, got %s", got[1].State)
	}
	if got[1].Failures != 0 {
		t.Fatalf("expected recovery to reset the failure count, got %d", got[1].Failures)
	}
}

type blockingCollector struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingCollector) Collect(ctx context.Context) (slurm.Snapshot, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return slurm.Snapshot{CollectedAt: time.Now()}, nil
}

func (b *blockingCollector) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestManualTriggersCoalesce(t *testing.T) {
	bc := &blockingCollector{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := NewStore()
	sched := NewScheduler(bc, store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Update, 16)
	go sched.Run(ctx, updates)

	// First cycle is in flight. Both triggers land while it runs, so they
	// must collapse into a single follow-up cycle.
	<-bc.started
	sched.TriggerRefresh()
	sched.TriggerRefresh()
	bc.release <- struct{}{}

	select {
	case <-bc.started:
	case <-time.After(time.Second):
		t.Fatalf("expected the coalesced trigger to start a follow-up cycle")
	}
	bc.release <- struct{}{}

	select {
	case <-bc.started:
		t.Fatalf("expected no third cycle without a tick or trigger")
	case <-time.After(50 * time.Millisecond):
	}
	if bc.callCount() != 2 {
		t.Fatalf("expected exactly 2 collections, got %d", bc.callCount())
	}

	cancel()
	for range updates {
	}
}
