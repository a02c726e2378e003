// Package sink delivers published snapshots to their consumers: the
// history database and the webhook notifier.
package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gpumon/internal/metrics"
	"gpumon/internal/slurm"
)

// SnapshotWriter persists one snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snapshot *slurm.Snapshot) error
}

// Notifier pushes a snapshot summary to an external channel.
type Notifier interface {
	Send(ctx context.Context, snapshot *slurm.Snapshot) error
}

// Dispatcher fans published snapshots out to the configured sinks. A sink
// failure is logged and counted but never fails the refresh cycle or the
// other sinks. The scheduler is the only caller, so Dispatch does not need
// to be safe for concurrent use.
type Dispatcher struct {
	History        SnapshotWriter
	Notifier       Notifier
	NotifyInterval time.Duration
	Metrics        *metrics.Metrics
	Log            *zap.Logger

	now          func() time.Time
	lastNotified time.Time
}

func NewDispatcher(history SnapshotWriter, notifier Notifier, notifyInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		History:        history,
		Notifier:       notifier,
		NotifyInterval: notifyInterval,
		now:            time.Now,
	}
}

// Dispatch delivers the snapshot to every configured sink.
func (d *Dispatcher) Dispatch(ctx context.Context, snapshot *slurm.Snapshot) {
	if d.now == nil {
		d.now = time.Now
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	if d.History != nil {
		if err := d.History.WriteSnapshot(ctx, snapshot); err != nil {
			d.Metrics.SinkError("history")
			log.Warn("history write failed", zap.Error(err))
		}
	}

	if d.Notifier == nil {
		return
	}
	now := d.now()
	if !d.lastNotified.IsZero() && now.Sub(d.lastNotified) < d.NotifyInterval {
		return
	}
	// The gate advances before the send; a failed delivery waits out the
	// full interval instead of retrying on the next cycle.
	d.lastNotified = now
	if err := d.Notifier.Send(ctx, snapshot); err != nil {
		d.Metrics.SinkError("webhook")
		log.Warn("notification failed", zap.Error(err))
	}
}
