package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"gpumon/internal/slurm"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSnapshot(at time.Time) *slurm.Snapshot {
	return &slurm.Snapshot{
		Nodes: []slurm.Node{
			{Name: "gpu01", State: "MIXED", GPUType: "a100", GPUTotal: 4, GPUUsed: 2, HasGPU: true},
			{Name: "cpu01", State: "IDLE"},
		},
		Aggregates: slurm.Aggregates{
			GPUTypes: []slurm.GPUTypeSummary{
				{Type: "a100", Total: 4, Used: 2, Nodes: 1, TrueAvailable: 2},
				{Type: "h100", Total: 8, Used: 8, Nodes: 1, DrainedNodes: 1, TrueAvailable: 0},
			},
			Users: []slurm.UserUsage{
				{User: "alice", GPUType: "a100", GPUCount: 2, Nodes: []string{"gpu01"}, Jobs: 1},
			},
			QueueTypes: []slurm.QueueTypeSummary{
				{GPUType: "a100", Jobs: 2, GPUs: 6, GPUHours: 12.5, Users: 2},
			},
		},
		CollectedAt: at,
	}
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var count int
	assert.NilError(t, db.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
	return count
}

func TestWriteSnapshotFillsAllTables(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at)))

	assert.Equal(t, countRows(t, db, "gpu_availability"), 2)
	assert.Equal(t, countRows(t, db, "user_usage"), 1)
	assert.Equal(t, countRows(t, db, "queue_status"), 1)
	// cpu01 carries no GPUs and must not produce a node_status row.
	assert.Equal(t, countRows(t, db, "node_status"), 1)

	var available, trueAvailable, nodesHealthy int
	assert.NilError(t, db.db.QueryRow(
		"SELECT available, true_available, nodes_healthy FROM gpu_availability WHERE gpu_type = 'a100'").
		Scan(&available, &trueAvailable, &nodesHealthy))
	assert.Equal(t, available, 2)
	assert.Equal(t, trueAvailable, 2)
	assert.Equal(t, nodesHealthy, 1)

	var gpuHours float64
	var uniqueUsers int
	assert.NilError(t, db.db.QueryRow(
		"SELECT queued_gpu_hours, unique_users FROM queue_status WHERE gpu_type = 'a100'").
		Scan(&gpuHours, &uniqueUsers))
	assert.Equal(t, gpuHours, 12.5)
	assert.Equal(t, uniqueUsers, 2)

	var state string
	assert.NilError(t, db.db.QueryRow(
		"SELECT state FROM node_status WHERE node_name = 'gpu01'").Scan(&state))
	assert.Equal(t, state, "MIXED")
}

func TestWriteSnapshotAppends(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at)))
	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at.Add(30*time.Second))))

	assert.Equal(t, countRows(t, db, "gpu_availability"), 4)
	assert.Equal(t, countRows(t, db, "node_status"), 2)
}

func TestOpenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	db, err := Open(path, nil)
	assert.NilError(t, err)
	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at)))
	assert.NilError(t, db.Close())

	db, err = Open(path, nil)
	assert.NilError(t, err)
	defer db.Close()
	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at.Add(time.Minute))))

	points, err := db.RecentAvailability(context.Background(), "a100", at)
	assert.NilError(t, err)
	assert.Equal(t, len(points), 2)
}

func TestRecentAvailabilityFilters(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at)))
	assert.NilError(t, db.WriteSnapshot(context.Background(), sampleSnapshot(at.Add(10*time.Minute))))

	points, err := db.RecentAvailability(context.Background(), "a100", at.Add(5*time.Minute))
	assert.NilError(t, err)
	assert.Equal(t, len(points), 1)
	assert.Equal(t, points[0].GPUType, "a100")
	assert.Assert(t, points[0].Timestamp.Equal(at.Add(10*time.Minute)))

	all, err := db.RecentAvailability(context.Background(), "", at)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 4)
	assert.Assert(t, all[0].Timestamp.Equal(at))
}
