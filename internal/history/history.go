// Package history persists snapshot aggregates to a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"gpumon/internal/slurm"
)

const schema = `
CREATE TABLE IF NOT EXISTS gpu_availability (
	timestamp      TEXT NOT NULL,
	gpu_type       TEXT NOT NULL,
	total          INTEGER NOT NULL,
	used           INTEGER NOT NULL,
	available      INTEGER NOT NULL,
	true_available INTEGER NOT NULL,
	nodes_total    INTEGER NOT NULL,
	nodes_healthy  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS user_usage (
	timestamp TEXT NOT NULL,
	user      TEXT NOT NULL,
	gpu_type  TEXT NOT NULL,
	gpu_count INTEGER NOT NULL,
	job_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS queue_status (
	timestamp        TEXT NOT NULL,
	gpu_type         TEXT NOT NULL,
	queued_jobs      INTEGER NOT NULL,
	queued_gpus      INTEGER NOT NULL,
	queued_gpu_hours REAL NOT NULL,
	unique_users     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS node_status (
	timestamp  TEXT NOT NULL,
	node_name  TEXT NOT NULL,
	state      TEXT NOT NULL,
	gpu_type   TEXT NOT NULL,
	total_gpus INTEGER NOT NULL,
	used_gpus  INTEGER NOT NULL
);
`

// DB is an append-only store of snapshot aggregates. Every table keyed by
// the snapshot timestamp, one write per refresh cycle.
type DB struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// The driver allows one writer at a time; a single connection keeps
	// schema creation and writes from racing into SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &DB{db: db, log: log}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// WriteSnapshot appends the snapshot's aggregates to all four tables in one
// transaction. Every row carries the snapshot's collection timestamp.
func (d *DB) WriteSnapshot(ctx context.Context, snapshot *slurm.Snapshot) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	ts := snapshot.CollectedAt.UTC().Format(time.RFC3339)

	for _, summary := range snapshot.Aggregates.GPUTypes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gpu_availability
				(timestamp, gpu_type, total, used, available, true_available, nodes_total, nodes_healthy)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ts, summary.Type, summary.Total, summary.Used, summary.Available(),
			summary.TrueAvailable, summary.Nodes, summary.HealthyNodes(),
		); err != nil {
			return fmt.Errorf("insert gpu availability: %w", err)
		}
	}

	for _, usage := range snapshot.Aggregates.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_usage (timestamp, user, gpu_type, gpu_count, job_count)
			VALUES (?, ?, ?, ?, ?)`,
			ts, usage.User, usage.GPUType, usage.GPUCount, usage.Jobs,
		); err != nil {
			return fmt.Errorf("insert user usage: %w", err)
		}
	}

	for _, queued := range snapshot.Aggregates.QueueTypes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_status
				(timestamp, gpu_type, queued_jobs, queued_gpus, queued_gpu_hours, unique_users)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ts, queued.GPUType, queued.Jobs, queued.GPUs, queued.GPUHours, queued.Users,
		); err != nil {
			return fmt.Errorf("insert queue status: %w", err)
		}
	}

	for _, node := range snapshot.GPUNodes() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO node_status (timestamp, node_name, state, gpu_type, total_gpus, used_gpus)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ts, node.Name, node.State, node.GPUType, node.GPUTotal, node.GPUUsed,
		); err != nil {
			return fmt.Errorf("insert node status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}
	d.log.Debug("wrote snapshot to history",
		zap.String("timestamp", ts),
		zap.Int("gpu_types", len(snapshot.Aggregates.GPUTypes)),
		zap.Int("users", len(snapshot.Aggregates.Users)))
	return nil
}

// AvailabilityPoint is one gpu_availability row read back from the database.
type AvailabilityPoint struct {
	Timestamp     time.Time
	GPUType       string
	Total         int
	Used          int
	Available     int
	TrueAvailable int
	NodesTotal    int
	NodesHealthy  int
}

// RecentAvailability returns availability rows at or after since, oldest
// first. An empty gpuType matches every type.
func (d *DB) RecentAvailability(ctx context.Context, gpuType string, since time.Time) ([]AvailabilityPoint, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT timestamp, gpu_type, total, used, available, true_available, nodes_total, nodes_healthy
		FROM gpu_availability
		WHERE timestamp >= ? AND (? = '' OR gpu_type = ?)
		ORDER BY timestamp`,
		since.UTC().Format(time.RFC3339), gpuType, gpuType)
	if err != nil {
		return nil, fmt.Errorf("query gpu availability: %w", err)
	}
	defer rows.Close()

	points := make([]AvailabilityPoint, 0)
	for rows.Next() {
		var point AvailabilityPoint
		var ts string
		if err := rows.Scan(&ts, &point.GPUType, &point.Total, &point.Used,
			&point.Available, &point.TrueAvailable, &point.NodesTotal, &point.NodesHealthy); err != nil {
			return nil, fmt.Errorf("scan gpu availability: %w", err)
		}
		point.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse availability timestamp: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read gpu availability: %w", err)
	}
	return points, nil
}
