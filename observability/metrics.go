// CLAUDE:SUMMARY Buffered SQLite timeseries for run metrics (case durations, diff pixel counts), flushed in batches through dbopen.
// Package observability records run metrics in SQLite instead of an external
// metrics stack.
//
// Metrics are buffered and written in batches by a background goroutine. The
// metrics database is separate from the result store so that flushes never
// contend with baseline writes.
//
// Usage:
//
//	m, err := observability.Open("results/metrics.db")
//	defer m.Close()
//	m.Record(&observability.Metric{Name: observability.CaseDuration, Value: 812, Unit: "milliseconds"})
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/shotdiff/dbopen"
)

// Metric names written by shotdiff.
const (
	CaseDuration = "case_duration_ms"
	DiffPixels   = "diff_pixels"
)

// Schema is the metrics table.
const Schema = `
CREATE TABLE IF NOT EXISTS metrics (
    metric_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL DEFAULT '',
    name      TEXT NOT NULL,
    ts        INTEGER NOT NULL,
    value     REAL NOT NULL,
    labels    TEXT,
    unit      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, ts DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics(run_id);
`

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	RunID     string
	Timestamp time.Time // zero means "when recorded"
	Value     float64
	Labels    map[string]string // e.g. class, method, result
	Unit      string            // "milliseconds", "pixels", "count"
}

// Recorder accepts metrics without blocking the caller.
type Recorder interface {
	Record(m *Metric)
}

// Metrics buffers datapoints and flushes them to SQLite.
type Metrics struct {
	db            *sql.DB
	log           *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Metric

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures Metrics.
type Option func(*Metrics)

// WithBufferSize flushes as soon as n metrics are queued. Default: 100.
func WithBufferSize(n int) Option { return func(m *Metrics) { m.bufferSize = n } }

// WithFlushInterval sets the periodic flush. Default: 5s.
func WithFlushInterval(d time.Duration) Option { return func(m *Metrics) { m.flushInterval = d } }

// WithLogger sets the logger for flush failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Metrics) { m.log = l } }

// Open opens (creating if needed) a metrics database at path.
func Open(path string, opts ...Option) (*Metrics, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("observability: open: %w", err)
	}
	return New(db, opts...), nil
}

// New starts a flusher on db, which must already carry Schema.
func New(db *sql.DB, opts ...Option) *Metrics {
	m := &Metrics{
		db:            db,
		log:           slog.Default(),
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.buffer = make([]*Metric, 0, m.bufferSize)
	go m.flushLoop()
	return m
}

// Record queues a metric. A full buffer is flushed synchronously.
func (m *Metrics) Record(mt *Metric) {
	if mt.Timestamp.IsZero() {
		mt.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, mt)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Flush writes every queued metric now.
func (m *Metrics) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Filter selects metrics in Query. Empty fields match everything.
type Filter struct {
	Name  string
	RunID string
	Since time.Time
	Limit int
}

// Query returns matching metrics, newest first.
func (m *Metrics) Query(ctx context.Context, f Filter) ([]*Metric, error) {
	q := "SELECT name, run_id, ts, value, labels, unit FROM metrics WHERE 1=1"
	var args []any
	if f.Name != "" {
		q += " AND name = ?"
		args = append(args, f.Name)
	}
	if f.RunID != "" {
		q += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		q += " AND ts >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	q += " ORDER BY ts DESC, metric_id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			mt     Metric
			ts     int64
			labels sql.NullString
		)
		if err := rows.Scan(&mt.Name, &mt.RunID, &ts, &mt.Value, &labels, &mt.Unit); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		mt.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			_ = json.Unmarshal([]byte(labels.String), &mt.Labels)
		}
		out = append(out, &mt)
	}
	return out, rows.Err()
}

// Cleanup deletes metrics older than before and returns the count removed.
func (m *Metrics) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, m.db, "DELETE FROM metrics WHERE ts < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is left, stops the flusher and closes the database.
func (m *Metrics) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
	return m.db.Close()
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	batch := m.buffer
	m.buffer = make([]*Metric, 0, m.bufferSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, m.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics (run_id, name, ts, value, labels, unit) VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, mt := range batch {
			var labels sql.NullString
			if len(mt.Labels) > 0 {
				if b, err := json.Marshal(mt.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, mt.RunID, mt.Name, mt.Timestamp.UnixMilli(), mt.Value, labels, mt.Unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.log.Error("observability: flush", "error", err, "dropped", len(batch))
	}
}
