// Package journal records session lifecycle events to PostgreSQL.
//
// Only lifecycle events are journaled (connect, disconnect, error,
// reconnecting). Message bodies never reach the database. Rows are
// appended in batches with pgx.Batch and flushed when the batch fills or
// on a fixed interval.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/imlink/internal/client"
	"github.com/rickgao/imlink/internal/event"
	"github.com/rickgao/imlink/internal/protocol"
)

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id          BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	uid         TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	code        INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT ''
)`

const insertSQL = `
	INSERT INTO session_events (occurred_at, uid, device_id, kind, code, detail)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// EnsureSchema creates the session_events table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create session_events: %w", err)
	}
	return nil
}

// Config controls batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Stats counts journal activity.
type Stats struct {
	Inserts int64
	Flushes int64
	Errors  int64
}

type row struct {
	OccurredAt time.Time
	Kind       string
	Code       int
	Detail     string
}

// Journal batches lifecycle rows for one session identity.
type Journal struct {
	cfg      Config
	db       DB
	uid      string
	deviceID string
	logger   *slog.Logger
	now      func() time.Time

	batch   []row
	batchMu sync.Mutex
	stats   Stats

	scope  *event.Scope
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Journal writing rows tagged with uid and deviceID.
func New(cfg Config, db DB, uid, deviceID string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Journal{
		cfg:      cfg,
		db:       db,
		uid:      uid,
		deviceID: deviceID,
		logger:   logger,
		now:      time.Now,
		batch:    make([]row, 0, cfg.BatchSize),
	}
}

// Attach subscribes to the lifecycle events of bus. Calling it again
// replaces the previous subscriptions.
func (j *Journal) Attach(bus *event.Bus) {
	if j.scope != nil {
		j.scope.Close()
	}
	j.scope = bus.NewScope()
	for _, kind := range []event.Kind{
		client.EventConnect,
		client.EventDisconnect,
		client.EventError,
		client.EventReconnecting,
	} {
		j.scope.Subscribe(kind, j.handleEvent)
	}
}

// Start begins the periodic flush loop.
func (j *Journal) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(j.cfg.FlushInterval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.flush(ctx)
			}
		}
	}()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop detaches from the bus, stops the flush loop and writes what is left.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping journal")

	if j.scope != nil {
		j.scope.Close()
	}
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
	}

	j.flush(ctx)
	j.logger.Info("journal stopped")
	return nil
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.stats
}

func (j *Journal) handleEvent(payload any) {
	r, ok := j.transform(payload)
	if !ok {
		j.logger.Debug("ignoring event payload", "type", fmt.Sprintf("%T", payload))
		return
	}

	j.batchMu.Lock()
	j.batch = append(j.batch, r)
	shouldFlush := len(j.batch) >= j.cfg.BatchSize
	j.batchMu.Unlock()

	if shouldFlush {
		j.flush(context.Background())
	}
}

// transform converts a lifecycle payload to a row.
func (j *Journal) transform(payload any) (row, bool) {
	r := row{OccurredAt: j.now().UTC()}
	switch p := payload.(type) {
	case protocol.ConnectResult:
		r.Kind = string(client.EventConnect)
		r.Code = p.ReasonCode
		r.Detail = fmt.Sprintf("time_diff=%dms", p.TimeDiff)
	case client.DisconnectInfo:
		r.Kind = string(client.EventDisconnect)
		r.Code = p.Code
		r.Detail = p.Reason
	case client.ErrorInfo:
		r.Kind = string(client.EventError)
		r.Code = int(p.Code)
		r.Detail = p.Message
	case client.ReconnectInfo:
		r.Kind = string(client.EventReconnecting)
		r.Code = p.Attempt
		r.Detail = "delay=" + p.Delay.String()
	default:
		return row{}, false
	}
	return r, true
}

func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}
	batch := j.batch
	j.batch = make([]row, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	// Stop flushes after its ctx may already be done.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if err := j.insert(ctx, batch); err != nil {
		j.logger.Error("journal insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.stats.Errors++
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.stats.Inserts += int64(len(batch))
	j.stats.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed session events", "count", len(batch), "duration", time.Since(start))
}

func (j *Journal) insert(ctx context.Context, rows []row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.OccurredAt, j.uid, j.deviceID, r.Kind, r.Code, r.Detail)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
