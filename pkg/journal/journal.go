// Package journal keeps a history of executed actions in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/gwillem/cyberdog/pkg/action"

	_ "modernc.org/sqlite"
)

// Status values stored per action.
const (
	StatusQueued   = "queued"
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

const backlog = 256

// Entry is one journaled action.
type Entry struct {
	ID         string
	Action     string
	Steps      int
	Speed      int
	Status     string
	Error      string
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the time the action spent executing, or zero if it never
// finished.
func (e Entry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Journal records executor events. Observe can be subscribed to an executor
// directly; the database writes happen on a background goroutine.
type Journal struct {
	logger golog.Logger

	mu sync.RWMutex
	db *sql.DB

	events  chan action.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string, logger golog.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if logger == nil {
		logger = golog.Global()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	j := &Journal{
		logger:  logger,
		db:      db,
		events:  make(chan action.Event, backlog),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

// Observe queues ev for recording. It never blocks; events are dropped when
// the writer falls behind.
func (j *Journal) Observe(ev action.Event) {
	select {
	case <-j.done:
		return
	default:
	}
	select {
	case j.events <- ev:
	default:
		j.logger.Warnw("journal backlog full, dropping event", "event", ev.Type, "id", ev.Command.ID)
	}
}

// Record writes ev synchronously. Suspended and Idle events carry no command
// and are ignored.
func (j *Journal) Record(ctx context.Context, ev action.Event) error {
	status, col := "", ""
	switch ev.Type {
	case action.Queued:
		status, col = StatusQueued, "queued_at"
	case action.Started:
		status, col = StatusStarted, "started_at"
	case action.Finished:
		status, col = StatusFinished, "finished_at"
		if ev.Err != nil {
			status = StatusFailed
		}
	case action.Canceled:
		status, col = StatusCanceled, "finished_at"
	default:
		return nil
	}

	db, err := j.getDB()
	if err != nil {
		return err
	}

	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}
	cmd := ev.Command
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO actions (id, action, steps, speed, status, error, %[1]s)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			%[1]s = excluded.%[1]s
	`, col), cmd.ID.String(), cmd.Kind.String(), cmd.Steps, cmd.Speed, status, errText, ev.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("record %s %s: %w", ev.Type, cmd.ID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	db, err := j.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, action, steps, speed, status, error, queued_at, started_at, finished_at
		FROM actions
		ORDER BY seq DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var queued, started, finished sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Action, &e.Steps, &e.Speed, &e.Status, &errText, &queued, &started, &finished); err != nil {
			return nil, err
		}
		e.Error = errText.String
		e.QueuedAt = fromMillis(queued)
		e.StartedAt = fromMillis(started)
		e.FinishedAt = fromMillis(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close flushes pending events and closes the database.
func (j *Journal) Close() error {
	j.once.Do(func() {
		close(j.done)
	})
	<-j.stopped

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func (j *Journal) writer() {
	defer close(j.stopped)
	for {
		select {
		case ev := <-j.events:
			j.write(ev)
		case <-j.done:
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(ev action.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Record(ctx, ev); err != nil {
		j.logger.Warnw("journal write failed", "error", err)
	}
}

func (j *Journal) getDB() (*sql.DB, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.db == nil {
		return nil, errors.New("journal is closed")
	}
	return j.db, nil
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS actions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			action TEXT NOT NULL,
			steps INTEGER NOT NULL,
			speed INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			queued_at INTEGER,
			started_at INTEGER,
			finished_at INTEGER
		);
	`)
	return err
}
