// Package store keeps the lifecycle event journal in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"service-nanny/internal/models"

	_ "modernc.org/sqlite"
)

const (
	DefaultRecent = 50
	MaxRecent     = 1000
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Journal is an append-only event log, pruned to the most recent retain entries.
type Journal struct {
	db     *sql.DB
	retain int
}

/**
 * Open the journal
 * @param {string} dsn - SQLite DSN, in-memory by default
 * @param {int} retain - Number of events kept, non-positive keeps everything
 * @returns {*Journal} Migrated journal
 */
func Open(dsn string, retain int) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// in-memory databases live only as long as their connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, retain: retain}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := j.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (j *Journal) Ping(ctx context.Context) error {
	if j.db == nil {
		return errors.New("db not initialized")
	}
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends ev and prunes entries beyond the retention limit.
func (j *Journal) Record(ctx context.Context, ev models.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, at, service, action, outcome, holder, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.At.UTC().Format(time.RFC3339Nano), ev.Service, string(ev.Action), string(ev.Outcome), ev.Holder, ev.Detail)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if j.retain > 0 {
		if _, err := j.db.ExecContext(ctx,
			`DELETE FROM events WHERE seq <= (SELECT MAX(seq) FROM events) - ?`, j.retain); err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, service, action, outcome, holder, detail FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			ev              models.Event
			at              string
			action, outcome string
		)
		if err := rows.Scan(&ev.ID, &at, &ev.Service, &action, &outcome, &ev.Holder, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		ev.Action = models.EventAction(action)
		ev.Outcome = models.EventOutcome(outcome)
		events = append(events, ev)
	}
	return events, rows.Err()
}
