package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// PostgresStore persists reminders in a `scheduler_reminders` table
// instead of a flat file, for deployments running more than one scheduler
// instance against shared state. Load/Save satisfy the Store interface
// (used by a single-instance Scheduler); ClaimDue additionally lets
// multiple instances race for the same due reminder without double-firing,
// mirroring the teacher's AcquireExecution contract.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn and verifies the
// schema is reachable. Callers are expected to have already applied the
// `scheduler_reminders` table migration.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns every reminder not yet fired, for Scheduler's startup
// reconciliation.
func (s *PostgresStore) Load() ([]models.ReminderDetails, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, fire_at, channel_ref, user_ref, created_at
		FROM scheduler_reminders
		WHERE fired_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending reminders: %w", err)
	}
	defer rows.Close()

	var out []models.ReminderDetails
	for rows.Next() {
		var r models.ReminderDetails
		if err := rows.Scan(&r.ID, &r.Content, &r.FireAt, &r.ChannelRef, &r.UserRef, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Save upserts the full in-memory snapshot. Rows for reminders no longer
// present (fired, cancelled) are left as they are: Save neither deletes
// them nor sets fired_at, and Scheduler does not call MarkFired, so such a
// row stays in Load's result until MarkFired is called for it.
func (s *PostgresStore) Save(events []models.ReminderDetails) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduler_reminders (id, content, fire_at, channel_ref, user_ref, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				fire_at = EXCLUDED.fire_at
		`, r.ID, r.Content, r.FireAt, r.ChannelRef, r.UserRef, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert reminder %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ClaimDue locks and returns up to limit due, unfired, unlocked reminders
// using SELECT FOR UPDATE SKIP LOCKED so concurrent scheduler instances
// never fire the same reminder twice.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lockFor time.Duration, limit int) ([]models.ReminderDetails, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, content, fire_at, channel_ref, user_ref, created_at
		FROM scheduler_reminders
		WHERE fired_at IS NULL
		  AND fire_at <= $1
		  AND (locked_until IS NULL OR locked_until < $1)
		ORDER BY fire_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due reminders: %w", err)
	}

	var claimed []models.ReminderDetails
	for rows.Next() {
		var r models.ReminderDetails
		if err := rows.Scan(&r.ID, &r.Content, &r.FireAt, &r.ChannelRef, &r.UserRef, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		claimed = append(claimed, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	lockUntil := now.Add(lockFor)
	for _, r := range claimed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE scheduler_reminders SET locked_until = $1 WHERE id = $2
		`, lockUntil, r.ID); err != nil {
			return nil, fmt.Errorf("lock reminder %s: %w", r.ID, err)
		}
	}

	return claimed, tx.Commit()
}

// MarkFired records successful at-most-once delivery.
func (s *PostgresStore) MarkFired(ctx context.Context, id string, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_reminders SET fired_at = $1, locked_until = NULL WHERE id = $2
	`, firedAt, id)
	if err != nil {
		return fmt.Errorf("mark reminder %s fired: %w", id, err)
	}
	return nil
}

// ReleaseClaim unlocks a reminder after a failed fire attempt so another
// pass (or instance) can retry it.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_reminders SET locked_until = NULL WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release reminder %s: %w", id, err)
	}
	return nil
}
