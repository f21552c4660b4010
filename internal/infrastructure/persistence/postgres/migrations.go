package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns applied versions with their timestamps.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_donors", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_blood_requests", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE DONORS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Donor profiles are registered elsewhere; this service reads them and
-- writes last_donation_date, avg_rating and rating_count on completion.
CREATE TABLE IF NOT EXISTS donors (
    id TEXT PRIMARY KEY,
    blood_group VARCHAR(3) NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    last_donation_date TIMESTAMP WITH TIME ZONE,
    avg_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    rating_count INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_blood_group CHECK (blood_group IN ('A+','A-','B+','B-','AB+','AB-','O+','O-')),
    CONSTRAINT valid_donor_status CHECK (status IN ('active', 'suspended')),
    CONSTRAINT valid_rating_count CHECK (rating_count >= 0),
    CONSTRAINT valid_avg_rating CHECK (
        (rating_count = 0 AND avg_rating = 0) OR
        (rating_count > 0 AND avg_rating >= 1 AND avg_rating <= 5)
    )
);

CREATE INDEX IF NOT EXISTS idx_donors_search
    ON donors(blood_group, avg_rating DESC, id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_donors_last_donation
    ON donors(last_donation_date) WHERE status = 'active';
`

const migration001Down = `
DROP TABLE IF EXISTS donors;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE BLOOD REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS blood_requests (
    id TEXT PRIMARY KEY,
    requester_id TEXT NOT NULL,
    donor_id TEXT NOT NULL REFERENCES donors(id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    note TEXT NOT NULL DEFAULT '',
    rating SMALLINT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_request_status CHECK (status IN ('pending','accepted','rejected','cancelled','completed')),
    CONSTRAINT no_self_request CHECK (requester_id <> donor_id),
    CONSTRAINT valid_rating CHECK (rating IS NULL OR (rating BETWEEN 1 AND 5)),
    CONSTRAINT rating_only_when_completed CHECK ((status = 'completed') = (rating IS NOT NULL))
);

-- At most one pending request per (requester, donor) pair.
CREATE UNIQUE INDEX IF NOT EXISTS uq_blood_requests_pending_pair
    ON blood_requests(requester_id, donor_id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_blood_requests_donor ON blood_requests(donor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_blood_requests_requester ON blood_requests(requester_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS blood_requests;
`
