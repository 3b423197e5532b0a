package db

import (
	"context"
	"database/sql"
	"fmt"

	"travel-backoffice/logger"
)

// Migration is one versioned schema step. Apply runs inside the transaction that records it.
type Migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrationLockKey serialises concurrent migrators through pg_advisory_xact_lock.
const migrationLockKey = 7310452

// Migrations lists every schema step in order. Steps are idempotent on their own so a
// database created by the old bootstrap code converges to the same schema.
var Migrations = []Migration{
	{Version: 1, Name: "create_bookings", Apply: execAll(createBookingsTable)},
	{Version: 2, Name: "rename_legacy_razorpay_columns", Apply: renameLegacyBookingColumns},
	{Version: 3, Name: "booking_payment_indexes", Apply: execAll(bookingIndexes...)},
	{Version: 4, Name: "create_payment_webhooks", Apply: execAll(createPaymentWebhooksTable)},
	{Version: 5, Name: "create_dlq_messages", Apply: execAll(createDLQMessagesTable)},
	{Version: 6, Name: "create_leads", Apply: execAll(createLeadsTable)},
	{Version: 7, Name: "rekey_leads_to_integer_ids", Apply: rekeyLeadIDs},
}

// Migrate applies all pending Migrations.
func Migrate(ctx context.Context, conn *sql.DB) error {
	return migrate(ctx, conn, Migrations)
}

func migrate(ctx context.Context, conn *sql.DB, steps []Migration) error {
	if _, err := conn.ExecContext(ctx, createSchemaMigrationsTable); err != nil {
		return fmt.Errorf("error creating schema_migrations: %w", err)
	}

	for _, step := range steps {
		applied, err := applyMigration(ctx, conn, step)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", step.Version, step.Name, err)
		}
		if applied {
			logger.Info("Applied migration %d (%s)", step.Version, step.Name)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, step Migration) (bool, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("error acquiring migration lock: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", step.Version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking migration state: %w", err)
	}
	if exists {
		return false, nil
	}

	if err := step.Apply(ctx, tx); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", step.Version, step.Name); err != nil {
		return false, fmt.Errorf("error recording migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing migration: %w", err)
	}
	return true, nil
}

func execAll(statements ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	return exists, err
}

// renameLegacyBookingColumns moves tables created with the razorpay_* naming onto the typed
// columns. razorpay_order_id always held the payment-link id, never the provider order id.
func renameLegacyBookingColumns(ctx context.Context, tx *sql.Tx) error {
	renames := [][2]string{
		{"razorpay_order_id", "payment_link_id"},
		{"razorpay_payment_link", "payment_link_url"},
		{"razorpay_payment_id", "provider_payment_id"},
	}

	for _, r := range renames {
		legacy, err := columnExists(ctx, tx, "bookings", r[0])
		if err != nil {
			return err
		}
		if !legacy {
			continue
		}
		current, err := columnExists(ctx, tx, "bookings", r[1])
		if err != nil {
			return err
		}
		if current {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE bookings RENAME COLUMN %s TO %s", r[0], r[1])); err != nil {
			return err
		}
	}

	return execAll(
		`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS payment_link_id TEXT`,
		`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS provider_order_id TEXT`,
		`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS payment_link_url TEXT`,
		`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS provider_payment_id TEXT`,
		`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1`,
	)(ctx, tx)
}

// rekeyLeadIDs converts a uuid primary key on leads into a sequential integer, numbered by
// creation time. The old key is kept in legacy_uuid. No-op once leads.id is an integer.
func rekeyLeadIDs(ctx context.Context, tx *sql.Tx) error {
	var dataType string
	err := tx.QueryRowContext(ctx, `
		SELECT data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'leads' AND column_name = 'id'`).Scan(&dataType)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if dataType != "uuid" {
		return nil
	}

	return execAll(
		`ALTER TABLE leads RENAME COLUMN id TO legacy_uuid`,
		`ALTER TABLE leads DROP CONSTRAINT IF EXISTS leads_pkey`,
		`ALTER TABLE leads ADD COLUMN id BIGINT`,
		`WITH ordered AS (
			SELECT legacy_uuid, ROW_NUMBER() OVER (ORDER BY created_at, legacy_uuid) AS rn FROM leads
		)
		UPDATE leads l SET id = o.rn FROM ordered o WHERE l.legacy_uuid = o.legacy_uuid`,
		`CREATE SEQUENCE IF NOT EXISTS leads_id_seq OWNED BY leads.id`,
		`SELECT setval('leads_id_seq', COALESCE((SELECT MAX(id) FROM leads), 0) + 1, false)`,
		`ALTER TABLE leads ALTER COLUMN id SET DEFAULT nextval('leads_id_seq')`,
		`ALTER TABLE leads ALTER COLUMN id SET NOT NULL`,
		`ALTER TABLE leads ADD PRIMARY KEY (id)`,
	)(ctx, tx)
}

const createSchemaMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

const createBookingsTable = `
	CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		package_ref TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		travelers INTEGER NOT NULL DEFAULT 1,
		amount NUMERIC(12,2) NOT NULL,
		travel_date DATE,
		status TEXT NOT NULL DEFAULT 'Pending',
		payment_status TEXT NOT NULL DEFAULT 'Pending',
		booking_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

		CONSTRAINT bookings_status_check
			CHECK (status IN ('Pending', 'Confirmed', 'Cancelled')),
		CONSTRAINT bookings_payment_status_check
			CHECK (payment_status IN ('Pending', 'Paid', 'Failed')),
		CONSTRAINT bookings_paid_implies_confirmed
			CHECK (payment_status <> 'Paid' OR status = 'Confirmed')
	);`

var bookingIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_bookings_payment_link_id ON bookings (payment_link_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_provider_order_id ON bookings (provider_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings (created_at)`,
}

const createPaymentWebhooksTable = `
	CREATE TABLE IF NOT EXISTS payment_webhooks (
		id BIGSERIAL PRIMARY KEY,
		webhook_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		signature_valid BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'RECEIVED',
		retry_count INTEGER NOT NULL DEFAULT 0,
		booking_id BIGINT,
		error_message TEXT,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

const createDLQMessagesTable = `
	CREATE TABLE IF NOT EXISTS dlq_messages (
		id BIGSERIAL PRIMARY KEY,
		message_id UUID NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		key TEXT NOT NULL DEFAULT '',
		value JSONB NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 5,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ,
		last_retry_at TIMESTAMPTZ,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

const createLeadsTable = `
	CREATE TABLE IF NOT EXISTS leads (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		lead_source TEXT NOT NULL DEFAULT 'website',
		assigned_employee_id BIGINT,
		status TEXT NOT NULL DEFAULT 'NEW',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
