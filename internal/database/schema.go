package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements bootstrap the tables on first start. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          BIGINT PRIMARY KEY,
		username    TEXT,
		full_name   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id          BIGSERIAL PRIMARY KEY,
		departure   TEXT NOT NULL,
		destination TEXT NOT NULL,
		cost        NUMERIC(12,2) NOT NULL CHECK (cost >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (departure, destination)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id             BIGSERIAL PRIMARY KEY,
		payment_method TEXT NOT NULL CHECK (payment_method IN ('manual', 'crypto')),
		invoice_id     BIGINT,
		pay_url        TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users(id),
		route_id    BIGINT REFERENCES routes(id) ON DELETE SET NULL,
		departure   TEXT NOT NULL,
		destination TEXT NOT NULL,
		travel_date TEXT NOT NULL,
		seat_class  TEXT NOT NULL CHECK (seat_class IN ('standard', 'business', 'sleeper')),
		quantity    INT NOT NULL CHECK (quantity BETWEEN 1 AND 10),
		unit_price  NUMERIC(12,2),
		total_price NUMERIC(12,2) CHECK (total_price >= 0),
		payment_id  BIGINT UNIQUE REFERENCES payments(id),
		status      TEXT NOT NULL CHECK (status IN ('unpaid', 'confirming', 'pending', 'paid', 'manual', 'cancelled', 'processed')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (status <> 'paid' OR payment_id IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings (user_id, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_created ON bookings (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS payment_audits (
		id             UUID PRIMARY KEY,
		booking_id     BIGINT,
		invoice_id     BIGINT,
		event_type     TEXT NOT NULL,
		event_source   TEXT NOT NULL,
		amount         NUMERIC(12,2),
		asset          TEXT,
		invoice_status TEXT,
		details        JSONB,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_audits_booking ON payment_audits (booking_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS regional_offers (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		advantages  TEXT NOT NULL,
		url         TEXT NOT NULL,
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_passes (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users(id),
		offer_id    BIGINT NOT NULL REFERENCES regional_offers(id),
		month       DATE NOT NULL,
		full_name   TEXT NOT NULL,
		age         INT NOT NULL CHECK (age > 0),
		post_code   TEXT NOT NULL,
		price       NUMERIC(12,2) NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('unpaid', 'paid', 'cancelled')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_passes_status ON monthly_passes (status, id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
