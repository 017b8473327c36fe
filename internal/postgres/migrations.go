package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS restaurants (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	open_hour INT NOT NULL DEFAULT 11,
	close_hour INT NOT NULL DEFAULT 22,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS restaurant_tables (
	restaurant_id UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	table_type TEXT NOT NULL,
	total_count INT NOT NULL CHECK (total_count >= 0),
	PRIMARY KEY (restaurant_id, table_type)
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	restaurant_id UUID NOT NULL REFERENCES restaurants(id),
	date DATE NOT NULL,
	slot_time TEXT NOT NULL,
	table_type TEXT NOT NULL,
	number_of_guests INT NOT NULL,
	special_requests TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reservations_slot
	ON reservations(restaurant_id, date, slot_time, table_type) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS slot_ledger (
	restaurant_id UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	date DATE NOT NULL,
	slot_time TEXT NOT NULL,
	table_type TEXT NOT NULL,
	consumed INT NOT NULL DEFAULT 0 CHECK (consumed >= 0),
	PRIMARY KEY (restaurant_id, date, slot_time, table_type)
);
`

// Migrate applies the schema. Statements are idempotent so it is safe to run
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
