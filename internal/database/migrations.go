package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order and never edited once released
var migrations = []migration{
	{
		version: 1,
		name:    "circulation schema",
		sql: `
CREATE TABLE branches (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    is_main    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX branches_single_main ON branches (is_main) WHERE is_main;

CREATE TABLE library_items (
    id               BIGSERIAL PRIMARY KEY,
    title            TEXT NOT NULL,
    category         TEXT NOT NULL CHECK (category IN ('Book', 'Video', 'Audiobook', 'Magazine', 'CD', 'Vinyl', 'Periodical')),
    publication_year INTEGER NOT NULL DEFAULT 0,
    description      TEXT NOT NULL DEFAULT '',
    is_new_release   BOOLEAN NOT NULL DEFAULT FALSE,
    details          JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX library_items_category ON library_items (category);

CREATE TABLE patrons (
    id                   BIGSERIAL PRIMARY KEY,
    first_name           TEXT NOT NULL,
    last_name            TEXT NOT NULL,
    email                TEXT NOT NULL DEFAULT '',
    balance              NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    card_expiration_date TIMESTAMPTZ NOT NULL,
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE item_copies (
    id                      BIGSERIAL PRIMARY KEY,
    library_item_id         BIGINT NOT NULL REFERENCES library_items (id),
    owning_branch_id        BIGINT NOT NULL REFERENCES branches (id),
    current_branch_id       BIGINT NOT NULL REFERENCES branches (id),
    status                  TEXT NOT NULL CHECK (status IN ('Available', 'CheckedOut', 'Reserved', 'Returned', 'Damaged', 'Lost')),
    condition               TEXT NOT NULL CHECK (condition IN ('New', 'Excellent', 'Good', 'Fair', 'Poor')),
    checked_out_by          BIGINT REFERENCES patrons (id),
    due_date                TIMESTAMPTZ,
    held_for_reservation_id BIGINT,
    held_for_patron_id      BIGINT REFERENCES patrons (id),
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT item_copies_checkout_fields CHECK (
        (status = 'CheckedOut' AND checked_out_by IS NOT NULL AND due_date IS NOT NULL)
        OR (status <> 'CheckedOut' AND checked_out_by IS NULL AND due_date IS NULL)
    )
);
CREATE INDEX item_copies_item ON item_copies (library_item_id);

CREATE TABLE transactions (
    id            BIGSERIAL PRIMARY KEY,
    copy_id       BIGINT NOT NULL,
    patron_id     BIGINT NOT NULL REFERENCES patrons (id),
    type          TEXT NOT NULL CHECK (type IN ('Checkout', 'Checkin', 'Renewal')),
    checkout_date TIMESTAMPTZ NOT NULL,
    due_date      TIMESTAMPTZ NOT NULL,
    return_date   TIMESTAMPTZ,
    fine_amount   NUMERIC(12, 2) NOT NULL DEFAULT 0,
    status        TEXT NOT NULL CHECK (status IN ('Active', 'Completed')),
    renewal_count INTEGER NOT NULL DEFAULT 0,
    parent_id     BIGINT REFERENCES transactions (id),
    notes         TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX transactions_single_active_checkout ON transactions (copy_id)
    WHERE status = 'Active' AND type = 'Checkout';
CREATE INDEX transactions_patron ON transactions (patron_id, status);

CREATE TABLE reservations (
    id              BIGSERIAL PRIMARY KEY,
    library_item_id BIGINT NOT NULL REFERENCES library_items (id),
    patron_id       BIGINT NOT NULL REFERENCES patrons (id),
    status          TEXT NOT NULL CHECK (status IN ('Pending', 'Fulfilled', 'Cancelled', 'Expired')),
    queue_position  INTEGER NOT NULL,
    expiry_date     TIMESTAMPTZ NOT NULL,
    copy_id         BIGINT,
    fulfilled_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX reservations_single_pending ON reservations (library_item_id, patron_id)
    WHERE status = 'Pending';
CREATE INDEX reservations_queue ON reservations (library_item_id, status, queue_position);

CREATE TABLE fines (
    id             BIGSERIAL PRIMARY KEY,
    transaction_id BIGINT NOT NULL REFERENCES transactions (id),
    patron_id      BIGINT NOT NULL REFERENCES patrons (id),
    amount         NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
    is_paid        BOOLEAN NOT NULL DEFAULT FALSE,
    paid_date      TIMESTAMPTZ,
    waived         BOOLEAN NOT NULL DEFAULT FALSE,
    waive_reason   TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX fines_patron ON fines (patron_id);
`,
	},
	{
		version: 2,
		name:    "unique pending queue positions",
		sql: `
CREATE UNIQUE INDEX reservations_pending_position ON reservations (library_item_id, queue_position)
    WHERE status = 'Pending';
`,
	},
}

const schemaMetaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SchemaVersion returns the highest applied migration, or 0 on an empty database
func (db *Database) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := db.Pool.Exec(ctx, schemaMetaDDL); err != nil {
		return 0, fmt.Errorf("failed to create schema_meta: %w", err)
	}
	var version int
	if err := db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// LatestSchemaVersion is the version Migrate brings a database to
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every pending migration, each in its own transaction, and
// returns how many were applied
func (db *Database) Migrate(ctx context.Context) (int, error) {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_meta (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
		}
		db.logger.Info("migration applied", "version", m.version, "name", m.name)
		applied++
	}
	return applied, nil
}
