package db

import (
	"context"
	"database/sql"
)

const sessionsMigration = `
CREATE TABLE IF NOT EXISTS telegram_sessions (
    session_id varchar(255) PRIMARY KEY,
    session_string text NOT NULL,
    api_id integer NOT NULL,
    api_hash varchar(255) NOT NULL,
    phone varchar(50),
    webhook_url text,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

ALTER TABLE telegram_sessions
ADD COLUMN IF NOT EXISTS webhook_url text;
`

func RunSessionsMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, sessionsMigration)
	return err
}
