package store

import (
	"context"
	"database/sql"

	"telegram-bridge/internal/db"
)

type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telegram_sessions
		(session_id, session_string, api_id, api_hash, phone, webhook_url, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET
			session_string = $2,
			api_id = $3,
			api_hash = $4,
			phone = NULLIF($5, ''),
			webhook_url = NULLIF($6, ''),
			updated_at = NOW()
	`, rec.SessionID, rec.SessionString, rec.APIID, rec.APIHash, rec.Phone, rec.WebhookURL)

	return err
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	var (
		rec     Record
		phone   sql.NullString
		webhook sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, session_string, api_id, api_hash, phone, webhook_url,
		       created_at, updated_at
		FROM telegram_sessions
		WHERE session_id = $1
	`, sessionID).Scan(
		&rec.SessionID,
		&rec.SessionString,
		&rec.APIID,
		&rec.APIHash,
		&phone,
		&webhook,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	rec.Phone = phone.String
	rec.WebhookURL = webhook.String

	return &rec, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, session_string, api_id, api_hash, phone, webhook_url,
		       created_at, updated_at
		FROM telegram_sessions
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			phone   sql.NullString
			webhook sql.NullString
		)

		if err := rows.Scan(
			&rec.SessionID,
			&rec.SessionString,
			&rec.APIID,
			&rec.APIHash,
			&phone,
			&webhook,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rec.Phone = phone.String
		rec.WebhookURL = webhook.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM telegram_sessions
		WHERE session_id = $1
	`, sessionID)

	return err
}
