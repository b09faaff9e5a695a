package slot

import (
	"context"
	"database/sql"
	"errors"
)

// Postgres guarda os slots na tabela ledger_slots
//
//	CREATE TABLE ledger_slots (
//	  key        TEXT PRIMARY KEY,
//	  blob       TEXT NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var blob string
	err := p.db.QueryRowContext(ctx, `SELECT blob FROM ledger_slots WHERE key=$1`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(blob), true, nil
}

// Write faz upsert do blob; última escrita vence
func (p *Postgres) Write(ctx context.Context, key string, blob []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ledger_slots (key, blob, updated_at)
		VALUES ($1,$2,NOW())
		ON CONFLICT (key) DO UPDATE SET
		  blob       = EXCLUDED.blob,
		  updated_at = EXCLUDED.updated_at`,
		key, string(blob),
	)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM ledger_slots WHERE key=$1`, key)
	return err
}
