package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
)

// ReadRepo lê challenges e reels do Postgres. pool_amount é NUMERIC(78,0),
// lido como texto para não perder precisão.
type ReadRepo struct {
	DB *sql.DB
}

func (r *ReadRepo) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	const q = `
		SELECT id, title, description, start_time, end_time, pool_amount::text,
		       reel_count, participant_count, status, COALESCE(winner_reel_id, '')
		FROM challenges
		WHERE id = $1
	`
	var c Challenge
	var pool, status string
	err := r.DB.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.Title, &c.Description, &c.StartTime, &c.EndTime, &pool,
		&c.ReelCount, &c.ParticipantCount, &status, &c.WinnerReelID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	if c.PoolAmount, err = parsePool(pool); err != nil {
		return Challenge{}, err
	}
	if c.Status, err = ParseStatus(status); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

func (r *ReadRepo) GetReel(ctx context.Context, id string) (Reel, error) {
	const q = `
		SELECT id, challenge_id, title, creator_name, pool_amount::text, votes
		FROM reels
		WHERE id = $1
	`
	var rl Reel
	var pool string
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&rl.ID, &rl.ChallengeID, &rl.Title, &rl.CreatorName, &pool, &rl.Votes)
	if errors.Is(err, sql.ErrNoRows) {
		return Reel{}, ErrNotFound
	}
	if err != nil {
		return Reel{}, err
	}
	if rl.PoolAmount, err = parsePool(pool); err != nil {
		return Reel{}, err
	}
	return rl, nil
}

// ListReels retorna os reels de um challenge ordenados por votos
func (r *ReadRepo) ListReels(ctx context.Context, challengeID string) ([]Reel, error) {
	const q = `
		SELECT id, challenge_id, title, creator_name, pool_amount::text, votes
		FROM reels
		WHERE challenge_id = $1
		ORDER BY votes DESC, id
	`
	rows, err := r.DB.QueryContext(ctx, q, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reel
	for rows.Next() {
		var rl Reel
		var pool string
		if err := rows.Scan(&rl.ID, &rl.ChallengeID, &rl.Title, &rl.CreatorName, &pool, &rl.Votes); err != nil {
			return nil, err
		}
		if rl.PoolAmount, err = parsePool(pool); err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

func parsePool(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid pool amount %q", s)
	}
	return v, nil
}
