package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PollRepo is a read-only adapter over the platform's poll tables. Polls and
// choices are owned by the platform's CRUD layer; the engine only needs
// status and choice membership, validated before any scoring work.
type PollRepo struct {
	pool *pgxpool.Pool
}

func NewPollRepo(pool *pgxpool.Pool) *PollRepo {
	return &PollRepo{pool: pool}
}

// PollStatus returns the poll's lifecycle status, e.g. "active" or "closed".
func (r *PollRepo) PollStatus(ctx context.Context, pollID string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM polls WHERE poll_id = $1`, pollID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return status, err
}

// ChoiceBelongs reports whether the choice is one of the poll's options.
func (r *PollRepo) ChoiceBelongs(ctx context.Context, pollID, choiceID string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM poll_choices WHERE poll_id = $1 AND choice_id = $2`,
		pollID, choiceID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
