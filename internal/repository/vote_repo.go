package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// InsertResult distinguishes a fresh token insert from a duplicate. The
// uniqueness constraint on the token column is the source of truth; callers
// never pre-check then insert.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

type VoteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

// InsertToken records an admitted vote keyed by its dedup token. A conflict
// on the token means the (identity, poll) pair already voted; that is a
// normal outcome, not an error.
func (r *VoteRepo) InsertToken(ctx context.Context, token, pollID, choiceID string) (InsertResult, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO vote_tokens (token, poll_id, choice_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING`,
		token, pollID, choiceID)
	if err != nil {
		return AlreadyExists, err
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// GetToken returns the stored record for a token, or nil when no vote is
// recorded under it.
func (r *VoteRepo) GetToken(ctx context.Context, token string) (*model.VoteTokenRecord, error) {
	var rec model.VoteTokenRecord
	err := r.pool.QueryRow(ctx, `
		SELECT token, poll_id, choice_id, created_at
		FROM vote_tokens WHERE token = $1`, token).
		Scan(&rec.Token, &rec.PollID, &rec.ChoiceID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RetractToken deletes a token as part of an explicit, audited retraction.
// Returns true if a token was actually removed.
func (r *VoteRepo) RetractToken(ctx context.Context, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vote_tokens WHERE token = $1`, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountForPoll returns how many admitted votes a poll has.
func (r *VoteRepo) CountForPoll(ctx context.Context, pollID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vote_tokens WHERE poll_id = $1`, pollID).Scan(&n)
	return n, err
}
