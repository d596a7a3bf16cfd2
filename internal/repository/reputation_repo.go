package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

type ReputationRepo struct {
	pool *pgxpool.Pool
}

func NewReputationRepo(pool *pgxpool.Pool) *ReputationRepo {
	return &ReputationRepo{pool: pool}
}

// Find returns the reputation record for an identity hash, or nil if the
// identity has never been scored. Lazy creation happens in the service.
func (r *ReputationRepo) Find(ctx context.Context, identityHash string) (*model.Reputation, error) {
	var rep model.Reputation
	err := r.pool.QueryRow(ctx, `
		SELECT identity_hash, score, clean_votes, fraud_penalties,
		       challenges_issued, challenges_passed, challenges_failed, last_updated
		FROM reputation
		WHERE identity_hash = $1`, identityHash).
		Scan(&rep.IdentityHash, &rep.Score, &rep.CleanVotes, &rep.FraudPenalties,
			&rep.ChallengesIssued, &rep.ChallengesPassed, &rep.ChallengesFailed, &rep.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// CreateIfNotExists inserts a neutral record for a new identity.
func (r *ReputationRepo) CreateIfNotExists(ctx context.Context, identityHash string, baseline float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reputation (identity_hash, score) VALUES ($1, $2)
		ON CONFLICT (identity_hash) DO NOTHING`, identityHash, baseline)
	return err
}

// ApplyDelta moves the score by delta, clamped to [0,100] inside the UPDATE
// so concurrent writers cannot push the stored value out of range, and bumps
// the named counter column.
func (r *ReputationRepo) ApplyDelta(ctx context.Context, identityHash string, delta float64, outcome model.Outcome) error {
	counter := counterColumn(outcome)
	_, err := r.pool.Exec(ctx, `
		UPDATE reputation
		SET score = LEAST(100, GREATEST(0, score + $2)),
		    `+counter+` = `+counter+` + 1,
		    last_updated = NOW()
		WHERE identity_hash = $1`, identityHash, delta)
	return err
}

// SetScore overwrites the score after a decay pass without touching counters.
func (r *ReputationRepo) SetScore(ctx context.Context, identityHash string, score float64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reputation
		SET score = LEAST(100, GREATEST(0, $2)), last_updated = $3
		WHERE identity_hash = $1`, identityHash, score, at)
	return err
}

// IncrementChallengesIssued counts an issued challenge without moving score.
func (r *ReputationRepo) IncrementChallengesIssued(ctx context.Context, identityHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reputation SET challenges_issued = challenges_issued + 1
		WHERE identity_hash = $1`, identityHash)
	return err
}

// counterColumn maps an outcome to its counter. Column names are fixed
// strings from this switch, never caller input.
func counterColumn(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomeCleanVote:
		return "clean_votes"
	case model.OutcomeConfirmedFraud:
		return "fraud_penalties"
	case model.OutcomeChallengePassed:
		return "challenges_passed"
	case model.OutcomeChallengeFailed:
		return "challenges_failed"
	}
	return "clean_votes"
}
