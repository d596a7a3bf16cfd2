package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The vote-token table is the sole duplicate-vote guard: uniqueness on the
// token column is enforced here, not by application-level checks. There is
// no identity column anywhere in the vote path.
const schema = `
CREATE TABLE IF NOT EXISTS vote_tokens (
    token      VARCHAR(64) PRIMARY KEY,
    poll_id    VARCHAR(64) NOT NULL,
    choice_id  VARCHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vote_tokens_poll ON vote_tokens (poll_id);

CREATE TABLE IF NOT EXISTS reputation (
    identity_hash      VARCHAR(64) PRIMARY KEY,
    score              DOUBLE PRECISION NOT NULL,
    clean_votes        INTEGER NOT NULL DEFAULT 0,
    fraud_penalties    INTEGER NOT NULL DEFAULT 0,
    challenges_issued  INTEGER NOT NULL DEFAULT 0,
    challenges_passed  INTEGER NOT NULL DEFAULT 0,
    challenges_failed  INTEGER NOT NULL DEFAULT 0,
    last_updated       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the engine's tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
