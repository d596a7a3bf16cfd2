package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/config"
	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// ReputationStore is the ledger's persistence boundary, satisfied by
// repository.ReputationRepo.
type ReputationStore interface {
	Find(ctx context.Context, identityHash string) (*model.Reputation, error)
	CreateIfNotExists(ctx context.Context, identityHash string, baseline float64) error
	ApplyDelta(ctx context.Context, identityHash string, delta float64, outcome model.Outcome) error
	SetScore(ctx context.Context, identityHash string, score float64, at time.Time) error
	IncrementChallengesIssued(ctx context.Context, identityHash string) error
}

const lockStripes = 64

// ReputationService is the only writer of reputation state. Per-identity
// updates are serialized through striped locks in-process; the clamped SQL
// update is the guard across processes.
type ReputationService struct {
	store  ReputationStore
	policy config.RiskPolicy
	locks  [lockStripes]sync.Mutex
}

func NewReputationService(store ReputationStore, policy config.RiskPolicy) *ReputationService {
	return &ReputationService{store: store, policy: policy}
}

func (s *ReputationService) lock(identityHash string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(identityHash))
	return &s.locks[h.Sum32()%lockStripes]
}

// Get returns the reputation for an identity hash, lazily creating a neutral
// record and applying time-proportional decay toward the baseline when the
// identity has been dormant past the grace period. Dormant extremes must not
// permanently mis-score an identity.
func (s *ReputationService) Get(ctx context.Context, identityHash string) (model.Reputation, error) {
	mu := s.lock(identityHash)
	mu.Lock()
	defer mu.Unlock()

	rep, err := s.store.Find(ctx, identityHash)
	if err != nil {
		return model.Reputation{}, err
	}
	if rep == nil {
		if err := s.store.CreateIfNotExists(ctx, identityHash, s.policy.ScoreBaseline); err != nil {
			return model.Reputation{}, err
		}
		return model.Reputation{
			IdentityHash: identityHash,
			Score:        s.policy.ScoreBaseline,
			LastUpdated:  time.Now(),
		}, nil
	}

	if decayed, changed := s.decay(*rep, time.Now()); changed {
		if err := s.store.SetScore(ctx, identityHash, decayed.Score, decayed.LastUpdated); err != nil {
			return model.Reputation{}, err
		}
		return decayed, nil
	}
	return *rep, nil
}

// decay pulls the score toward the baseline proportionally to elapsed time
// past the grace period, capped at a full pull.
func (s *ReputationService) decay(rep model.Reputation, now time.Time) (model.Reputation, bool) {
	elapsed := now.Sub(rep.LastUpdated)
	if elapsed <= s.policy.DecayGracePeriod || s.policy.DecayPerDay == 0 {
		return rep, false
	}

	days := (elapsed - s.policy.DecayGracePeriod).Hours() / 24
	fraction := days * s.policy.DecayPerDay
	if fraction > 1 {
		fraction = 1
	}
	rep.Score += (s.policy.ScoreBaseline - rep.Score) * fraction
	rep.LastUpdated = now
	return rep, true
}

// ApplyOutcome maps an outcome to its bounded score delta and applies it.
// Clean-vote rewards honor the cooldown window so a burst of rapid votes
// cannot farm reputation; the clean-vote counter still advances.
func (s *ReputationService) ApplyOutcome(ctx context.Context, identityHash string, outcome model.Outcome) error {
	mu := s.lock(identityHash)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.CreateIfNotExists(ctx, identityHash, s.policy.ScoreBaseline); err != nil {
		return err
	}

	delta, err := s.delta(outcome)
	if err != nil {
		return err
	}

	if outcome == model.OutcomeCleanVote && delta > 0 {
		rep, err := s.store.Find(ctx, identityHash)
		if err != nil {
			return err
		}
		// The cooldown gates repeat rewards, not the first one: a freshly
		// created record has LastUpdated at creation time.
		if rep != nil && rep.CleanVotes > 0 && time.Since(rep.LastUpdated) < s.policy.RewardCooldown {
			delta = 0
		}
	}

	return s.store.ApplyDelta(ctx, identityHash, delta, outcome)
}

// NoteChallengeIssued records that a challenge was issued without moving the
// score; pass/fail outcomes move it later.
func (s *ReputationService) NoteChallengeIssued(ctx context.Context, identityHash string) error {
	if err := s.store.CreateIfNotExists(ctx, identityHash, s.policy.ScoreBaseline); err != nil {
		return err
	}
	return s.store.IncrementChallengesIssued(ctx, identityHash)
}

func (s *ReputationService) delta(outcome model.Outcome) (float64, error) {
	switch outcome {
	case model.OutcomeCleanVote:
		return s.policy.DeltaCleanVote, nil
	case model.OutcomeConfirmedFraud:
		return s.policy.DeltaFraud, nil
	case model.OutcomeChallengePassed:
		return s.policy.DeltaChallengeOK, nil
	case model.OutcomeChallengeFailed:
		return s.policy.DeltaChallengeBad, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", outcome)
}

// Baseline exposes the neutral score for fusion defaults.
func (s *ReputationService) Baseline() float64 {
	return s.policy.ScoreBaseline
}
