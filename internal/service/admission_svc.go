package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
	"github.com/KevinRabun/TruePulse-sub001/internal/repository"
	"github.com/KevinRabun/TruePulse-sub001/pkg/hash"
)

// PollDirectory is the poll/choice collaborator boundary. The platform owns
// poll storage; the engine only validates status and choice membership.
type PollDirectory interface {
	PollStatus(ctx context.Context, pollID string) (string, error)
	ChoiceBelongs(ctx context.Context, pollID, choiceID string) (bool, error)
}

// TokenStore persists dedup tokens, satisfied by repository.VoteRepo. The
// store's uniqueness constraint is the duplicate-vote guard.
type TokenStore interface {
	InsertToken(ctx context.Context, token, pollID, choiceID string) (repository.InsertResult, error)
	GetToken(ctx context.Context, token string) (*model.VoteTokenRecord, error)
	RetractToken(ctx context.Context, token string) (bool, error)
	CountForPoll(ctx context.Context, pollID string) (int, error)
}

// PollStatusActive is the only status accepting votes.
const PollStatusActive = "active"

// AdmissionService orchestrates one vote attempt end to end: collaborator
// validation, risk evaluation, challenge enforcement, and the deduplicated
// privacy-preserving vote write. Constructed once at startup; handlers share
// the instance.
type AdmissionService struct {
	engine     *RiskEngine
	tokens     TokenStore
	polls      PollDirectory
	ledger     *ReputationService
	challenges *ChallengeService
	outcomes   *OutcomeWorker

	tokenSecret  string
	identitySalt string
}

func NewAdmissionService(
	engine *RiskEngine,
	tokens TokenStore,
	polls PollDirectory,
	ledger *ReputationService,
	challenges *ChallengeService,
	outcomes *OutcomeWorker,
	tokenSecret, identitySalt string,
) *AdmissionService {
	return &AdmissionService{
		engine:       engine,
		tokens:       tokens,
		polls:        polls,
		ledger:       ledger,
		challenges:   challenges,
		outcomes:     outcomes,
		tokenSecret:  tokenSecret,
		identitySalt: identitySalt,
	}
}

// Evaluate runs validation and a scoring pass without admitting anything,
// issuing a challenge ticket when the decision calls for one. Used both as
// the dry-run API and as the first half of AdmitVote.
func (s *AdmissionService) Evaluate(ctx context.Context, attempt model.VoteAttempt) (*model.Decision, error) {
	if err := s.validate(ctx, attempt); err != nil {
		return nil, err
	}

	identityHash := hash.IdentityHash(attempt.IdentityID, s.identitySalt)

	opts := EvaluateOpts{}
	if attempt.ChallengeID != "" {
		ok, err := s.challenges.Verify(ctx, attempt.ChallengeID, identityHash, attempt.ChallengeProof, attempt.SourceAddress)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.outcomes.Enqueue(identityHash, model.OutcomeChallengeFailed)
			return nil, &ChallengeRejectedError{Reason: "verification failed"}
		}
		s.outcomes.Enqueue(identityHash, model.OutcomeChallengePassed)
		opts.ChallengeVerified = true
	}

	decision := s.engine.Evaluate(ctx, identityHash, attempt.Signals, attempt.SourceAddress, opts)

	if decision.Action == model.ActionChallenge {
		ch, err := s.challenges.Issue(ctx, identityHash, decision.ChallengeType)
		if err != nil {
			// No ticket means the challenge cannot be completed; for
			// this decision integrity trumps availability, so refuse.
			log.Error().Err(err).Str("audit_id", decision.AuditID).Msg("challenge issue failed, refusing vote")
			return nil, &FraudBlockedError{AuditID: decision.AuditID}
		}
		if err := s.ledger.NoteChallengeIssued(ctx, identityHash); err != nil {
			log.Warn().Err(err).Msg("challenge issue counter update failed")
		}
		return nil, &ChallengeRequiredError{ChallengeID: ch.ID, Type: ch.Type}
	}

	if decision.Action == model.ActionBlock {
		return nil, &FraudBlockedError{AuditID: decision.AuditID}
	}

	return &decision, nil
}

// AdmitVote runs the full pipeline. On ADMIT it derives the dedup token and
// inserts it; a conflict means this identity already voted on this poll and
// yields an idempotent alreadyVoted response, not an error. A successful
// admission reports CleanVote to the ledger asynchronously.
func (s *AdmissionService) AdmitVote(ctx context.Context, attempt model.VoteAttempt) (*model.AdmitResponse, error) {
	decision, err := s.Evaluate(ctx, attempt)
	if err != nil {
		return nil, err
	}

	// An aborted request must not record a vote or earn reputation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token := hash.VoteToken(attempt.IdentityID, attempt.PollID, s.tokenSecret)
	result, err := s.tokens.InsertToken(ctx, token, attempt.PollID, attempt.ChoiceID)
	if err != nil {
		return nil, err
	}

	if result == repository.AlreadyExists {
		return &model.AdmitResponse{Success: false, AlreadyVoted: true, Decision: decision}, nil
	}

	identityHash := hash.IdentityHash(attempt.IdentityID, s.identitySalt)
	s.outcomes.Enqueue(identityHash, model.OutcomeCleanVote)

	return &model.AdmitResponse{Success: true, Decision: decision}, nil
}

// RetractVote removes an admitted vote as part of an explicit moderation
// ruling and reports confirmed fraud to the ledger. The token is re-derived
// from the live identity; there is no reverse path from a stored token.
// Returns false when no vote was recorded for the (identity, poll) pair.
func (s *AdmissionService) RetractVote(ctx context.Context, identityID, pollID string) (bool, error) {
	if identityID == "" {
		return false, ErrIdentityMissing
	}

	token := hash.VoteToken(identityID, pollID, s.tokenSecret)

	rec, err := s.tokens.GetToken(ctx, token)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	removed, err := s.tokens.RetractToken(ctx, token)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	identityHash := hash.IdentityHash(identityID, s.identitySalt)
	s.outcomes.Enqueue(identityHash, model.OutcomeConfirmedFraud)

	log.Info().
		Str("poll_id", rec.PollID).
		Str("choice_id", rec.ChoiceID).
		Str("identity_hash", identityHash).
		Time("voted_at", rec.CreatedAt).
		Msg("vote retracted")
	return true, nil
}

// PollAdmissionCount reports how many votes a poll has admitted.
func (s *AdmissionService) PollAdmissionCount(ctx context.Context, pollID string) (int, error) {
	return s.tokens.CountForPoll(ctx, pollID)
}

// validate rejects malformed poll/choice references before scoring work.
func (s *AdmissionService) validate(ctx context.Context, attempt model.VoteAttempt) error {
	if attempt.IdentityID == "" {
		return ErrIdentityMissing
	}

	status, err := s.polls.PollStatus(ctx, attempt.PollID)
	if err != nil {
		return err
	}
	if status == "" {
		return ErrPollNotFound
	}
	if status != PollStatusActive {
		return ErrPollClosed
	}

	ok, err := s.polls.ChoiceBelongs(ctx, attempt.PollID, attempt.ChoiceID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrChoiceMismatch
	}
	return nil
}
