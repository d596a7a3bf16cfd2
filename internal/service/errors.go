package service

import (
	"errors"
	"fmt"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// Caller-visible outcomes of the admission pipeline. Signal-source failures
// are absorbed into safe defaults before any of these are raised, and none
// of them reveal which signal drove a decision.
var (
	// ErrPollNotFound and friends reject malformed references before any
	// scoring work happens.
	ErrPollNotFound    = errors.New("poll not found")
	ErrPollClosed      = errors.New("poll is not open for voting")
	ErrChoiceMismatch  = errors.New("choice does not belong to poll")
	ErrIdentityMissing = errors.New("identity is required")
)

// FraudBlockedError is returned for a BLOCK decision. The message is
// deliberately generic: exposing the triggering signal would let an
// adversary probe the detector.
type FraudBlockedError struct {
	AuditID string
}

func (e *FraudBlockedError) Error() string {
	return "vote refused by integrity checks"
}

// ChallengeRequiredError is returned for a CHALLENGE decision. It carries
// the issued challenge so the caller can complete it and resubmit.
type ChallengeRequiredError struct {
	ChallengeID string
	Type        model.ChallengeType
}

func (e *ChallengeRequiredError) Error() string {
	return fmt.Sprintf("secondary verification required (%s)", e.Type)
}

// ChallengeRejectedError is returned when a supplied challenge proof does
// not verify: wrong solution, expired ticket, or reuse.
type ChallengeRejectedError struct {
	Reason string
}

func (e *ChallengeRejectedError) Error() string {
	return "challenge verification failed"
}
