package model

import "time"

// Reputation is the decaying trust record for one durable identity, keyed by
// identity hash. Score lives in [0,100]; 50 is the neutral baseline. The
// score only moves through defined transitions applied by the ledger.
type Reputation struct {
	IdentityHash      string    `json:"identityHash"`
	Score             float64   `json:"score"`
	CleanVotes        int       `json:"cleanVotes"`
	FraudPenalties    int       `json:"fraudPenalties"`
	ChallengesIssued  int       `json:"challengesIssued"`
	ChallengesPassed  int       `json:"challengesPassed"`
	ChallengesFailed  int       `json:"challengesFailed"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Outcome is a reputation-affecting event reported to the ledger.
type Outcome string

const (
	OutcomeCleanVote       Outcome = "clean_vote"
	OutcomeConfirmedFraud  Outcome = "confirmed_fraud"
	OutcomeChallengePassed Outcome = "challenge_passed"
	OutcomeChallengeFailed Outcome = "challenge_failed"
)
