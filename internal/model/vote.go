package model

import "time"

// VoteAttempt is one request to the admission pipeline. IdentityID is the
// stable, verified subject resolved by the authentication collaborator; it
// never reaches storage, only its salted hash does.
type VoteAttempt struct {
	IdentityID    string
	PollID        string
	ChoiceID      string
	SourceAddress string
	Signals       ClientSignals

	// ChallengeID and ChallengeProof re-enter the pipeline after a
	// previously issued challenge was completed.
	ChallengeID    string
	ChallengeProof string
}

// VoteRequest is the API request body for submitting or evaluating a vote.
type VoteRequest struct {
	PollID         string        `json:"pollId"`
	ChoiceID       string        `json:"choiceId"`
	Signals        ClientSignals `json:"signals"`
	ChallengeID    string        `json:"challengeId,omitempty"`
	ChallengeProof string        `json:"challengeProof,omitempty"`
}

// EvaluateResponse is the API response for a dry-run risk evaluation.
type EvaluateResponse struct {
	Action        Action        `json:"action"`
	RiskLevel     string        `json:"riskLevel"`
	ChallengeType ChallengeType `json:"challengeType,omitempty"`
	ChallengeID   string        `json:"challengeId,omitempty"`
}

// AdmitResponse is the API response after a vote admission attempt. The
// decision that admitted the vote rides along for instrumentation but is
// never serialized to the caller.
type AdmitResponse struct {
	Success      bool      `json:"success"`
	AlreadyVoted bool      `json:"alreadyVoted"`
	Decision     *Decision `json:"-"`
}

// VoteTokenRecord is one row of the dedup-token table. There is deliberately
// no identity column; the token is the only link to the voter and is one-way.
type VoteTokenRecord struct {
	Token     string    `json:"-"`
	PollID    string    `json:"pollId"`
	ChoiceID  string    `json:"choiceId"`
	CreatedAt time.Time `json:"createdAt"`
}
