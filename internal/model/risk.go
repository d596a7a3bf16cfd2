package model

import "time"

// RiskLevel is the ordered classification produced by one scoring pass.
// It is a transient decision artifact, logged for audit but never persisted
// alongside a vote record.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// Action is the policy outcome of a risk evaluation.
type Action string

const (
	ActionAdmit     Action = "admit"
	ActionChallenge Action = "challenge"
	ActionBlock     Action = "block"
)

// ChallengeType identifies the secondary verification required before a
// medium/high-risk vote is admitted.
type ChallengeType string

const (
	ChallengeNone    ChallengeType = ""
	ChallengePoW     ChallengeType = "pow"
	ChallengeCaptcha ChallengeType = "captcha"
)

// SignalSnapshot captures the contributing signal values of one evaluation,
// for structured audit logging. It carries only hashes and coarse buckets;
// the audit log must never be joinable back to a stored vote record.
type SignalSnapshot struct {
	ReputationScore    float64
	BehaviorScore      float64
	FingerprintReuse   FingerprintReuse
	FingerprintHash    string
	IPCategory         IPCategory
	IPConfidence       float64
	ChallengeVerified  bool
	DegradedSignals    []string
}

// Decision is the fused output of the risk engine for one vote attempt.
type Decision struct {
	AuditID       string
	Level         RiskLevel
	Action        Action
	ChallengeType ChallengeType
	FusedScore    float64
	Snapshot      SignalSnapshot
	EvaluatedAt   time.Time
}
