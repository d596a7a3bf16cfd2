package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KevinRabun/TruePulse-sub001/internal/config"
	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// Signal source boundaries, narrow so tests can substitute each one.
type fingerprintSource interface {
	Compute(raw model.ClientSignals) model.DeviceFingerprint
	Record(ctx context.Context, fp model.DeviceFingerprint, identityHash string) error
	ScoreReuse(ctx context.Context, fp model.DeviceFingerprint) (model.FingerprintReuse, error)
}

type behaviorSource interface {
	Score(sig model.BehavioralSignals) float64
}

type intelSource interface {
	Classify(ctx context.Context, address string) model.IPIntelligence
}

type reputationSource interface {
	Get(ctx context.Context, identityHash string) (model.Reputation, error)
	Baseline() float64
}

// RiskEngine fuses the four signal sources into a RiskLevel and action. It
// is stateless across attempts; all durable state lives in the ledger and
// the caches. Constructed once at startup with validated policy.
type RiskEngine struct {
	fingerprints fingerprintSource
	behavior     behaviorSource
	intel        intelSource
	reputation   reputationSource
	policy       config.RiskPolicy
	policyOK     bool
}

func NewRiskEngine(
	fingerprints fingerprintSource,
	behavior behaviorSource,
	intel intelSource,
	reputation reputationSource,
	policy config.RiskPolicy,
) (*RiskEngine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RiskEngine{
		fingerprints: fingerprints,
		behavior:     behavior,
		intel:        intel,
		reputation:   reputation,
		policy:       policy,
		policyOK:     true,
	}, nil
}

// EvaluateOpts carries cross-request context folded into one scoring pass.
type EvaluateOpts struct {
	// ChallengeVerified is set when the attempt re-enters the pipeline
	// carrying a freshly verified challenge completion.
	ChallengeVerified bool
}

// Evaluate runs one scoring pass: gather the signals concurrently under the
// fusion deadline, substitute safe defaults for anything late or failed,
// fuse, and map to an action. A broken fusion configuration fails closed to
// BLOCK: for this decision, integrity trumps availability.
func (e *RiskEngine) Evaluate(ctx context.Context, identityHash string, signals model.ClientSignals, sourceAddress string, opts EvaluateOpts) model.Decision {
	auditID := uuid.NewString()

	if !e.policyOK {
		log.Error().Str("audit_id", auditID).Msg("risk policy unavailable, failing closed")
		return model.Decision{
			AuditID:     auditID,
			Level:       model.RiskCritical,
			Action:      model.ActionBlock,
			FusedScore:  1,
			EvaluatedAt: time.Now(),
		}
	}

	fp := e.fingerprints.Compute(signals)
	snapshot := e.gather(ctx, identityHash, fp, signals, sourceAddress)
	snapshot.ChallengeVerified = opts.ChallengeVerified
	snapshot.FingerprintHash = fp.Hash

	// Register this attempt in the reuse windows regardless of outcome;
	// farms are visible across attempts, not within one.
	go func() {
		recCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.fingerprints.Record(recCtx, fp, identityHash); err != nil {
			log.Debug().Err(err).Msg("fingerprint window record failed")
		}
	}()

	fused := e.fuse(snapshot)
	level := e.level(fused, snapshot)
	action, challengeType := e.action(level, opts.ChallengeVerified)

	decision := model.Decision{
		AuditID:       auditID,
		Level:         level,
		Action:        action,
		ChallengeType: challengeType,
		FusedScore:    fused,
		Snapshot:      snapshot,
		EvaluatedAt:   time.Now(),
	}

	e.audit(decision)
	return decision
}

// gather runs the signal lookups concurrently and joins them at the fusion
// deadline. Late signals keep their safe defaults: IP unknown, reuse zero,
// behavior neutral, reputation at the ledger baseline.
func (e *RiskEngine) gather(ctx context.Context, identityHash string, fp model.DeviceFingerprint, signals model.ClientSignals, sourceAddress string) model.SignalSnapshot {
	gatherCtx, cancel := context.WithTimeout(ctx, e.policy.FusionDeadline)
	defer cancel()

	var mu sync.Mutex
	snapshot := model.SignalSnapshot{
		ReputationScore:  e.reputation.Baseline(),
		BehaviorScore:    NeutralBehaviorScore,
		FingerprintReuse: model.FingerprintReuse{},
		IPCategory:       model.IPUnknown,
		IPConfidence:     0,
		DegradedSignals:  []string{"reputation", "fingerprint", "ip"},
	}
	arrived := func(name string) {
		for i, s := range snapshot.DegradedSignals {
			if s == name {
				snapshot.DegradedSignals = append(snapshot.DegradedSignals[:i], snapshot.DegradedSignals[i+1:]...)
				return
			}
		}
	}

	// Behavior scoring is pure and immediate.
	snapshot.BehaviorScore = e.behavior.Score(model.BehavioralFromClient(signals))

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		rep, err := e.reputation.Get(gatherCtx, identityHash)
		mu.Lock()
		defer mu.Unlock()
		if gatherCtx.Err() != nil || err != nil {
			return
		}
		snapshot.ReputationScore = rep.Score
		arrived("reputation")
	}()

	go func() {
		defer wg.Done()
		reuse, err := e.fingerprints.ScoreReuse(gatherCtx, fp)
		mu.Lock()
		defer mu.Unlock()
		if gatherCtx.Err() != nil || err != nil {
			return
		}
		snapshot.FingerprintReuse = reuse
		arrived("fingerprint")
	}()

	go func() {
		defer wg.Done()
		intel := e.intel.Classify(gatherCtx, sourceAddress)
		mu.Lock()
		defer mu.Unlock()
		if gatherCtx.Err() != nil {
			return
		}
		snapshot.IPCategory = intel.Category
		snapshot.IPConfidence = intel.Confidence
		arrived("ip")
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gatherCtx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := snapshot
	out.DegradedSignals = append([]string(nil), snapshot.DegradedSignals...)
	return out
}

// Neutral component risk for a signal that tells us nothing.
const neutralIPRisk = 0.3

var ipCategoryRisk = map[model.IPCategory]float64{
	model.IPResidential: 0.05,
	model.IPUnknown:     neutralIPRisk,
	model.IPDatacenter:  0.6,
	model.IPVPNProxy:    0.75,
	model.IPTor:         0.9,
}

// fuse combines the signal snapshot into one risk score in [0,1], 1 being
// worst. Each component is normalized to [0,1] first, then weighted.
func (e *RiskEngine) fuse(s model.SignalSnapshot) float64 {
	repRisk := clamp01(1 - s.ReputationScore/100)
	behRisk := clamp01(1 - s.BehaviorScore)

	fpRisk := float64(s.FingerprintReuse.DistinctIdentities) / float64(e.policy.FingerprintReuseHigh)
	fpRisk = clamp01(fpRisk)

	base, ok := ipCategoryRisk[s.IPCategory]
	if !ok {
		base = neutralIPRisk
	}
	// Low-confidence classifications pull toward the neutral risk.
	ipRisk := neutralIPRisk + (base-neutralIPRisk)*s.IPConfidence

	return e.policy.WeightReputation*repRisk +
		e.policy.WeightBehavior*behRisk +
		e.policy.WeightFingerprint*fpRisk +
		e.policy.WeightIP*ipRisk
}

// level maps the fused score through the thresholds, then applies the
// floors: extreme reputation dominates, anonymizing networks and heavy
// fingerprint reuse set minimums, and a clearly automated behavior score
// compounds an already elevated level.
func (e *RiskEngine) level(fused float64, s model.SignalSnapshot) model.RiskLevel {
	var level model.RiskLevel
	switch {
	case fused < e.policy.ThresholdMedium:
		level = model.RiskLow
	case fused < e.policy.ThresholdHigh:
		level = model.RiskMedium
	case fused < e.policy.ThresholdCritical:
		level = model.RiskHigh
	default:
		level = model.RiskCritical
	}

	if s.ReputationScore <= e.policy.ReputationFloor {
		return model.RiskCritical
	}

	if (s.IPCategory == model.IPTor || s.IPCategory == model.IPVPNProxy) && s.IPConfidence >= 0.5 && level < model.RiskMedium {
		level = model.RiskMedium
	}

	if s.FingerprintReuse.DistinctIdentities >= e.policy.FingerprintReuseHigh && level < model.RiskHigh {
		level = model.RiskHigh
	}

	if s.BehaviorScore < e.policy.BehaviorLowFloor && level >= model.RiskMedium && level < model.RiskCritical {
		level++
	}

	return level
}

func (e *RiskEngine) action(level model.RiskLevel, challengeVerified bool) (model.Action, model.ChallengeType) {
	switch level {
	case model.RiskLow:
		return model.ActionAdmit, model.ChallengeNone
	case model.RiskMedium:
		if challengeVerified {
			return model.ActionAdmit, model.ChallengeNone
		}
		return model.ActionChallenge, model.ChallengePoW
	case model.RiskHigh:
		if challengeVerified {
			return model.ActionAdmit, model.ChallengeNone
		}
		return model.ActionChallenge, model.ChallengeCaptcha
	default:
		return model.ActionBlock, model.ChallengeNone
	}
}

// audit emits the decision and its contributing signals as a structured log
// event. The audit stream carries only hashes; it is not joinable to the
// vote-token table.
func (e *RiskEngine) audit(d model.Decision) {
	log.Info().
		Str("audit_id", d.AuditID).
		Str("risk_level", d.Level.String()).
		Str("action", string(d.Action)).
		Float64("fused_score", d.FusedScore).
		Float64("reputation", d.Snapshot.ReputationScore).
		Float64("behavior", d.Snapshot.BehaviorScore).
		Int("fp_attempts", d.Snapshot.FingerprintReuse.Attempts).
		Int("fp_identities", d.Snapshot.FingerprintReuse.DistinctIdentities).
		Str("ip_category", string(d.Snapshot.IPCategory)).
		Float64("ip_confidence", d.Snapshot.IPConfidence).
		Bool("challenge_verified", d.Snapshot.ChallengeVerified).
		Strs("degraded", d.Snapshot.DegradedSignals).
		Msg("risk decision")
}
