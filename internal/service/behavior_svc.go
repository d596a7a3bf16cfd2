package service

import (
	"math"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

const (
	// Penalties subtracted from a perfect human score of 1.0.
	penaltySubFloorReaction = 0.6
	penaltyNoInteraction    = 0.25
	penaltyFlatTimings      = 0.3
	penaltyMetronomic       = 0.4
	penaltyLowEntropy       = 0.15

	// NeutralBehaviorScore substitutes for an absent or late behavior
	// signal during fusion.
	NeutralBehaviorScore = 0.5

	// Coefficient-of-variation floor under which repeated timings count as
	// machine-regular.
	flatTimingCV = 0.05

	minEventsForVariance  = 5
	minIntervalsForRhythm = 3
)

// BehaviorService scores interaction patterns for automation-like
// regularity. Pure function of its inputs; safe to run concurrently with the
// other signal sources.
type BehaviorService struct {
	// minReactionMs is the fastest plausible human time-to-vote.
	minReactionMs int64
	// tolerateSparse suppresses the missing-interaction penalty, for
	// deployments serving accessibility tooling that emits no pointer
	// events.
	tolerateSparse bool
}

func NewBehaviorService(minReactionMs int64, tolerateSparse bool) *BehaviorService {
	return &BehaviorService{minReactionMs: minReactionMs, tolerateSparse: tolerateSparse}
}

// Score maps behavioral signals to [0,1]: 0 is clearly automated, 1 clearly
// human. Absent timings yield the neutral baseline rather than an extreme.
func (s *BehaviorService) Score(sig model.BehavioralSignals) float64 {
	if sig.TimeToVoteMs <= 0 && sig.InteractionEvents == 0 && len(sig.EventTimingsMs) == 0 {
		return NeutralBehaviorScore
	}

	score := 1.0

	if sig.TimeToVoteMs > 0 && sig.TimeToVoteMs < s.minReactionMs {
		score -= penaltySubFloorReaction
	}

	if sig.InteractionEvents == 0 && !s.tolerateSparse {
		score -= penaltyNoInteraction
	}

	if len(sig.EventTimingsMs) >= minEventsForVariance && coefficientOfVariation(sig.EventTimingsMs) < flatTimingCV {
		score -= penaltyFlatTimings
	}

	if len(sig.SubmitIntervalsMs) >= minIntervalsForRhythm && coefficientOfVariation(sig.SubmitIntervalsMs) < flatTimingCV {
		score -= penaltyMetronomic
	}

	if sig.PointerEntropy > 0 && sig.PointerEntropy < 0.1 {
		score -= penaltyLowEntropy
	}

	return clamp01(score)
}

// coefficientOfVariation is stddev/mean of the samples. Near zero means the
// timings repeat at machine regularity.
func coefficientOfVariation(samples []int64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, v := range samples {
		d := float64(v) - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(samples))) / mean
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
