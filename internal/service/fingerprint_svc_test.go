package service

import (
	"context"
	"testing"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

func fullSignals() model.ClientSignals {
	return model.ClientSignals{
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) Chrome/126.0",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		Timezone:     "America/New_York",
		Language:     "en-US",
		CanvasHash:   "c4nv45",
		AudioHash:    "aud10",
		FontsHash:    "f0nt5",
	}
}

func TestFingerprintCompute_Deterministic(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	a := svc.Compute(fullSignals())
	b := svc.Compute(fullSignals())
	if a.Hash != b.Hash || a.CoarseHash != b.CoarseHash {
		t.Error("identical signals must produce identical fingerprints")
	}
	if len(a.Hash) != 64 || len(a.CoarseHash) != 64 {
		t.Errorf("fingerprint hashes must be 64 hex chars, got %d and %d", len(a.Hash), len(a.CoarseHash))
	}
}

func TestFingerprintCompute_CanonicalizesEquivalentPayloads(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	a := fullSignals()
	b := fullSignals()
	b.UserAgent = "  MOZILLA/5.0 (X11; Linux x86_64) Chrome/126.0  "
	b.Language = "EN-US"

	if svc.Compute(a).Hash != svc.Compute(b).Hash {
		t.Error("case and whitespace variants of the same device must hash identically")
	}
}

func TestFingerprintCompute_FullConfidence(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	fp := svc.Compute(fullSignals())
	if fp.Confidence != 1.0 {
		t.Errorf("all attributes present, confidence = %.2f, want 1.0", fp.Confidence)
	}
}

func TestFingerprintCompute_SparsePayloadDegrades(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	fp := svc.Compute(model.ClientSignals{})
	if fp.Confidence != 0 {
		t.Errorf("empty payload confidence = %.2f, want 0", fp.Confidence)
	}
	if fp.Hash == "" || fp.CoarseHash == "" {
		t.Error("sparse payloads must still yield a placeholder fingerprint")
	}
}

func TestFingerprintCompute_ClampsAbsurdGeometry(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	a := fullSignals()
	a.ScreenWidth = 999999
	a.ScreenHeight = -5

	b := fullSignals()
	b.ScreenWidth = 0
	b.ScreenHeight = 0

	if svc.Compute(a).Hash != svc.Compute(b).Hash {
		t.Error("out-of-range geometry should clamp to absent, matching a payload without geometry")
	}
}

func TestFingerprintCompute_CoarseBucketToleratesDrift(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	a := fullSignals()
	b := fullSignals()
	b.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) Chrome/127.0" // browser update
	b.ScreenWidth = 1680                                          // window resize, same class

	fpA, fpB := svc.Compute(a), svc.Compute(b)
	if fpA.Hash == fpB.Hash {
		t.Error("distinct attribute sets must produce distinct exact hashes")
	}
	if fpA.CoarseHash != fpB.CoarseHash {
		t.Error("minor drift within the same device should land in the same coarse bucket")
	}
}

func TestFingerprintCompute_CoarseBucketSeparatesFamilies(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	a := fullSignals()
	b := fullSignals()
	b.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"

	if svc.Compute(a).CoarseHash == svc.Compute(b).CoarseHash {
		t.Error("different UA families must land in different coarse buckets")
	}
}

func TestFingerprintScoreReuse_DegradedCacheReportsZero(t *testing.T) {
	svc := NewFingerprintService(NewCacheService(""), 10*time.Minute)

	reuse, err := svc.ScoreReuse(context.Background(), svc.Compute(fullSignals()))
	if err != nil {
		t.Fatalf("ScoreReuse with disabled cache: %v", err)
	}
	if reuse.Attempts != 0 || reuse.DistinctIdentities != 0 {
		t.Errorf("disabled cache must report zero reuse, got %+v", reuse)
	}
}
