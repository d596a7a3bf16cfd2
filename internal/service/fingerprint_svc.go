package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
	"github.com/KevinRabun/TruePulse-sub001/pkg/hash"
)

// Attributes expected from a cooperative browser. Confidence is the fraction
// actually present; privacy-hardened clients legitimately score low and must
// still be served.
const fingerprintAttributes = 7

type FingerprintService struct {
	cache  *CacheService
	window time.Duration
}

func NewFingerprintService(cache *CacheService, window time.Duration) *FingerprintService {
	return &FingerprintService{cache: cache, window: window}
}

// Compute canonicalizes the client's device attributes and hashes them into a
// fingerprint. Sparse or malformed payloads degrade to a low-confidence
// placeholder; fingerprinting never fails a request.
func (s *FingerprintService) Compute(raw model.ClientSignals) model.DeviceFingerprint {
	ua := strings.ToLower(strings.TrimSpace(raw.UserAgent))
	tz := strings.TrimSpace(raw.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	lang := strings.ToLower(strings.TrimSpace(raw.Language))

	w, h := raw.ScreenWidth, raw.ScreenHeight
	if w < 0 || w > 16384 {
		w = 0
	}
	if h < 0 || h > 16384 {
		h = 0
	}

	present := 0
	for _, ok := range []bool{
		ua != "", w > 0 && h > 0, raw.Timezone != "", lang != "",
		raw.CanvasHash != "", raw.AudioHash != "", raw.FontsHash != "",
	} {
		if ok {
			present++
		}
	}

	canonical := fmt.Sprintf("%s|%dx%d|%s|%s|%s|%s|%s|%t",
		ua, w, h, tz, lang, raw.CanvasHash, raw.AudioHash, raw.FontsHash, raw.TouchSupport)

	return model.DeviceFingerprint{
		Hash:       hash.SHA256Hex(canonical),
		CoarseHash: hash.SHA256Hex(coarseBucket(ua, w, h, tz)),
		Confidence: float64(present) / fingerprintAttributes,
	}
}

// coarseBucket collapses attributes that drift between sessions of the same
// device: UA family instead of full UA string, screen size class instead of
// exact geometry.
func coarseBucket(ua string, w, h int, tz string) string {
	family := "other"
	for _, f := range []string{"firefox", "edg", "chrome", "safari"} {
		if strings.Contains(ua, f) {
			family = f
			break
		}
	}
	class := "none"
	switch {
	case w >= 2560:
		class = "xl"
	case w >= 1600:
		class = "l"
	case w >= 1000:
		class = "m"
	case w > 0:
		class = "s"
	}
	return family + "|" + class + "|" + tz
}

// Record registers one vote attempt against both the exact and coarse
// windows. Failures are the caller's to log; reuse detection is best-effort.
func (s *FingerprintService) Record(ctx context.Context, fp model.DeviceFingerprint, identityHash string) error {
	attemptID := uuid.NewString()
	if err := s.cache.RecordFingerprint(ctx, fp.Hash, identityHash, attemptID, s.window); err != nil {
		return err
	}
	return s.cache.RecordFingerprint(ctx, fp.CoarseHash, identityHash, attemptID, s.window)
}

// ScoreReuse reports how many recent attempts and distinct identities share
// this fingerprint within the window. The coarse bucket catches devices
// drifting their exact attributes between accounts; the larger of the exact
// and coarse distinct-identity counts wins. Redis failure degrades to zero
// reuse, the safe default.
func (s *FingerprintService) ScoreReuse(ctx context.Context, fp model.DeviceFingerprint) (model.FingerprintReuse, error) {
	exact, err := s.cache.FingerprintReuse(ctx, fp.Hash, s.window)
	if err != nil {
		return model.FingerprintReuse{}, err
	}
	coarse, err := s.cache.FingerprintReuse(ctx, fp.CoarseHash, s.window)
	if err != nil {
		// Exact counts are still usable.
		return exact, nil
	}
	if coarse.DistinctIdentities > exact.DistinctIdentities {
		exact.DistinctIdentities = coarse.DistinctIdentities
	}
	if coarse.Attempts > exact.Attempts {
		exact.Attempts = coarse.Attempts
	}
	return exact, nil
}
