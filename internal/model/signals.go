package model

// ClientSignals is the validated, typed form of the device/behavior payload
// submitted with a vote attempt. All fields are optional; absent fields
// degrade the corresponding signal, they never fail the request.
type ClientSignals struct {
	UserAgent    string `json:"userAgent,omitempty"`
	ScreenWidth  int    `json:"screenWidth,omitempty"`
	ScreenHeight int    `json:"screenHeight,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	Language     string `json:"language,omitempty"`
	CanvasHash   string `json:"canvasHash,omitempty"`
	AudioHash    string `json:"audioHash,omitempty"`
	FontsHash    string `json:"fontsHash,omitempty"`
	TouchSupport bool   `json:"touchSupport,omitempty"`

	// Behavioral timings, milliseconds since poll render.
	RenderedAtMs      int64   `json:"renderedAtMs,omitempty"`
	SubmittedAtMs     int64   `json:"submittedAtMs,omitempty"`
	InteractionEvents int     `json:"interactionEvents,omitempty"`
	EventTimingsMs    []int64 `json:"eventTimingsMs,omitempty"`
	PointerEntropy    float64 `json:"pointerEntropy,omitempty"`

	// Recent submission intervals for this client, if the front end tracks
	// them. Metronomic intervals are a bot signature.
	SubmitIntervalsMs []int64 `json:"submitIntervalsMs,omitempty"`
}

// DeviceFingerprint is the canonicalized, hashed form of the client's device
// attributes. Immutable once computed for a request. Fingerprints are compared
// by similarity bucket, not strict equality, because minor client drift
// (browser updates, window resizes) is expected.
type DeviceFingerprint struct {
	// Hash identifies the exact canonical attribute set.
	Hash string
	// CoarseHash buckets the fingerprint by UA family, screen class and
	// timezone, tolerating attribute drift within a device.
	CoarseHash string
	// Confidence is the fraction of expected attributes that were present.
	// Sparse payloads (privacy-hardened browsers) yield a low-confidence
	// placeholder rather than an error.
	Confidence float64
}

// FingerprintReuse summarizes recent vote attempts sharing a fingerprint.
// High attempt counts across many distinct identities in a short window is a
// strong farm/bot signal.
type FingerprintReuse struct {
	Attempts           int
	DistinctIdentities int
}

// BehavioralSignals is the per-attempt interaction record scored by the
// behavior analyzer. Computed fresh per request, never persisted.
type BehavioralSignals struct {
	TimeToVoteMs      int64
	InteractionEvents int
	EventTimingsMs    []int64
	PointerEntropy    float64
	SubmitIntervalsMs []int64
}

// BehavioralFromClient extracts the behavioral subset of a client payload.
func BehavioralFromClient(cs ClientSignals) BehavioralSignals {
	var ttv int64
	if cs.SubmittedAtMs > 0 && cs.RenderedAtMs > 0 && cs.SubmittedAtMs > cs.RenderedAtMs {
		ttv = cs.SubmittedAtMs - cs.RenderedAtMs
	}
	return BehavioralSignals{
		TimeToVoteMs:      ttv,
		InteractionEvents: cs.InteractionEvents,
		EventTimingsMs:    cs.EventTimingsMs,
		PointerEntropy:    cs.PointerEntropy,
		SubmitIntervalsMs: cs.SubmitIntervalsMs,
	}
}
