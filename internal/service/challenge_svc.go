package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// CaptchaVerifier validates a captcha completion token with the provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// ticketStore is the slice of the cache the challenge flow needs, satisfied
// by CacheService.
type ticketStore interface {
	PutTicket(ctx context.Context, id string, data []byte, ttl time.Duration) error
	TakeTicket(ctx context.Context, id string) ([]byte, error)
}

// Challenge is an issued secondary-verification ticket. Tickets are signed,
// stored with a TTL, and single-use: verification consumes them.
type Challenge struct {
	ID           string              `json:"challengeId"`
	Type         model.ChallengeType `json:"type"`
	IdentityHash string              `json:"-"`
	Prefix       string              `json:"prefix,omitempty"`
	Difficulty   int                 `json:"difficulty,omitempty"`
	ExpiresAt    int64               `json:"expiresAt"`
	Sig          string              `json:"sig"`
}

// ChallengeService issues and verifies challenge tickets. The lightweight
// type is a proof-of-work puzzle solved client-side; the strong type defers
// to a captcha provider.
type ChallengeService struct {
	cache   ticketStore
	captcha CaptchaVerifier
	secret  string
	ttl     time.Duration
}

// PoW difficulty: leading zero hex digits required of SHA256(prefix:nonce).
const powDifficulty = 4

func NewChallengeService(cache ticketStore, captcha CaptchaVerifier, secret string, ttl time.Duration) *ChallengeService {
	return &ChallengeService{cache: cache, captcha: captcha, secret: secret, ttl: ttl}
}

// Issue creates a ticket bound to the identity hash. The signature covers
// everything the client is told plus the identity binding, so a ticket
// cannot be replayed by a different identity.
func (s *ChallengeService) Issue(ctx context.Context, identityHash string, ctype model.ChallengeType) (*Challenge, error) {
	ch := &Challenge{
		ID:           uuid.NewString(),
		Type:         ctype,
		IdentityHash: identityHash,
		ExpiresAt:    time.Now().Add(s.ttl).UnixMilli(),
	}

	if ctype == model.ChallengePoW {
		ch.Difficulty = powDifficulty
		ch.Prefix = ch.ID + ":" + strconv.FormatInt(ch.ExpiresAt, 10)
	}

	ch.Sig = s.sign(ch)

	stored, err := json.Marshal(struct {
		Challenge
		IdentityHash string `json:"identityHash"`
	}{*ch, identityHash})
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutTicket(ctx, ch.ID, stored, s.ttl); err != nil {
		return nil, err
	}
	return ch, nil
}

// Verify consumes a ticket and checks the supplied proof. For PoW the proof
// is "nonce:hash"; for captcha it is the provider token. Any failure returns
// false; the ticket is gone either way, forcing a fresh evaluation.
func (s *ChallengeService) Verify(ctx context.Context, challengeID, identityHash, proof, remoteIP string) (bool, error) {
	data, err := s.cache.TakeTicket(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil // expired, unknown, or already used
	}

	var stored struct {
		Challenge
		IdentityHash string `json:"identityHash"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, err
	}

	ch := stored.Challenge
	ch.IdentityHash = stored.IdentityHash

	if ch.IdentityHash != identityHash {
		return false, nil
	}
	if time.Now().UnixMilli() > ch.ExpiresAt {
		return false, nil
	}
	if !hmac.Equal([]byte(s.sign(&ch)), []byte(ch.Sig)) {
		return false, nil
	}

	switch ch.Type {
	case model.ChallengePoW:
		return verifyPoW(ch, proof), nil
	case model.ChallengeCaptcha:
		if s.captcha == nil {
			return false, fmt.Errorf("no captcha verifier configured")
		}
		ok, err := s.captcha.Verify(ctx, proof, remoteIP)
		if err != nil {
			log.Warn().Err(err).Msg("captcha provider error")
			return false, nil
		}
		return ok, nil
	}
	return false, nil
}

func (s *ChallengeService) sign(ch *Challenge) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	fmt.Fprintf(mac, "%s|%s|%s|%s|%d|%d",
		ch.ID, ch.Type, ch.IdentityHash, ch.Prefix, ch.Difficulty, ch.ExpiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyPoW checks proof "nonce:hash" against the ticket: the hash must be
// SHA256(prefix:nonce) and carry the required leading zeros.
func verifyPoW(ch Challenge, proof string) bool {
	nonce, supplied, ok := strings.Cut(proof, ":")
	if !ok || nonce == "" {
		return false
	}

	sum := sha256.Sum256([]byte(ch.Prefix + ":" + nonce))
	got := hex.EncodeToString(sum[:])
	if got != supplied {
		return false
	}
	return strings.HasPrefix(got, strings.Repeat("0", ch.Difficulty))
}

// --- HTTP captcha verifier --------------------------------------------------

// HTTPCaptchaVerifier posts completion tokens to a provider's verification
// endpoint (hCaptcha/reCAPTCHA-shaped form API).
type HTTPCaptchaVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

func NewHTTPCaptchaVerifier(endpoint, secret string) *HTTPCaptchaVerifier {
	return &HTTPCaptchaVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
		"remoteip": {remoteIP},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha provider returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, err
	}
	return res.Success, nil
}
