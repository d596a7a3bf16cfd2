package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// memTickets is an in-memory ticketStore with GetDel semantics.
type memTickets struct {
	mu      sync.Mutex
	tickets map[string][]byte
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: make(map[string][]byte)}
}

func (m *memTickets) PutTicket(_ context.Context, id string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[id] = data
	return nil
}

func (m *memTickets) TakeTicket(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.tickets[id]
	if !ok {
		return nil, nil
	}
	delete(m.tickets, id)
	return data, nil
}

type stubCaptcha struct {
	ok  bool
	err error
}

func (s *stubCaptcha) Verify(context.Context, string, string) (bool, error) {
	return s.ok, s.err
}

// solvePoW mines a nonce satisfying the ticket's difficulty, same procedure a
// client would run.
func solvePoW(t *testing.T, ch *Challenge) string {
	t.Helper()
	target := strings.Repeat("0", ch.Difficulty)
	for nonce := 0; nonce < 10_000_000; nonce++ {
		n := strconv.Itoa(nonce)
		sum := sha256.Sum256([]byte(ch.Prefix + ":" + n))
		h := hex.EncodeToString(sum[:])
		if strings.HasPrefix(h, target) {
			return n + ":" + h
		}
	}
	t.Fatal("no nonce found within bound")
	return ""
}

func TestChallengePoW_IssueAndVerify(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), nil, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ch.ID == "" || ch.Prefix == "" || ch.Difficulty == 0 || ch.Sig == "" {
		t.Fatalf("incomplete pow ticket: %+v", ch)
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", solvePoW(t, ch), "203.0.113.9")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("valid proof of work rejected")
	}
}

func TestChallengePoW_WrongProofRejected(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), nil, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A correctly hashed nonce that misses the difficulty target.
	var bogus string
	for nonce := 0; ; nonce++ {
		n := strconv.Itoa(nonce)
		sum := sha256.Sum256([]byte(ch.Prefix + ":" + n))
		h := hex.EncodeToString(sum[:])
		if !strings.HasPrefix(h, strings.Repeat("0", ch.Difficulty)) {
			bogus = n + ":" + h
			break
		}
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", bogus, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("proof without the required difficulty accepted")
	}
}

func TestChallenge_SingleUse(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), nil, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	proof := solvePoW(t, ch)

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", proof, "")
	if err != nil || !ok {
		t.Fatalf("first verify: ok=%v err=%v", ok, err)
	}

	ok, err = svc.Verify(context.Background(), ch.ID, "idhash", proof, "")
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if ok {
		t.Error("replayed ticket accepted; tickets must be single-use")
	}
}

func TestChallenge_BoundToIdentity(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), nil, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "victim", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "attacker", solvePoW(t, ch), "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("ticket issued to one identity accepted from another")
	}
}

func TestChallenge_UnknownTicketRejected(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), nil, "test-secret", 5*time.Minute)

	ok, err := svc.Verify(context.Background(), "no-such-ticket", "idhash", "1:abc", "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("unknown ticket accepted")
	}
}

func TestChallenge_ExpiredTicketRejected(t *testing.T) {
	store := newMemTickets()
	svc := NewChallengeService(store, nil, "test-secret", -time.Minute) // already expired at issue

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", solvePoW(t, ch), "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("expired ticket accepted")
	}
}

func TestChallenge_TamperedTicketRejected(t *testing.T) {
	store := newMemTickets()
	svc := NewChallengeService(store, nil, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengePoW)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Lower the stored difficulty, keeping the original signature.
	store.mu.Lock()
	data := store.tickets[ch.ID]
	store.tickets[ch.ID] = []byte(strings.Replace(string(data),
		fmt.Sprintf(`"difficulty":%d`, ch.Difficulty), `"difficulty":1`, 1))
	store.mu.Unlock()

	easy := *ch
	easy.Difficulty = 1

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", solvePoW(t, &easy), "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("ticket with tampered difficulty accepted")
	}
}

func TestChallengeCaptcha_DelegatesToProvider(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), &stubCaptcha{ok: true}, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengeCaptcha)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ch.Prefix != "" || ch.Difficulty != 0 {
		t.Errorf("captcha ticket should carry no pow fields: %+v", ch)
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", "provider-token", "203.0.113.9")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("captcha accepted by provider but rejected here")
	}
}

func TestChallengeCaptcha_ProviderErrorFailsClosed(t *testing.T) {
	svc := NewChallengeService(newMemTickets(), &stubCaptcha{err: fmt.Errorf("provider down")}, "test-secret", 5*time.Minute)

	ch, err := svc.Issue(context.Background(), "idhash", model.ChallengeCaptcha)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := svc.Verify(context.Background(), ch.ID, "idhash", "provider-token", "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("provider error must not count as a pass")
	}
}
