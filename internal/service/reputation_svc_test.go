package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// memStore is an in-memory ReputationStore applying the same clamped update
// the SQL layer does.
type memStore struct {
	mu      sync.Mutex
	records map[string]*model.Reputation
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*model.Reputation)}
}

func (m *memStore) Find(_ context.Context, identityHash string) (*model.Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.records[identityHash]
	if !ok {
		return nil, nil
	}
	cp := *rep
	return &cp, nil
}

func (m *memStore) CreateIfNotExists(_ context.Context, identityHash string, baseline float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[identityHash]; !ok {
		m.records[identityHash] = &model.Reputation{
			IdentityHash: identityHash,
			Score:        baseline,
			LastUpdated:  time.Now(),
		}
	}
	return nil
}

func (m *memStore) ApplyDelta(_ context.Context, identityHash string, delta float64, outcome model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep := m.records[identityHash]
	rep.Score += delta
	if rep.Score > 100 {
		rep.Score = 100
	}
	if rep.Score < 0 {
		rep.Score = 0
	}
	switch outcome {
	case model.OutcomeCleanVote:
		rep.CleanVotes++
	case model.OutcomeConfirmedFraud:
		rep.FraudPenalties++
	case model.OutcomeChallengePassed:
		rep.ChallengesPassed++
	case model.OutcomeChallengeFailed:
		rep.ChallengesFailed++
	}
	rep.LastUpdated = time.Now()
	return nil
}

func (m *memStore) SetScore(_ context.Context, identityHash string, score float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep := m.records[identityHash]
	rep.Score = score
	rep.LastUpdated = at
	return nil
}

func (m *memStore) IncrementChallengesIssued(_ context.Context, identityHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[identityHash].ChallengesIssued++
	return nil
}

func (m *memStore) seed(identityHash string, score float64, updated time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[identityHash] = &model.Reputation{
		IdentityHash: identityHash,
		Score:        score,
		LastUpdated:  updated,
	}
}

func (m *memStore) score(identityHash string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[identityHash].Score
}

func TestReputationGet_LazyCreateAtBaseline(t *testing.T) {
	store := newMemStore()
	svc := NewReputationService(store, testPolicy())

	rep, err := svc.Get(context.Background(), "newid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rep.Score != 50 {
		t.Errorf("new identity score = %.1f, want baseline 50", rep.Score)
	}
	if store.score("newid") != 50 {
		t.Error("lazy create must persist the record")
	}
}

func TestReputationGet_NoDecayWithinGrace(t *testing.T) {
	store := newMemStore()
	store.seed("id", 90, time.Now().Add(-24*time.Hour))
	svc := NewReputationService(store, testPolicy())

	rep, err := svc.Get(context.Background(), "id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rep.Score != 90 {
		t.Errorf("score inside grace period = %.1f, want 90 untouched", rep.Score)
	}
}

func TestReputationGet_DecaysTowardBaseline(t *testing.T) {
	store := newMemStore()
	// 72h grace + 4 days dormant: fraction = 4 * 0.05 = 0.2.
	store.seed("high", 90, time.Now().Add(-(72+4*24)*time.Hour))
	store.seed("low", 10, time.Now().Add(-(72+4*24)*time.Hour))
	svc := NewReputationService(store, testPolicy())

	high, err := svc.Get(context.Background(), "high")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// 90 + (50-90)*0.2 = 82
	if high.Score < 81.5 || high.Score > 82.5 {
		t.Errorf("dormant high score = %.2f, want ~82", high.Score)
	}

	low, err := svc.Get(context.Background(), "low")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// 10 + (50-10)*0.2 = 18
	if low.Score < 17.5 || low.Score > 18.5 {
		t.Errorf("dormant low score = %.2f, want ~18", low.Score)
	}

	if store.score("high") != high.Score {
		t.Error("decayed score must be persisted")
	}
}

func TestReputationGet_DecayCapsAtBaseline(t *testing.T) {
	store := newMemStore()
	// Dormant long enough that the fraction caps at a full pull.
	store.seed("ancient", 95, time.Now().Add(-400*24*time.Hour))
	svc := NewReputationService(store, testPolicy())

	rep, err := svc.Get(context.Background(), "ancient")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rep.Score != 50 {
		t.Errorf("fully decayed score = %.2f, want exactly the baseline", rep.Score)
	}
}

func TestApplyOutcome_Deltas(t *testing.T) {
	tests := []struct {
		outcome model.Outcome
		want    float64
	}{
		{model.OutcomeConfirmedFraud, 25},  // 50 - 25
		{model.OutcomeChallengePassed, 55}, // 50 + 5
		{model.OutcomeChallengeFailed, 40}, // 50 - 10
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			store := newMemStore()
			svc := NewReputationService(store, testPolicy())

			if err := svc.ApplyOutcome(context.Background(), "id", tt.outcome); err != nil {
				t.Fatalf("ApplyOutcome: %v", err)
			}
			if got := store.score("id"); got != tt.want {
				t.Errorf("score after %s = %.1f, want %.1f", tt.outcome, got, tt.want)
			}
		})
	}
}

func TestApplyOutcome_UnknownOutcomeRejected(t *testing.T) {
	svc := NewReputationService(newMemStore(), testPolicy())

	if err := svc.ApplyOutcome(context.Background(), "id", model.Outcome("sock_puppet")); err == nil {
		t.Error("unmapped outcome must be rejected, not silently scored")
	}
}

func TestApplyOutcome_CleanVoteRewardCooldown(t *testing.T) {
	store := newMemStore()
	svc := NewReputationService(store, testPolicy())

	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeCleanVote); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	first := store.score("id")
	if first != 52 {
		t.Fatalf("first clean vote = %.1f, want 52", first)
	}

	// Immediate second clean vote: counter advances, score does not.
	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeCleanVote); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if got := store.score("id"); got != 52 {
		t.Errorf("clean vote inside cooldown moved score to %.1f, want 52", got)
	}
	rep, _ := store.Find(context.Background(), "id")
	if rep.CleanVotes != 2 {
		t.Errorf("clean vote counter = %d, want 2", rep.CleanVotes)
	}
}

func TestApplyOutcome_PenaltiesIgnoreCooldown(t *testing.T) {
	store := newMemStore()
	svc := NewReputationService(store, testPolicy())

	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeCleanVote); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeConfirmedFraud); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if got := store.score("id"); got != 27 {
		t.Errorf("fraud penalty right after a reward = %.1f, want 27", got)
	}
}

func TestApplyOutcome_ScoreClamped(t *testing.T) {
	store := newMemStore()
	store.seed("id", 15, time.Now())
	svc := NewReputationService(store, testPolicy())

	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeConfirmedFraud); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if got := store.score("id"); got != 0 {
		t.Errorf("score = %.1f, want clamped to 0", got)
	}

	// Further penalties stay at the floor.
	if err := svc.ApplyOutcome(context.Background(), "id", model.OutcomeConfirmedFraud); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	if got := store.score("id"); got != 0 {
		t.Errorf("score after repeated penalties = %.1f, want 0", got)
	}
}

func TestApplyOutcome_ConcurrentPenaltiesSerialized(t *testing.T) {
	store := newMemStore()
	store.seed("id", 100, time.Now())
	svc := NewReputationService(store, testPolicy())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.ApplyOutcome(context.Background(), "id", model.OutcomeConfirmedFraud)
		}()
	}
	wg.Wait()

	// 100 - 3*25 = 25; lost updates would leave a higher score.
	if got := store.score("id"); got != 25 {
		t.Errorf("score after 3 concurrent penalties = %.1f, want 25", got)
	}
}

func TestNoteChallengeIssued(t *testing.T) {
	store := newMemStore()
	svc := NewReputationService(store, testPolicy())

	if err := svc.NoteChallengeIssued(context.Background(), "id"); err != nil {
		t.Fatalf("NoteChallengeIssued: %v", err)
	}
	rep, _ := store.Find(context.Background(), "id")
	if rep.ChallengesIssued != 1 {
		t.Errorf("challenges issued = %d, want 1", rep.ChallengesIssued)
	}
	if rep.Score != 50 {
		t.Errorf("issuing a challenge moved the score to %.1f, want untouched 50", rep.Score)
	}
}
