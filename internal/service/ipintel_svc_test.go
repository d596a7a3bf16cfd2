package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

type errProvider struct{}

func (errProvider) Classify(context.Context, string) (model.IPIntelligence, error) {
	return model.UnknownIntel(), fmt.Errorf("provider down")
}

type slowProvider struct{ delay time.Duration }

func (p slowProvider) Classify(ctx context.Context, _ string) (model.IPIntelligence, error) {
	select {
	case <-time.After(p.delay):
		return model.IPIntelligence{Category: model.IPTor, Confidence: 0.9}, nil
	case <-ctx.Done():
		return model.UnknownIntel(), ctx.Err()
	}
}

func TestIPIntelClassify_ProviderErrorDegradesToUnknown(t *testing.T) {
	svc := NewIPIntelService(NewCacheService(""), errProvider{}, 300*time.Millisecond, time.Hour)

	intel := svc.Classify(context.Background(), "203.0.113.9")
	if intel.Category != model.IPUnknown || intel.Confidence != 0 {
		t.Errorf("intel = %+v, want unknown with zero confidence", intel)
	}
}

func TestIPIntelClassify_TimeoutDegradesToUnknown(t *testing.T) {
	svc := NewIPIntelService(NewCacheService(""), slowProvider{delay: 5 * time.Second}, 50*time.Millisecond, time.Hour)

	start := time.Now()
	intel := svc.Classify(context.Background(), "203.0.113.9")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Classify took %s, must honor the lookup timeout", elapsed)
	}
	if intel.Category != model.IPUnknown {
		t.Errorf("late lookup must yield unknown, got %s", intel.Category)
	}
}

func TestHeuristicProvider_Classify(t *testing.T) {
	p := NewHeuristicProvider()

	// Short deadline: reverse DNS is unreachable in tests and must degrade,
	// not stall.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	tests := []struct {
		name    string
		address string
		want    model.IPCategory
		wantErr bool
	}{
		{"loopback", "127.0.0.1", model.IPResidential, false},
		{"private", "192.168.1.50", model.IPResidential, false},
		{"garbage", "not-an-ip", model.IPUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intel, err := p.Classify(ctx, tt.address)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if intel.Category != tt.want {
				t.Errorf("category = %s, want %s", intel.Category, tt.want)
			}
		})
	}
}

func TestHTTPProvider_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		fmt.Fprint(w, `{"category":"vpn_proxy","confidence":0.85}`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	intel, err := p.Classify(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if intel.Category != model.IPVPNProxy || intel.Confidence != 0.85 {
		t.Errorf("intel = %+v, want vpn_proxy/0.85", intel)
	}
}

func TestHTTPProvider_UnknownCategoryNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"category":"satellite","confidence":7}`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	intel, err := p.Classify(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if intel.Category != model.IPUnknown {
		t.Errorf("category = %s, want unexpected values normalized to unknown", intel.Category)
	}
	if intel.Confidence != 0 {
		t.Errorf("confidence = %.2f, want out-of-range values zeroed", intel.Confidence)
	}
}

func TestHTTPProvider_ServerErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	if _, err := p.Classify(context.Background(), "203.0.113.9"); err == nil {
		t.Error("non-200 from the reputation source must surface as an error")
	}
}
