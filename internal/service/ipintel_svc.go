package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// IntelProvider classifies a single address. Implementations must respect
// the context deadline; the service treats any error as "unknown".
type IntelProvider interface {
	Classify(ctx context.Context, address string) (model.IPIntelligence, error)
}

// IPIntelService fronts the provider with the TTL-bounded cache. IP
// intelligence is a contributing signal, never a gating one: timeouts and
// provider outages degrade to unknown and the vote attempt proceeds.
type IPIntelService struct {
	cache    *CacheService
	provider IntelProvider
	timeout  time.Duration
	ttl      time.Duration
}

func NewIPIntelService(cache *CacheService, provider IntelProvider, timeout, ttl time.Duration) *IPIntelService {
	return &IPIntelService{cache: cache, provider: provider, timeout: timeout, ttl: ttl}
}

// Classify returns the cached classification when fresh, otherwise refreshes
// within the lookup timeout. Expired entries are never served as
// authoritative: Redis expiry removes them, and a failed refresh yields
// unknown.
func (s *IPIntelService) Classify(ctx context.Context, address string) model.IPIntelligence {
	if intel, ok := s.cache.GetIntel(ctx, address); ok {
		return intel
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intel, err := s.provider.Classify(lookupCtx, address)
	if err != nil {
		log.Debug().Err(err).Str("ip_prefix", safeAddrPrefix(address)).Msg("ip intel lookup degraded to unknown")
		return model.UnknownIntel()
	}

	if err := s.cache.SetIntel(ctx, address, intel, s.ttl); err != nil {
		log.Debug().Err(err).Msg("ip intel cache write failed")
	}
	return intel
}

func safeAddrPrefix(address string) string {
	if len(address) > 7 {
		return address[:7]
	}
	return address
}

// --- Built-in heuristic provider -------------------------------------------

// Datacenter ranges for the major clouds. A production deployment should
// point IP_INTEL_URL at a real reputation source; these ranges keep the
// heuristic provider useful without one.
var datacenterCIDRs = []string{
	// AWS
	"3.0.0.0/8", "13.0.0.0/8", "18.0.0.0/8", "34.0.0.0/8", "35.0.0.0/8",
	"52.0.0.0/8", "54.0.0.0/8",
	// Google Cloud
	"34.64.0.0/10", "35.184.0.0/13", "104.154.0.0/15", "104.196.0.0/14",
	// Azure
	"13.64.0.0/11", "20.0.0.0/8", "40.64.0.0/10", "52.224.0.0/11",
	// DigitalOcean
	"64.225.0.0/16", "68.183.0.0/16", "104.131.0.0/16", "134.209.0.0/16",
	"138.68.0.0/16", "139.59.0.0/16", "142.93.0.0/16", "157.245.0.0/16",
	"159.65.0.0/16", "159.89.0.0/16", "161.35.0.0/16", "164.90.0.0/16",
	"165.227.0.0/16", "167.71.0.0/16", "167.99.0.0/16", "178.128.0.0/16",
	// Hetzner
	"5.9.0.0/16", "46.4.0.0/14", "78.46.0.0/15", "88.99.0.0/16",
	"95.216.0.0/14", "116.202.0.0/15", "135.181.0.0/16", "138.201.0.0/16",
	"144.76.0.0/16", "148.251.0.0/16", "157.90.0.0/16", "159.69.0.0/16",
	"168.119.0.0/16", "176.9.0.0/16", "178.63.0.0/16", "188.40.0.0/16",
	// OVH
	"51.38.0.0/16", "51.68.0.0/16", "51.75.0.0/16", "51.77.0.0/16",
	"51.83.0.0/16", "54.36.0.0/16", "91.134.0.0/16", "137.74.0.0/16",
	"139.99.0.0/16", "144.217.0.0/16", "145.239.0.0/16", "149.56.0.0/16",
	"158.69.0.0/16", "164.132.0.0/16", "167.114.0.0/16", "188.165.0.0/16",
	"192.99.0.0/16", "193.70.0.0/16",
}

var torPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tor-exit`),
	regexp.MustCompile(`(?i)exit-?node`),
	regexp.MustCompile(`(?i)torproject`),
}

var vpnProxyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)vpn`),
	regexp.MustCompile(`(?i)proxy`),
	regexp.MustCompile(`(?i)anonymizer`),
	regexp.MustCompile(`(?i)hide-?my`),
	regexp.MustCompile(`(?i)tunnel`),
	regexp.MustCompile(`(?i)relay`),
}

// HeuristicProvider classifies addresses from static datacenter ranges and
// reverse-DNS naming, with no external dependency.
type HeuristicProvider struct {
	nets     []*net.IPNet
	resolver *net.Resolver
}

func NewHeuristicProvider() *HeuristicProvider {
	p := &HeuristicProvider{resolver: net.DefaultResolver}
	for _, cidr := range datacenterCIDRs {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			p.nets = append(p.nets, ipNet)
		}
	}
	return p
}

func (p *HeuristicProvider) Classify(ctx context.Context, address string) (model.IPIntelligence, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return model.UnknownIntel(), fmt.Errorf("unparseable address")
	}

	if ip.IsLoopback() || ip.IsPrivate() {
		return model.IPIntelligence{Category: model.IPResidential, Confidence: 0.4}, nil
	}

	// Reverse DNS names catch Tor exits and commercial VPN endpoints.
	if names, err := p.resolver.LookupAddr(ctx, address); err == nil {
		for _, name := range names {
			for _, pattern := range torPatterns {
				if pattern.MatchString(name) {
					return model.IPIntelligence{Category: model.IPTor, Confidence: 0.8}, nil
				}
			}
			for _, pattern := range vpnProxyPatterns {
				if pattern.MatchString(name) {
					return model.IPIntelligence{Category: model.IPVPNProxy, Confidence: 0.6}, nil
				}
			}
		}
	}

	for _, ipNet := range p.nets {
		if ipNet.Contains(ip) {
			return model.IPIntelligence{Category: model.IPDatacenter, Confidence: 0.7}, nil
		}
	}

	// Not provably anything else; lean residential with low confidence.
	return model.IPIntelligence{Category: model.IPResidential, Confidence: 0.3}, nil
}

// --- HTTP provider ----------------------------------------------------------

// HTTPProvider queries an external reputation service. The request is bounded
// by the caller's context; the shared client timeout is only a backstop.
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type intelLookupRequest struct {
	Address string `json:"address"`
}

type intelLookupResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (p *HTTPProvider) Classify(ctx context.Context, address string) (model.IPIntelligence, error) {
	body, err := json.Marshal(intelLookupRequest{Address: address})
	if err != nil {
		return model.UnknownIntel(), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return model.UnknownIntel(), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.UnknownIntel(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.UnknownIntel(), fmt.Errorf("reputation source returned %d", resp.StatusCode)
	}

	var res intelLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return model.UnknownIntel(), err
	}

	category := model.IPCategory(res.Category)
	switch category {
	case model.IPResidential, model.IPDatacenter, model.IPVPNProxy, model.IPTor:
	default:
		category = model.IPUnknown
	}
	conf := res.Confidence
	if conf < 0 || conf > 1 {
		conf = 0
	}
	return model.IPIntelligence{Category: category, Confidence: conf}, nil
}
