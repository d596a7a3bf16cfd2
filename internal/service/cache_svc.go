package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// CacheService is the Redis layer behind the engine's three time-bounded
// stores: the IP classification cache, the fingerprint reuse windows and the
// challenge ticket store. Eviction is time-based; swapping in an LRU-bounded
// backend only requires replacing this type behind the same methods.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService creates a new CacheService. If redisURL is empty or the
// connection fails, it returns a CacheService with a nil client: cache reads
// miss, fingerprint windows report zero reuse, challenge tickets cannot be
// issued. The engine stays up on its safe defaults.
func NewCacheService(redisURL string) *CacheService {
	if redisURL == "" {
		log.Println("redis: no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("redis: invalid URL %q, caching disabled: %v", redisURL, err)
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis: connection failed, caching disabled: %v", err)
		return &CacheService{}
	}

	log.Println("redis: connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

// GetIntel retrieves a cached IP classification. The second return is false
// on miss, disabled cache, or decode failure — the caller then refreshes.
// A cached entry is never served past its TTL; expiry is enforced by Redis.
func (c *CacheService) GetIntel(ctx context.Context, address string) (model.IPIntelligence, bool) {
	if c.rdb == nil {
		return model.UnknownIntel(), false
	}
	data, err := c.rdb.Get(ctx, intelKey(address)).Bytes()
	if err != nil {
		return model.UnknownIntel(), false
	}
	var intel model.IPIntelligence
	if err := json.Unmarshal(data, &intel); err != nil {
		return model.UnknownIntel(), false
	}
	return intel, true
}

// SetIntel stores an IP classification with the configured TTL.
func (c *CacheService) SetIntel(ctx context.Context, address string, intel model.IPIntelligence, ttl time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(intel)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, intelKey(address), b, ttl).Err()
}

// RecordFingerprint appends one vote attempt to a fingerprint's reuse window:
// the identity set tracks distinct voters, the attempt set tracks volume.
// Both are sorted sets scored by unix time so trimming is a range delete.
func (c *CacheService) RecordFingerprint(ctx context.Context, fpHash, identityHash, attemptID string, window time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	now := float64(time.Now().Unix())
	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, fpIdentityKey(fpHash), redis.Z{Score: now, Member: identityHash})
	pipe.ZAdd(ctx, fpAttemptKey(fpHash), redis.Z{Score: now, Member: attemptID})
	pipe.Expire(ctx, fpIdentityKey(fpHash), window)
	pipe.Expire(ctx, fpAttemptKey(fpHash), window)
	_, err := pipe.Exec(ctx)
	return err
}

// FingerprintReuse trims both windows to the lookback and returns the attempt
// count and distinct identity count observed for the fingerprint.
func (c *CacheService) FingerprintReuse(ctx context.Context, fpHash string, window time.Duration) (model.FingerprintReuse, error) {
	if c.rdb == nil {
		return model.FingerprintReuse{}, nil
	}
	cutoff := strconv.FormatInt(time.Now().Add(-window).Unix(), 10)

	pipe := c.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, fpIdentityKey(fpHash), "-inf", cutoff)
	pipe.ZRemRangeByScore(ctx, fpAttemptKey(fpHash), "-inf", cutoff)
	identities := pipe.ZCard(ctx, fpIdentityKey(fpHash))
	attempts := pipe.ZCard(ctx, fpAttemptKey(fpHash))
	if _, err := pipe.Exec(ctx); err != nil {
		return model.FingerprintReuse{}, err
	}

	return model.FingerprintReuse{
		Attempts:           int(attempts.Val()),
		DistinctIdentities: int(identities.Val()),
	}, nil
}

// PutTicket stores a challenge ticket with TTL.
func (c *CacheService) PutTicket(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if c.rdb == nil {
		return fmt.Errorf("cache disabled, cannot store challenge ticket")
	}
	return c.rdb.Set(ctx, ticketKey(id), data, ttl).Err()
}

// TakeTicket atomically fetches and deletes a challenge ticket, enforcing
// single use. Returns nil data when the ticket is absent or expired.
func (c *CacheService) TakeTicket(ctx context.Context, id string) ([]byte, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.GetDel(ctx, ticketKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func intelKey(address string) string {
	return fmt.Sprintf("ipintel:%s", address)
}

func fpIdentityKey(fpHash string) string {
	return fmt.Sprintf("fpwin:id:%s", fpHash)
}

func fpAttemptKey(fpHash string) string {
	return fmt.Sprintf("fpwin:at:%s", fpHash)
}

func ticketKey(id string) string {
	return fmt.Sprintf("challenge:%s", id)
}
