// Package intel answers sender blacklist lookups against the shared threat
// intelligence set in redis.
package intel

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient is the subset of the redis API the service needs.
type RedisClient interface {
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
}

// Service checks sender addresses against the blacklist set. Lookups are
// cached with a short ttl so a flooding sender costs one redis round trip per
// ttl window, not one per transaction. Redis failures fail open: ingest must
// keep moving when the intel store is down.
type Service struct {
	rdb      RedisClient
	setKey   string
	cache    *ttlcache.Cache[string, bool]
	lock     sync.Mutex
	timeout  time.Duration
	logger   *zap.SugaredLogger
	disabled bool
}

func NewService(rdb RedisClient, setKey string, cacheTTL, timeout time.Duration, logger *zap.SugaredLogger) *Service {
	cache := ttlcache.New[string, bool](
		ttlcache.WithTTL[string, bool](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	go cache.Start()

	return &Service{
		rdb:      rdb,
		setKey:   setKey,
		cache:    cache,
		timeout:  timeout,
		logger:   logger,
		disabled: rdb == nil,
	}
}

// IsBlacklisted reports whether the sender address is in the blacklist set.
// Addresses are matched case insensitively.
func (s *Service) IsBlacklisted(ctx context.Context, sender string) bool {
	if s.disabled {
		return false
	}
	address := strings.ToLower(strings.TrimSpace(sender))
	if address == "" {
		return false
	}

	s.lock.Lock() // lock so that we do not get multiple threads inside the `if`
	defer s.lock.Unlock()

	item := s.cache.Get(address)
	if item != nil {
		return item.Value()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	member, err := s.rdb.SIsMember(lookupCtx, s.setKey, address).Result()
	if err != nil {
		s.logger.Warnf("blacklist lookup failed for [%s]: %v", address, err)
		return false
	}

	s.cache.Set(address, member, ttlcache.DefaultTTL)
	return member
}

func (s *Service) Close() {
	s.cache.Stop()
}
