package dedup

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"recap/internal/config"
)

const claimPrefix = "recap:claim:"

// Claimer grants short-lived exclusive ownership of a content key.
type Claimer interface {
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// NewRedisClient builds a go-redis client from the dedup settings. It
// returns nil when no address is configured.
func NewRedisClient(cfg config.Dedup) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping validates the connection with a short deadline.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// RedisClaimer stores claims as keys set with NX and a TTL, so a crashed
// owner's claim expires on its own.
type RedisClaimer struct {
	client *redis.Client
}

// NewRedisClaimer wraps client.
func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

// releaseScript deletes the claim only when owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Claim sets the claim key if absent.
func (r *RedisClaimer) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, claimPrefix+key, owner, ttl).Result()
}

// Release deletes the claim if owner holds it.
func (r *RedisClaimer) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, r.client, []string{claimPrefix + key}, owner).Err()
}

// LocalClaimer is an in-process Claimer for single-daemon deployments.
type LocalClaimer struct {
	mu     sync.Mutex
	claims map[string]localClaim
	now    func() time.Time
}

type localClaim struct {
	owner   string
	expires time.Time
}

// NewLocalClaimer returns an empty claim table.
func NewLocalClaimer() *LocalClaimer {
	return &LocalClaimer{claims: make(map[string]localClaim), now: time.Now}
}

// Claim grants the key when unclaimed or expired.
func (l *LocalClaimer) Claim(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if current, ok := l.claims[key]; ok && now.Before(current.expires) {
		return false, nil
	}
	l.claims[key] = localClaim{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the claim if owner holds it.
func (l *LocalClaimer) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.claims[key]; ok && current.owner == owner {
		delete(l.claims, key)
	}
	return nil
}
