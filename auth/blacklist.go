package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/rueidis"
)

// Blacklist tracks revoked session tokens until they would have expired
// anyway. Sign-out revokes; token validation consults.
type Blacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist shares revocations across client instances.
type RedisBlacklist struct {
	client rueidis.Client
	prefix string
}

func NewRedisBlacklist(client rueidis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: "revoked-token:"}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	cmd := b.client.B().Set().Key(b.prefix + token).Value("1").Ex(ttl).Build()
	return b.client.Do(ctx, cmd).Error()
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	cmd := b.client.B().Get().Key(b.prefix + token).Build()
	result := b.client.Do(ctx, cmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MemoryBlacklist is the single-process fallback used when no Redis is
// configured, and by tests.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = time.Now().Add(ttl)
	return nil
}

func (b *MemoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	expiry, ok := b.revoked[token]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(b.revoked, token)
		return false, nil
	}
	return true, nil
}
