package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
)

// releaseScript deletes the lease key only when it still holds the caller's
// token. A plain DEL after TTL expiry could remove a lease acquired by
// another worker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseManager hands out mutual-exclusion leases backed by SET NX with a TTL.
// The TTL bounds how long a crashed holder can block other workers.
type LeaseManager struct {
	client     *Client
	logger     *logger.Logger
	ttl        time.Duration
	retryDelay time.Duration
	retryLimit int
}

// NewLeaseManager creates a lease manager.
func NewLeaseManager(client *Client, log *logger.Logger, ttl, retryDelay time.Duration, retryLimit int) (*LeaseManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease TTL must be positive")
	}
	if retryLimit < 1 {
		return nil, fmt.Errorf("lease retry limit must be at least 1")
	}
	return &LeaseManager{
		client:     client,
		logger:     log,
		ttl:        ttl,
		retryDelay: retryDelay,
		retryLimit: retryLimit,
	}, nil
}

// Lease is a held lease. Release it when the protected work is done.
type Lease struct {
	manager *LeaseManager
	key     string
	token   string
}

// Key returns the lease key.
func (l *Lease) Key() string {
	return l.key
}

// Acquire obtains the lease for key, retrying a bounded number of times when
// another holder has it. Returns shared.ErrLeaseHeld once retries run out.
func (m *LeaseManager) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := m.client.client.SetNX(ctx, key, token, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			return &Lease{manager: m, key: key, token: token}, nil
		}

		if attempt >= m.retryLimit {
			return nil, fmt.Errorf("lease %s: %w", key, shared.ErrLeaseHeld)
		}

		m.logger.Debug("lease held, retrying",
			"key", key,
			"attempt", attempt,
			"retry_limit", m.retryLimit,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

// Release gives the lease back. Releasing an already-expired lease is not an
// error; the next holder owns the key by then.
func (l *Lease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.manager.client.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if deleted == 0 {
		l.manager.logger.Warn("lease expired before release", "key", l.key)
	}
	return nil
}
