package verification

import (
	"context"
	"time"

	"juicenet/internal/config"
	"juicenet/internal/connpool"
	"juicenet/internal/services/nntp"
)

// PresenceChecker reports which message-ids a server does not have.
type PresenceChecker interface {
	Missing(ctx context.Context, messageIDs []string) ([]string, error)
}

type statConn interface {
	Stat(ctx context.Context, messageID string) (bool, error)
	Close() error
}

// dialFunc opens one NNTP connection.
type dialFunc func(ctx context.Context, server config.Server, timeout time.Duration) (statConn, error)

// PoolChecker issues STAT over one connection leased from the shared pool.
type PoolChecker struct {
	pool    *connpool.Pool
	timeout time.Duration
	dial    dialFunc
}

// NewPoolChecker builds a checker that dials real NNTP servers.
func NewPoolChecker(pool *connpool.Pool, timeout time.Duration) *PoolChecker {
	return &PoolChecker{
		pool:    pool,
		timeout: timeout,
		dial: func(ctx context.Context, server config.Server, timeout time.Duration) (statConn, error) {
			return nntp.Dial(ctx, server, timeout)
		},
	}
}

// Missing implements PresenceChecker.
func (c *PoolChecker) Missing(ctx context.Context, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	lease, err := c.pool.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	conn, err := c.dial(ctx, lease.Server, c.timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var missing []string
	for _, id := range messageIDs {
		ok, err := conn.Stat(ctx, id)
		if err != nil {
			return missing, err
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
