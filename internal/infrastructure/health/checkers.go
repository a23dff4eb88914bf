package health

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/ueckoken/kagi/internal/core/ports"
	infraDB "github.com/ueckoken/kagi/internal/infrastructure/db"
)

// ErrLoopStalled is reported when the access loop has been busy for too long.
var ErrLoopStalled = errors.New("access loop stalled")

// dbHealthChecker wraps the audit database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string                    { return "database" }
func (d *dbHealthChecker) Check(ctx context.Context) error { return d.db.DB.PingContext(ctx) }

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client *redis.Client }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

type loopHealthChecker struct{ loop ports.Liveness }

func (l *loopHealthChecker) Name() string { return "door_loop" }
func (l *loopHealthChecker) Check(ctx context.Context) error {
	if !l.loop.Alive() {
		return ErrLoopStalled
	}
	return nil
}

// NewDBHealthChecker creates a health checker for the audit database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client *redis.Client) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewLoopHealthChecker reports the access loop as unhealthy while it is stalled.
func NewLoopHealthChecker(loop ports.Liveness) ports.HealthChecker {
	return &loopHealthChecker{loop: loop}
}
