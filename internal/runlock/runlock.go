// Package runlock keeps valuation runs from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/kelsos/realms-tvl/internal/logger"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("a valuation run is already in progress")

// Lock is a non-blocking mutual exclusion around one valuation run.
type Lock interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// Local allows one run per process.
type Local struct {
	slot chan struct{}
}

func NewLocal() *Local {
	return &Local{slot: make(chan struct{}, 1)}
}

func (l *Local) TryAcquire(context.Context) (func(), error) {
	select {
	case l.slot <- struct{}{}:
		return func() { <-l.slot }, nil
	default:
		return nil, ErrRunInProgress
	}
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis allows one run across every process sharing the key. The TTL bounds
// how long a crashed holder blocks others; a live holder keeps renewing it.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

// NewRedisFromURL parses a redis:// URL and checks the server is reachable.
func NewRedisFromURL(ctx context.Context, url, key string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedis(client, key, ttl), nil
}

// TryAcquire takes the key and renews it every third of the TTL until the
// returned release is called.
func (r *Redis) TryAcquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.renew(token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// The caller's context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{r.key}, token).Err(); err != nil {
				logger.Warn("Failed to release run lock %s: %v", r.key, err)
			}
		})
	}, nil
}

// renew extends the key until stop is closed or the key is lost. A failed
// extension is retried on the next tick while the key may still be live.
func (r *Redis) renew(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			logger.Warn("Failed to extend run lock %s: %v", r.key, err)
			continue
		}
		if extended == 0 {
			logger.Error("Run lock %s was lost before the run finished", r.key)
			return
		}
		logger.Debug("Extended run lock %s by %s", r.key, r.ttl)
	}
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Chain acquires every lock in order and releases them in reverse. If one
// cannot be taken, those already held are released.
type Chain []Lock

func (c Chain) TryAcquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, lock := range c {
		release, err := lock.TryAcquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
