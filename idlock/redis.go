package idlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/drgatoxd/mongo-cache/internal/util"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
	unlockTimeout    = time.Second
)

var ErrNilClient = errors.New("idlock: nil redis client")

// unlock deletes the key only if it still holds our token, so a holder whose lock
// expired cannot release somebody else's.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock keyed by <prefix>:lock:<namespace>:<id>.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ns     string
	ttl    time.Duration
	retry  time.Duration
}

var _ Locker = (*Redis)(nil)

type RedisConfig struct {
	Client        redis.UniversalClient
	Namespace     string        // should match the cache namespace
	Prefix        string        // "" => "mcache"
	TTL           time.Duration // 0 => 10s
	RetryInterval time.Duration // 0 => 25ms
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{
		rdb:    cfg.Client,
		prefix: cfg.Prefix,
		ns:     cfg.Namespace,
		ttl:    cfg.TTL,
		retry:  cfg.RetryInterval,
	}
	if r.prefix == "" {
		r.prefix = "mcache"
	}
	if r.ttl <= 0 {
		r.ttl = defaultLockTTL
	}
	if r.retry <= 0 {
		r.retry = defaultLockRetry
	}
	return r, nil
}

func (r *Redis) key(id string) string { return util.LockKey(r.prefix, r.ns, id) }

func (r *Redis) Lock(ctx context.Context, id string) (func(), error) {
	k := r.key(id)
	token := uuid.NewString()

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return r.unlocker(k, token), nil
		}
		t.Reset(r.retry)
	}
}

func (r *Redis) unlocker(k, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			// best effort: on failure the key expires after ttl
			_ = unlockScript.Run(ctx, r.rdb, []string{k}, token).Err()
		})
	}
}

// Close is a no-op; the client belongs to the caller.
func (r *Redis) Close(context.Context) error { return nil }
