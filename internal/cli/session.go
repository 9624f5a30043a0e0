package cli

import (
	"context"
	"fmt"
	"io"
	stdslog "log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	mongocache "github.com/drgatoxd/mongo-cache"
	"github.com/drgatoxd/mongo-cache/codec"
	asynchook "github.com/drgatoxd/mongo-cache/hooks/async"
	"github.com/drgatoxd/mongo-cache/idlock"
	logruslog "github.com/drgatoxd/mongo-cache/log/logrus"
	slogadapter "github.com/drgatoxd/mongo-cache/log/slog"
	zaplog "github.com/drgatoxd/mongo-cache/log/zap"
	"github.com/drgatoxd/mongo-cache/mirror"
	"github.com/drgatoxd/mongo-cache/mirror/bigcache"
	"github.com/drgatoxd/mongo-cache/mirror/lru"
	"github.com/drgatoxd/mongo-cache/mirror/ristretto"
	"github.com/drgatoxd/mongo-cache/sloghooks"
	"github.com/drgatoxd/mongo-cache/store"
	"github.com/drgatoxd/mongo-cache/store/memory"
	mongostore "github.com/drgatoxd/mongo-cache/store/mongo"
	redisstore "github.com/drgatoxd/mongo-cache/store/redis"
	"github.com/drgatoxd/mongo-cache/store/traced"
)

// session is one mediator over the configured store, alive for one command or one
// shell.
type session struct {
	cache   mongocache.Cache[Record]
	mapper  codec.Mapper[Record]
	closers []func()
}

func openSession(ctx context.Context, cfg Config, verbose bool, errOut io.Writer) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			s.runClosers()
		}
	}()

	logger, err := s.newLogger(cfg, errOut)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	if cfg.Store.Driver == "redis" || cfg.Lock == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Addr,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Store.Addr, err)
		}
		if cfg.Store.Driver != "redis" {
			// not owned by the store
			s.closers = append(s.closers, func() { _ = rdb.Close() })
		}
	}

	st, err := newStore(ctx, cfg, rdb)
	if err != nil {
		if rdb != nil && cfg.Store.Driver == "redis" {
			// the store never took ownership
			_ = rdb.Close()
		}
		return nil, err
	}
	if cfg.Tracing {
		st = traced.Wrap[Record](st, otel.GetTracerProvider(), cfg.Namespace)
	}
	s.mapper = codec.JSONMapper[Record]{}
	if mp, ok := st.(store.MapperProvider[Record]); ok {
		s.mapper = mp.Mapper()
	}

	mir, err := newMirror(cfg)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	opts := mongocache.Options[Record]{
		Namespace: cfg.Namespace,
		Store:     st,
		Mirror:    mir,
		Logger:    logger,
		Reconcile: reconcileModes[cfg.Reconcile],
		Disabled:  cfg.Mirror.Kind == "none",
	}
	switch cfg.Lock {
	case "local":
		opts.Locker = idlock.NewLocal()
	case "redis":
		l, err := idlock.NewRedis(idlock.RedisConfig{Client: rdb, Namespace: cfg.Namespace, Prefix: cfg.Store.Prefix})
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		opts.Locker = l
	}
	if verbose {
		l := stdslog.New(stdslog.NewTextHandler(errOut, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))
		h := asynchook.New(sloghooks.New(l, sloghooks.Options{RawIDs: true}), 1, 256)
		s.closers = append(s.closers, h.Close)
		opts.Hooks = h
	}

	c, err := mongocache.New[Record](opts)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	s.cache = c
	return s, nil
}

// Close shuts the cache (and with it the store) before flushing hooks and logs.
func (s *session) Close(ctx context.Context) error {
	var err error
	if s.cache != nil {
		err = s.cache.Close(ctx)
	}
	s.runClosers()
	return err
}

func (s *session) runClosers() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

var reconcileModes = map[string]mongocache.ReconcileMode{
	"count":  mongocache.ReconcileCount,
	"ids":    mongocache.ReconcileIDs,
	"always": mongocache.ReconcileAlways,
}

func (s *session) newLogger(cfg Config, errOut io.Writer) (mongocache.Logger, error) {
	switch cfg.Log.Kind {
	case "zap":
		lvl, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		l := zap.New(zapcore.NewCore(enc, zapcore.AddSync(errOut), lvl))
		s.closers = append(s.closers, func() { _ = l.Sync() })
		return zaplog.New(l), nil
	case "logrus":
		lvl, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		l := logrus.New()
		l.SetOutput(errOut)
		l.SetLevel(lvl)
		return logruslog.New(l), nil
	case "slog":
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, err
		}
		l := stdslog.New(stdslog.NewTextHandler(errOut, &stdslog.HandlerOptions{Level: lvl}))
		return slogadapter.New(l), nil
	default:
		return nil, nil
	}
}

func newStore(ctx context.Context, cfg Config, rdb redis.UniversalClient) (store.Store[Record], error) {
	switch cfg.Store.Driver {
	case "mongo":
		return mongostore.Connect[Record](ctx, cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection)
	case "redis":
		cdc, err := recordCodec(cfg.Store.Codec)
		if err != nil {
			return nil, err
		}
		return redisstore.New[Record](redisstore.Config[Record]{
			Client:      rdb,
			Namespace:   cfg.Store.Collection,
			Prefix:      cfg.Store.Prefix,
			Codec:       cdc,
			CloseClient: true,
		})
	default:
		return memory.New[Record](memory.Options[Record]{}), nil
	}
}

func recordCodec(name string) (codec.Codec[Record], error) {
	switch name {
	case "msgpack":
		return codec.Msgpack[Record]{}, nil
	case "cbor":
		return codec.NewCBOR[Record](true)
	default:
		return codec.JSON[Record]{}, nil
	}
}

// newMirror returns nil for the default map mirror.
func newMirror(cfg Config) (mirror.Mirror[Record], error) {
	switch cfg.Mirror.Kind {
	case "lru":
		return lru.New[Record](lru.Config{Size: cfg.Mirror.Size})
	case "bigcache":
		cdc, err := recordCodec(cfg.Store.Codec)
		if err != nil {
			return nil, err
		}
		return bigcache.New[Record](bigcache.Config[Record]{Codec: cdc, LifeWindow: cfg.Mirror.LifeWindow})
	case "ristretto":
		size := int64(cfg.Mirror.Size)
		return ristretto.New[Record](ristretto.Config{NumCounters: 10 * size, MaxCost: size})
	default:
		return nil, nil
	}
}
