// Package bigcache is a mirror that keeps documents encoded in bigcache's
// off-heap shards, which keeps large mirrors cheap for the garbage collector.
//
// Entries older than LifeWindow are dropped lazily when their shard is written to,
// and, when CleanWindow > 0, by bigcache's background cleaner.
package bigcache

import (
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/internal/wire"
	"github.com/drgatoxd/mongo-cache/mirror"
)

const defaultLifeWindow = 24 * time.Hour

type Mirror[M any] struct {
	c     *bc.BigCache
	codec codec.Codec[M]
}

var _ mirror.Mirror[struct{}] = (*Mirror[struct{}])(nil)

type Config[M any] struct {
	Codec              codec.Codec[M] // nil => codec.JSON
	LifeWindow         time.Duration  // 0 => 24h
	CleanWindow        time.Duration  // 0 => no background cleanup
	Shards             int            // 0 => bigcache default (1024)
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New[M any](cfg Config[M]) (*Mirror[M], error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	m := &Mirror[M]{c: c, codec: cfg.Codec}
	if m.codec == nil {
		m.codec = codec.JSON[M]{}
	}
	return m, nil
}

// Get treats undecodable entries as misses and drops them.
func (m *Mirror[M]) Get(id string) (M, bool) {
	var zero M
	b, err := m.c.Get(id)
	if err != nil {
		return zero, false
	}
	v, err := m.decode(id, b)
	if err != nil {
		_ = m.c.Delete(id) // self-heal corrupt
		return zero, false
	}
	return v, true
}

func (m *Mirror[M]) Set(id string, v M) error {
	payload, err := m.codec.Encode(v)
	if err != nil {
		return err
	}
	b, err := wire.EncodeRecord(id, payload)
	if err != nil {
		return err
	}
	return m.c.Set(id, b)
}

func (m *Mirror[M]) Delete(id string) { _ = m.c.Delete(id) }

func (m *Mirror[M]) Clear() { _ = m.c.Reset() }

func (m *Mirror[M]) Len() int { return m.c.Len() }

// Values iterates every shard. Order is unspecified.
func (m *Mirror[M]) Values() []M {
	out := make([]M, 0, m.c.Len())
	it := m.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		v, err := m.decode(info.Key(), info.Value())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m *Mirror[M]) Close() error { return m.c.Close() }

func (m *Mirror[M]) decode(id string, b []byte) (M, error) {
	payload, err := wire.DecodeRecordFor(id, b)
	if err != nil {
		var zero M
		return zero, err
	}
	return m.codec.Decode(payload)
}
