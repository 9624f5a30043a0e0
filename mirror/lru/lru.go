// Package lru is a bounded mirror that evicts the least recently used document
// once Size entries are held.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drgatoxd/mongo-cache/mirror"
)

type Mirror[M any] struct {
	c *lru.Cache[string, M]
}

var _ mirror.Mirror[struct{}] = (*Mirror[struct{}])(nil)

type Config struct {
	Size    int
	OnEvict func(id string) // optional, called for capacity evictions and removals
}

func New[M any](cfg Config) (*Mirror[M], error) {
	var (
		c   *lru.Cache[string, M]
		err error
	)
	if cfg.OnEvict != nil {
		c, err = lru.NewWithEvict[string, M](cfg.Size, func(id string, _ M) { cfg.OnEvict(id) })
	} else {
		c, err = lru.New[string, M](cfg.Size)
	}
	if err != nil {
		return nil, err
	}
	return &Mirror[M]{c: c}, nil
}

func (m *Mirror[M]) Get(id string) (M, bool) { return m.c.Get(id) }

func (m *Mirror[M]) Set(id string, v M) error {
	m.c.Add(id, v)
	return nil
}

func (m *Mirror[M]) Delete(id string) { m.c.Remove(id) }
func (m *Mirror[M]) Clear()           { m.c.Purge() }
func (m *Mirror[M]) Len() int         { return m.c.Len() }

// Values returns entries from least to most recently used.
func (m *Mirror[M]) Values() []M { return m.c.Values() }
