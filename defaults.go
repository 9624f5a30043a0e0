package mongocache

import (
	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/store"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// mapperFor prefers an explicit mapper, then the store's own field naming.
func mapperFor[M Entity](explicit codec.Mapper[M], s store.Store[M]) codec.Mapper[M] {
	if explicit != nil {
		return explicit
	}
	if mp, ok := s.(store.MapperProvider[M]); ok {
		return mp.Mapper()
	}
	return codec.JSONMapper[M]{}
}
