// Package traced decorates a store.Store with OpenTelemetry spans, one per Store
// call, named "<namespace>.<Op>" (e.g. "users.FetchByID").
package traced

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/store"
)

const instrumentationName = "github.com/drgatoxd/mongo-cache/store/traced"

type Store[M store.Entity] struct {
	inner  store.Store[M]
	tracer trace.Tracer
	ns     string
}

var _ store.Store[store.Entity] = (*Store[store.Entity])(nil)

// Wrap returns inner instrumented with provider (nil => global provider).
func Wrap[M store.Entity](inner store.Store[M], provider trace.TracerProvider, namespace string) *Store[M] {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Store[M]{inner: inner, tracer: provider.Tracer(instrumentationName), ns: namespace}
}

// Mapper forwards the inner store's mapper when it has one.
func (s *Store[M]) Mapper() codec.Mapper[M] {
	if mp, ok := s.inner.(store.MapperProvider[M]); ok {
		return mp.Mapper()
	}
	return codec.JSONMapper[M]{}
}

func (s *Store[M]) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("mongocache.namespace", s.ns))
	return s.tracer.Start(ctx, s.ns+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store[M]) FetchByID(ctx context.Context, id string) (M, bool, error) {
	ctx, span := s.start(ctx, "FetchByID", attribute.String("mongocache.id", id))
	m, ok, err := s.inner.FetchByID(ctx, id)
	span.SetAttributes(attribute.Bool("mongocache.found", ok))
	end(span, err)
	return m, ok, err
}

func (s *Store[M]) FetchOne(ctx context.Context, q store.Query) (M, bool, error) {
	ctx, span := s.start(ctx, "FetchOne", attribute.Int("mongocache.query.keys", len(q)))
	m, ok, err := s.inner.FetchOne(ctx, q)
	span.SetAttributes(attribute.Bool("mongocache.found", ok))
	end(span, err)
	return m, ok, err
}

func (s *Store[M]) FetchAll(ctx context.Context) ([]M, error) {
	ctx, span := s.start(ctx, "FetchAll")
	out, err := s.inner.FetchAll(ctx)
	span.SetAttributes(attribute.Int("mongocache.results", len(out)))
	end(span, err)
	return out, err
}

func (s *Store[M]) FetchMany(ctx context.Context, q store.Query) ([]M, error) {
	ctx, span := s.start(ctx, "FetchMany", attribute.Int("mongocache.query.keys", len(q)))
	out, err := s.inner.FetchMany(ctx, q)
	span.SetAttributes(attribute.Int("mongocache.results", len(out)))
	end(span, err)
	return out, err
}

func (s *Store[M]) Insert(ctx context.Context, data store.Query) (M, error) {
	ctx, span := s.start(ctx, "Insert")
	m, err := s.inner.Insert(ctx, data)
	if err == nil {
		span.SetAttributes(attribute.String("mongocache.id", m.EntityID()))
	}
	end(span, err)
	return m, err
}

func (s *Store[M]) Persist(ctx context.Context, m M) error {
	ctx, span := s.start(ctx, "Persist", attribute.String("mongocache.id", m.EntityID()))
	err := s.inner.Persist(ctx, m)
	end(span, err)
	return err
}

func (s *Store[M]) DeleteOne(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "DeleteOne", attribute.String("mongocache.id", id))
	err := s.inner.DeleteOne(ctx, id)
	end(span, err)
	return err
}

func (s *Store[M]) DeleteMany(ctx context.Context, q store.Query) error {
	ctx, span := s.start(ctx, "DeleteMany", attribute.Int("mongocache.query.keys", len(q)))
	err := s.inner.DeleteMany(ctx, q)
	end(span, err)
	return err
}

func (s *Store[M]) Close(ctx context.Context) error { return s.inner.Close(ctx) }
