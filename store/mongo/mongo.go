// Package mongo implements store.Store on a MongoDB collection.
//
// Documents are (de)serialized with their bson tags; the entity type must map its
// identifier to the "_id" field as a string. Queries are sent as equality filters,
// nested sparse queries are flattened into dotted paths ({"a": {"b": 1}} becomes
// {"a.b": 1}) so they match sub-fields the same way the local matcher does.
//
// One difference remains: the local matcher (store.Match) treats a missing field as
// its zero value, so {"age": 0} matches a document stored without "age". The server
// only matches that document for {"age": nil}. Entities whose zero values are
// omitted on write may therefore match more documents in Filter than in FetchFilter.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/store"
)

var ErrNilCollection = errors.New("mongo store: nil collection")

type Store[M store.Entity] struct {
	coll   *mongo.Collection
	mapper codec.BSONMapper[M]
	client *mongo.Client // set only when the store owns the client
}

var _ store.Store[store.Entity] = (*Store[store.Entity])(nil)

type Config struct {
	Collection *mongo.Collection
	// CloseClient disconnects the collection's client on Close. Set it only when
	// this store exclusively owns the client.
	CloseClient bool
}

func New[M store.Entity](cfg Config) (*Store[M], error) {
	if cfg.Collection == nil {
		return nil, ErrNilCollection
	}
	s := &Store[M]{coll: cfg.Collection}
	if cfg.CloseClient {
		s.client = cfg.Collection.Database().Client()
	}
	return s, nil
}

// Connect dials uri and returns a store owning the client, bound to db.collection.
func Connect[M store.Entity](ctx context.Context, uri, db, collection string) (*Store[M], error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return New[M](Config{
		Collection:  client.Database(db).Collection(collection),
		CloseClient: true,
	})
}

func (s *Store[M]) Mapper() codec.Mapper[M] { return s.mapper }

func (s *Store[M]) FetchByID(ctx context.Context, id string) (M, bool, error) {
	return s.findOne(ctx, idFilter(id))
}

func (s *Store[M]) FetchOne(ctx context.Context, q store.Query) (M, bool, error) {
	var zero M
	filter, err := s.filter(q)
	if err != nil {
		return zero, false, err
	}
	return s.findOne(ctx, filter)
}

func (s *Store[M]) findOne(ctx context.Context, filter bson.D) (M, bool, error) {
	var m M
	err := s.coll.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero M
		return zero, false, nil
	}
	if err != nil {
		var zero M
		return zero, false, err
	}
	return m, true, nil
}

func (s *Store[M]) FetchAll(ctx context.Context) ([]M, error) {
	return s.find(ctx, bson.D{})
}

func (s *Store[M]) FetchMany(ctx context.Context, q store.Query) ([]M, error) {
	filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, filter)
}

func (s *Store[M]) find(ctx context.Context, filter bson.D) ([]M, error) {
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := []M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[M]) Insert(ctx context.Context, data store.Query) (M, error) {
	var zero M
	doc, id, err := store.Seed(data, func() string { return bson.NewObjectID().Hex() })
	if err != nil {
		return zero, err
	}
	m, err := s.mapper.Entity(doc)
	if err != nil {
		return zero, err
	}
	if m.EntityID() != id {
		return zero, fmt.Errorf("%w: entity does not carry %s %q", store.ErrInvalidID, store.IDField, id)
	}
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return zero, fmt.Errorf("%w: %q: %v", store.ErrDuplicateID, id, err)
		}
		return zero, err
	}
	return m, nil
}

func (s *Store[M]) Persist(ctx context.Context, m M) error {
	filter, doc, err := persistTarget(m)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store[M]) DeleteOne(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, idFilter(id))
	return err
}

// idFilter selects the document whose _id is id. A 24 digit hex id also matches
// the ObjectID it encodes, since entities report ObjectIDs in hex form.
func idFilter(id string) bson.D {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: store.IDField, Value: bson.D{{Key: "$in", Value: bson.A{id, oid}}}}}
	}
	return bson.D{{Key: store.IDField, Value: id}}
}

// persistTarget encodes m and returns it with a filter on the _id value it is
// stored under, whatever its BSON type.
func persistTarget[M store.Entity](m M) (bson.D, bson.Raw, error) {
	if m.EntityID() == "" {
		return nil, nil, store.ErrInvalidID
	}
	b, err := bson.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	doc := bson.Raw(b)
	id, err := doc.LookupErr(store.IDField)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: document has no %s", store.ErrInvalidID, store.IDField)
	}
	return bson.D{{Key: store.IDField, Value: id}}, doc, nil
}

func (s *Store[M]) DeleteMany(ctx context.Context, q store.Query) error {
	filter, err := s.filter(q)
	if err != nil {
		return err
	}
	_, err = s.coll.DeleteMany(ctx, filter)
	return err
}

// Close disconnects the client when the store owns it.
func (s *Store[M]) Close(ctx context.Context) error {
	if s.client != nil {
		return s.client.Disconnect(ctx)
	}
	return nil
}

func (s *Store[M]) filter(q store.Query) (bson.D, error) {
	nq, err := s.mapper.Normalize(q)
	if err != nil {
		return nil, err
	}
	return Filter(nq), nil
}

// Filter flattens a normalized query into an equality filter with dotted paths,
// sorted by path. Empty nested queries contribute nothing.
func Filter(q map[string]any) bson.D {
	out := bson.D{}
	flatten("", q, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func flatten(prefix string, q map[string]any, out *bson.D) {
	for k, v := range q {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, out)
			continue
		}
		*out = append(*out, bson.E{Key: path, Value: v})
	}
}
