package codec

import (
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Mapper converts between entities and their field documents. Field names are the
// serialized names of the entity (json tags for JSONMapper, bson tags for BSONMapper),
// which are also the keys used in queries.
type Mapper[M any] interface {
	// Fields returns the document view of m. Nested objects are map[string]any and
	// arrays are []any.
	Fields(m M) (map[string]any, error)
	// Entity rebuilds an M from a possibly partial document.
	Entity(doc map[string]any) (M, error)
	// Normalize converts caller supplied query values into the representation
	// Fields produces so both sides compare with plain equality.
	Normalize(q map[string]any) (map[string]any, error)
	// Merge returns a copy of cur with the top-level fields named in patch
	// replaced whole. Fields patch does not name are kept as they are, even
	// when Fields cannot see them.
	Merge(cur M, patch map[string]any) (M, error)
}

// JSONMapper maps entities through their JSON form. Numbers become float64 and
// times become RFC 3339 strings on both sides of a comparison.
type JSONMapper[M any] struct{}

var _ Mapper[struct{}] = JSONMapper[struct{}]{}

func (JSONMapper[M]) Fields(m M) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return jsonDoc(b)
}

func (JSONMapper[M]) Entity(doc map[string]any) (M, error) {
	var m M
	b, err := json.Marshal(doc)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func (JSONMapper[M]) Normalize(q map[string]any) (map[string]any, error) {
	if len(q) == 0 {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return jsonDoc(b)
}

func (JSONMapper[M]) Merge(cur M, patch map[string]any) (M, error) {
	return shallowMerge(cur, patch, jsonNaming{}, json.Marshal, json.Unmarshal)
}

func jsonDoc(b []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// BSONMapper maps entities through their BSON form, so field names and value types
// line up with what MongoDB stores and matches against.
type BSONMapper[M any] struct{}

var _ Mapper[struct{}] = BSONMapper[struct{}]{}

func (BSONMapper[M]) Fields(m M) (map[string]any, error) {
	b, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bsonDoc(b)
}

func (BSONMapper[M]) Entity(doc map[string]any) (M, error) {
	var m M
	b, err := bson.Marshal(doc)
	if err != nil {
		return m, err
	}
	err = bson.Unmarshal(b, &m)
	return m, err
}

func (BSONMapper[M]) Normalize(q map[string]any) (map[string]any, error) {
	if len(q) == 0 {
		return map[string]any{}, nil
	}
	b, err := bson.Marshal(q)
	if err != nil {
		return nil, err
	}
	return bsonDoc(b)
}

func (BSONMapper[M]) Merge(cur M, patch map[string]any) (M, error) {
	return shallowMerge(cur, patch, bsonNaming{}, bson.Marshal, bson.Unmarshal)
}

func bsonDoc(b []byte) (map[string]any, error) {
	var raw bson.M
	if err := bson.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return plainDoc(raw), nil
}

// plainDoc rewrites driver container types (bson.M, bson.D, bson.A) into plain maps
// and slices so matching code only deals with one shape.
func plainDoc(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch vv := v.(type) {
	case bson.M:
		return plainDoc(vv)
	case map[string]any:
		return plainDoc(vv)
	case bson.D:
		out := make(map[string]any, len(vv))
		for _, e := range vv {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		return plainSlice(vv)
	case []any:
		return plainSlice(vv)
	default:
		return v
	}
}

func plainSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = plainValue(v)
	}
	return out
}
