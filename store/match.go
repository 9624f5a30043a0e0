package store

import (
	"reflect"

	"github.com/drgatoxd/mongo-cache/codec"
)

// Match reports whether doc satisfies q. Both arguments must be in the
// representation produced by a codec.Mapper (plain maps, []any slices).
//
// Only equality is supported. A key absent from doc holds its zero value, so it
// matches nil, 0, "", false and empty containers; mappers drop such fields under
// omitempty. A nested map in q matches when the corresponding doc field is an
// object that recursively matches it; an empty nested map matches anything.
func Match(doc, q map[string]any) bool {
	for k, want := range q {
		got, present := doc[k]
		if sub, ok := want.(map[string]any); ok {
			if len(sub) == 0 {
				continue
			}
			if !present {
				got = map[string]any{}
			}
			gotDoc, ok := got.(map[string]any)
			if !ok || !Match(gotDoc, sub) {
				return false
			}
			continue
		}
		if !present {
			if isZero(want) {
				continue
			}
			return false
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return rv.IsZero()
}

// Equal compares two document values. Numbers compare by value across Go numeric
// types (an int64 field equals an int query value), containers compare element-wise.
func Equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x.eq(y)
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

type num struct {
	kind byte // 'i', 'u' or 'f'
	i    int64
	u    uint64
	f    float64
}

func number(v any) (num, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return num{kind: 'i', i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return num{kind: 'u', u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return num{kind: 'f', f: rv.Float()}, true
	}
	return num{}, false
}

func (a num) eq(b num) bool {
	switch {
	case a.kind == 'i' && b.kind == 'i':
		return a.i == b.i
	case a.kind == 'u' && b.kind == 'u':
		return a.u == b.u
	case a.kind == 'i' && b.kind == 'u':
		return a.i >= 0 && uint64(a.i) == b.u
	case a.kind == 'u' && b.kind == 'i':
		return b.eq(a)
	}
	return a.float() == b.float()
}

func (a num) float() float64 {
	switch a.kind {
	case 'i':
		return float64(a.i)
	case 'u':
		return float64(a.u)
	}
	return a.f
}

// Compile normalizes q through mapper and returns a predicate over entities.
// The empty query compiles to a predicate that never consults the mapper.
func Compile[M any](mapper codec.Mapper[M], q Query) (func(M) (bool, error), error) {
	nq, err := mapper.Normalize(q)
	if err != nil {
		return nil, err
	}
	if len(nq) == 0 {
		return func(M) (bool, error) { return true, nil }, nil
	}
	return func(m M) (bool, error) {
		doc, err := mapper.Fields(m)
		if err != nil {
			return false, err
		}
		return Match(doc, nq), nil
	}, nil
}
