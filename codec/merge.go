package codec

import (
	"fmt"
	"reflect"
	"strings"
)

// fieldNaming resolves the serialized name of a struct field for one tag family.
type fieldNaming interface {
	// name returns the field's key, whether it is inlined into its parent, and
	// false when the field never appears in the serialized form.
	name(f reflect.StructField) (key string, inline, ok bool)
	same(key, want string) bool
}

type jsonNaming struct{}

func (jsonNaming) name(f reflect.StructField) (string, bool, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	key, _, _ := strings.Cut(tag, ",")
	if f.Anonymous && key == "" && isStructLike(f.Type) {
		return "", true, true
	}
	if !f.IsExported() {
		return "", false, false
	}
	if key == "" {
		key = f.Name
	}
	return key, false, true
}

// encoding/json matches object keys to fields case-insensitively.
func (jsonNaming) same(key, want string) bool { return strings.EqualFold(key, want) }

type bsonNaming struct{}

func (bsonNaming) name(f reflect.StructField) (string, bool, bool) {
	tag := f.Tag.Get("bson")
	if tag == "-" || !f.IsExported() {
		return "", false, false
	}
	key, opts, _ := strings.Cut(tag, ",")
	for _, o := range strings.Split(opts, ",") {
		if o == "inline" && isStructLike(f.Type) {
			return "", true, true
		}
	}
	if key == "" {
		key = strings.ToLower(f.Name)
	}
	return key, false, true
}

func (bsonNaming) same(key, want string) bool { return key == want }

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// shallowMerge returns a copy of cur whose top-level fields named in patch hold the
// patch values. Every other field keeps its value, including fields the serialized
// form never carries. cur itself, and anything it points to, is left unmodified.
func shallowMerge[M any](cur M, patch map[string]any, n fieldNaming,
	marshal func(any) ([]byte, error), unmarshal func([]byte, any) error) (M, error) {
	var zero M
	if len(patch) == 0 {
		return cur, nil
	}

	target := reflect.ValueOf(&cur).Elem()
	if target.Kind() == reflect.Pointer {
		fresh := reflect.New(target.Type().Elem())
		if !target.IsNil() {
			fresh.Elem().Set(target.Elem())
		}
		target.Set(fresh)
		target = fresh.Elem()
	}

	b, err := marshal(patch)
	if err != nil {
		return zero, err
	}

	switch target.Kind() {
	case reflect.Struct:
		for k := range patch {
			clearField(target, k, n)
		}
		if err := unmarshal(b, target.Addr().Interface()); err != nil {
			return zero, err
		}
	case reflect.Map:
		if target.Type().Key().Kind() != reflect.String {
			return zero, fmt.Errorf("codec: cannot merge into %s", target.Type())
		}
		delta := reflect.New(target.Type())
		if err := unmarshal(b, delta.Interface()); err != nil {
			return zero, err
		}
		cp := reflect.MakeMapWithSize(target.Type(), target.Len()+len(patch))
		for _, src := range []reflect.Value{target, delta.Elem()} {
			iter := src.MapRange()
			for iter.Next() {
				cp.SetMapIndex(iter.Key(), iter.Value())
			}
		}
		target.Set(cp)
	default:
		return zero, fmt.Errorf("codec: cannot merge into %s", target.Type())
	}
	return cur, nil
}

// clearField zeroes every field of v serialized as key, descending into inlined
// structs. Inlined pointers are copied first so the original pointee is not touched.
func clearField(v reflect.Value, key string, n fieldNaming) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, inline, ok := n.name(t.Field(i))
		if !ok {
			continue
		}
		fv := v.Field(i)
		if inline {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() || !fv.CanSet() {
					continue
				}
				fresh := reflect.New(fv.Type().Elem())
				fresh.Elem().Set(fv.Elem())
				fv.Set(fresh)
				fv = fresh.Elem()
			}
			clearField(fv, key, n)
			continue
		}
		if n.same(name, key) && fv.CanSet() {
			fv.Set(reflect.Zero(fv.Type()))
		}
	}
}
