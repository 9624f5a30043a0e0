// Package codec converts entities to and from the representations the cache layer
// needs: opaque bytes (Codec) for byte-oriented stores and mirrors, and sparse field
// documents (Mapper) for partial-match queries and shallow merges.
package codec

// Codec turns one document into the payload a byte-oriented backend keeps
// (a Redis hash field, a bigcache entry) and back.
type Codec[V any] interface {
	Encode(doc V) ([]byte, error)
	Decode(payload []byte) (V, error)
}
