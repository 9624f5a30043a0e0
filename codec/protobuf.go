package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores generated message types as documents. T is the pointer message
// type, so Decode needs a constructor for the target.
//
// Encoding is deterministic: equal messages always produce equal payloads, which
// keeps stored documents comparable byte for byte.
type Protobuf[T proto.Message] struct {
	alloc func() T
	opts  proto.MarshalOptions
}

func NewProtobuf[T proto.Message](alloc func() T) Protobuf[T] {
	return Protobuf[T]{alloc: alloc, opts: proto.MarshalOptions{Deterministic: true}}
}

func (c Protobuf[T]) Encode(doc T) ([]byte, error) {
	return c.opts.Marshal(doc)
}

func (c Protobuf[T]) Decode(payload []byte) (T, error) {
	doc := c.alloc()
	if err := proto.Unmarshal(payload, doc); err != nil {
		var zero T
		return zero, err
	}
	return doc, nil
}
