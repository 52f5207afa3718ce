package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes generated protobuf messages. T is the pointer message
// type, e.g. *pb.Price.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for an empty message, e.g. func() *pb.Price { return &pb.Price{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
