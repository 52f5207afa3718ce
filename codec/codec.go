// Package codec holds the value serializers a Facade uses for producer
// results. Every codec must round-trip: Decode(Encode(v)) == v.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
