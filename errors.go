package memocache

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKey     = errors.New("memocache: empty key")
	ErrNilProducer  = errors.New("memocache: nil producer")
	ErrAggregateKey = errors.New("memocache: aggregate entries are only dropped by flushing their group")
)

type ErrorKind uint8

const (
	BackingStoreUnavailable ErrorKind = iota + 1
	ProducerFailure
	SerializationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case BackingStoreUnavailable:
		return "backing store unavailable"
	case ProducerFailure:
		return "producer failure"
	case SerializationFailure:
		return "serialization failure"
	default:
		return "unknown"
	}
}

// Error carries the kind of a failure and the operation that hit it.
// Err is the underlying cause, reachable through errors.Is / errors.As.
type Error struct {
	Kind ErrorKind
	Op   string // "get", "set", "decode", "encode", "produce", "delete", "flush", "update"
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("memocache: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("memocache: %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
