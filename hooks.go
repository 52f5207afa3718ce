package memocache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The facade calls them on hot paths.
type Hooks interface {
	// A read failed or returned a record that could not be decoded; the call
	// fell through to the producer. err is an *Error of kind
	// BackingStoreUnavailable or SerializationFailure.
	ReadFailOpen(storageKey string, err error)

	// Encoding or storing a produced value failed. The value was still returned.
	WriteFailed(storageKey string, isAggregate bool, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	StoreSetRejected(storageKey string, isAggregate bool)

	// FlushAll (target "*") or FlushGroup (target = group address) failed.
	FlushFailed(target string, err error)

	// An atomic aggregate merge gave up after repeated conflicting writers.
	AggregateConflict(storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReadFailOpen(string, error)      {}
func (NopHooks) WriteFailed(string, bool, error) {}
func (NopHooks) StoreSetRejected(string, bool)   {}
func (NopHooks) FlushFailed(string, error)       {}
func (NopHooks) AggregateConflict(string, error) {}
