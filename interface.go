package kvcache

// A decoded cache value.  Body holds whatever the client's Codec produced
// from the wire payload; Flags are server-opaque and echoed back verbatim.
type Value struct {
	Body  interface{}
	Flags uint32
}

// A single undecoded entry as parsed off the wire.
type Entry struct {
	// The entry's wire key (namespace prefix included, if any).
	Key string

	// The raw payload bytes.
	Body []byte

	// Server-opaque flags whose semantics are entirely up to the app.
	Flags uint32
}

// Codec converts between the caller's value type and wire payload bytes.
// Decode is only ever invoked on entries that were present in a response;
// a cache miss never reaches the codec.
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(body []byte) (interface{}, error)
}

// NodeLocator deterministically maps a key to exactly one node of the pool
// generation it is bound to.  Implementations must be safe for concurrent
// Route calls, must never perform network I/O, and must run in O(1) or
// O(log n) in pool size.
type NodeLocator interface {
	// This binds the locator to a pool generation.  Re-binding after a
	// topology change is an explicit call the owner makes; it is never
	// implied by mutation of a previously bound pool.
	Bind(pool *ServerPool)

	// This selects the node owning key.  Routing is a pure function of
	// (bound pool generation, key bytes).  Calling Route before Bind, or
	// against an empty pool, fails with a ConfigError.
	Route(key string) (*ServerNode, error)
}

type Client interface {
	// This retrieves a single entry.  The result is nil when the key is
	// absent.  Key validation errors and destination failures are returned
	// to the caller; there is no retry.
	Get(key string) (*Value, error)

	// Batch version of Get.  Keys are grouped by destination and one
	// batched request per distinct destination is issued concurrently.
	// Destinations that fail contribute nothing: the returned mapping
	// contains exactly the requested keys that were both routed to a
	// responding destination and present in its response.  The error is
	// non-nil only for validation or configuration failures, which are
	// detected before any network activity.
	GetMulti(keys []string) (map[string]*Value, error)

	// This stores a single entry.
	Set(key string, value interface{}, flags uint32) error

	// This deletes a single entry.  Deleting an absent key is not an error.
	Delete(key string) error

	// SetNamespace installs a prefix applied to every subsequent call's
	// wire keys and stripped from every returned mapping's keys.  The
	// caller-visible key identity is never altered.
	SetNamespace(namespace string)

	// Namespace returns the currently installed prefix.
	Namespace() string

	// Shutdown closes the underlying server pool, unblocking any in-flight
	// waits.  The client is unusable afterwards.
	Shutdown()
}
