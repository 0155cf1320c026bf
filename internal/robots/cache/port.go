package cache

// Cache is the port the robots guard keeps parsed rules behind, keyed by
// origin. Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get returns the value and true if key is present and not expired.
	Get(key string) (V, bool)
	// Put stores value under key, overwriting any previous value.
	Put(key string, value V)
	// Delete removes key; a missing key is not an error.
	Delete(key string)
}
