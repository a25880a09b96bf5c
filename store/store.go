package store

// Store is a namespaced key-value store for response snapshots.
// A namespace corresponds to one deployed cache version; entries within a
// namespace keep their insertion order. Overwriting an existing key keeps
// the original position of the entry.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the stored snapshot for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(namespace, key string) ([]byte, bool, error)
	// Put stores the given snapshot under the given key,
	// overwriting any previous snapshot for the same key.
	Put(namespace, key string, bytes []byte) error
	// Delete removes the entry for the given key.
	Delete(namespace, key string) error
	// Keys returns all keys in the namespace, oldest first.
	Keys(namespace string) ([]string, error)
	// Namespaces returns the names of all namespaces with at least one entry.
	Namespaces() ([]string, error)
	// DropNamespace removes a namespace and every entry in it.
	DropNamespace(namespace string) error
	// Close releases any resources held by the store.
	Close() error
}
