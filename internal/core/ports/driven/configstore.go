package driven

// ConfigStore persists settings as dotted keys ("retrieval.top_k").
// Values keep the type the backing format decodes them to, so callers
// must accept strings, int64, float64 and bool for the same key.
type ConfigStore interface {
	// Get retrieves a value by key.
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// SetMany stores several values and persists them in one write,
	// so a reader never sees only part of them.
	SetMany(values map[string]any) error

	// Keys returns the stored keys in sorted order.
	Keys() []string

	// Load rereads the store from its backing file.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
