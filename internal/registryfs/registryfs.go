// Package registryfs abstracts the three platform-registry operations
// spec.md §6 calls for ("subkey_names", "default_value", "open"), so the
// locate package never touches a concrete registry API directly.
// Non-platforms return empty, per spec: this package ships only a stub
// implementation that always does so, plus an injectable in-memory
// implementation for tests that want to exercise the {Registry:...}
// search-path token.
package registryfs

// Registry is the abstracted registry interface named in spec.md §6.
// Implementations must be safe for concurrent reads.
type Registry interface {
	// SubkeyNames lists immediate subkey names under root/path. Returns
	// nil if the key does not exist or the platform has no registry.
	SubkeyNames(root, path string) []string
	// DefaultValue returns the default (unnamed) value of root/path, if
	// set.
	DefaultValue(root, path string) (string, bool)
	// Open reports whether root/path exists at all.
	Open(root, path string) bool
}

// Stub is a Registry that always returns empty results. It is the default
// on platforms with no registry concept (spec.md §6: "Non-platforms return
// empty").
type Stub struct{}

var _ Registry = Stub{}

func (Stub) SubkeyNames(root, path string) []string      { return nil }
func (Stub) DefaultValue(root, path string) (string, bool) { return "", false }
func (Stub) Open(root, path string) bool                  { return false }

// Memory is an in-memory Registry implementation for tests, keyed by
// "root\path" exactly as the real Windows registry would be addressed.
type Memory struct {
	Subkeys  map[string][]string
	Defaults map[string]string
}

var _ Registry = (*Memory)(nil)

func key(root, path string) string { return root + "\\" + path }

func (m *Memory) SubkeyNames(root, path string) []string {
	if m.Subkeys == nil {
		return nil
	}
	return m.Subkeys[key(root, path)]
}

func (m *Memory) DefaultValue(root, path string) (string, bool) {
	if m.Defaults == nil {
		return "", false
	}
	v, ok := m.Defaults[key(root, path)]
	return v, ok
}

func (m *Memory) Open(root, path string) bool {
	if _, ok := m.DefaultValue(root, path); ok {
		return true
	}
	return len(m.SubkeyNames(root, path)) > 0
}
