package graph

import (
	"sort"
	"sync"

	art "github.com/plar/go-adaptive-radix-tree"
)

// Table is the ReferenceTable described in spec.md §3: a mapping from
// AssemblyIdentity (Simple equality) to Reference. It is owned exclusively
// by the C7 driver thread; the art radix tree gives ordered iteration over
// SimpleKey strings "for free", exactly as the teacher's linker/symbols.go
// indexes descriptor full names with the same library.
type Table struct {
	mu    sync.Mutex
	tree  art.Tree
	order []string // insertion order, for FIFO-consistent decision-log blocks
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{tree: art.New()}
}

// Get looks up the Reference for simpleKey.
func (t *Table) Get(simpleKey string) (*Reference, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.tree.Search(art.Key(simpleKey))
	if !ok {
		return nil, false
	}
	return v.(*Reference), true
}

// Put inserts or replaces the Reference for simpleKey, tracking insertion
// order the first time a key is seen.
func (t *Table) Put(simpleKey string, ref *Reference) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, existed := t.tree.Search(art.Key(simpleKey)); !existed {
		t.order = append(t.order, simpleKey)
	}
	t.tree.Insert(art.Key(simpleKey), ref)
}

// Remove deletes the entry for simpleKey, used by exclusion-list pruning
// (spec.md §4.7 step 3; a Reference's lifecycle ends here per spec.md
// §3's "Lifecycle").
func (t *Table) Remove(simpleKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Delete(art.Key(simpleKey))
	for i, k := range t.order {
		if k == simpleKey {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live References.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Size()
}

// InOrder returns every live Reference in insertion (discovery) order:
// primaries first (in the order seeded), then dependencies in the order
// first enqueued. This is the order the decision log's per-reference
// block follows (spec.md §4.10).
func (t *Table) InOrder() []*Reference {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Reference, 0, len(t.order))
	for _, k := range t.order {
		if v, ok := t.tree.Search(art.Key(k)); ok {
			out = append(out, v.(*Reference))
		}
	}
	return out
}

// SortedKeys returns every live SimpleKey in lexicographic order, useful
// for deterministic test assertions independent of discovery order.
func (t *Table) SortedKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, t.tree.Size())
	it := t.tree.Iterator()
	for it.HasNext() {
		n, err := it.Next()
		if err != nil {
			break
		}
		keys = append(keys, string(n.Key()))
	}
	sort.Strings(keys)
	return keys
}
