// Package cache implements the persistent metadata cache (spec.md C3):
// memoizing probe.Prober results keyed by path+mtime, with atomic
// state-file persistence across resolver invocations, plus non-persisted
// directory-listing/file-existence memoization scoped to a single
// invocation.
//
// The in-memory path index is an adaptive radix tree (the same
// github.com/plar/go-adaptive-radix-tree dependency the teacher uses to
// index descriptor full names in its symbol table), which gives ordered,
// prefix-aware iteration over cached paths for free.
package cache

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	art "github.com/plar/go-adaptive-radix-tree"

	"github.com/archref/resolver/probe"
)

type entry struct {
	mtime  int64
	result probe.ProbeResult
}

// Cache memoizes probe.Prober results for the lifetime of a resolver
// invocation and, when a state file path is configured, across
// invocations.
type Cache struct {
	prober probe.Prober
	log    *slog.Logger

	mu    sync.RWMutex
	tree  art.Tree
	dirty atomic.Bool

	pathLocks sync.Map // path string -> *sync.Mutex, serializes writers per path

	// non-persisted, per-invocation memoization
	dirMu     sync.Mutex
	dirCache  map[string][]string
	existMu   sync.Mutex
	existCache map[string]bool

	// ProbeCount counts calls that actually invoked the underlying Prober
	// (as opposed to cache hits); exported for test instrumentation
	// (spec.md S6 wants this observable).
	ProbeCount atomic.Int64
}

// New constructs an empty Cache backed by prober. If log is nil,
// slog.Default() is used for advisory messages.
func New(prober probe.Prober, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		prober:     prober,
		log:        log,
		tree:       art.New(),
		dirCache:   make(map[string][]string),
		existCache: make(map[string]bool),
	}
}

// Lookup returns the ProbeResult for path, reprobing only if the file's
// current mtime differs from what is cached (or nothing is cached yet).
func (c *Cache) Lookup(path string) (probe.ProbeResult, error) {
	lockIface, _ := c.pathLocks.LoadOrStore(path, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	info, statErr := os.Stat(path)
	if statErr != nil {
		return probe.ProbeResult{}, statErr
	}
	mtime := info.ModTime().UnixNano()

	c.mu.RLock()
	v, found := c.tree.Search(art.Key(path))
	c.mu.RUnlock()
	if found {
		e := v.(*entry)
		if e.mtime == mtime {
			return e.result, nil
		}
	}

	c.ProbeCount.Add(1)
	result, err := c.prober.Probe(path)
	if err != nil {
		return probe.ProbeResult{}, err
	}

	c.mu.Lock()
	c.tree.Insert(art.Key(path), &entry{mtime: mtime, result: result})
	c.mu.Unlock()
	c.dirty.Store(true)
	return result, nil
}

// DirEntries lists dir's entries (base names only), memoized for the
// lifetime of this Cache. Not persisted across invocations.
func (c *Cache) DirEntries(dir string) ([]string, error) {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()
	if names, ok := c.dirCache[dir]; ok {
		return names, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.dirCache[dir] = nil
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	c.dirCache[dir] = names
	return names, nil
}

// FileExists memoizes a file-existence probe for the lifetime of this Cache.
func (c *Cache) FileExists(path string) bool {
	c.existMu.Lock()
	defer c.existMu.Unlock()
	if v, ok := c.existCache[path]; ok {
		return v
	}
	_, err := os.Stat(path)
	exists := err == nil
	c.existCache[path] = exists
	return exists
}

// Dirty reports whether Lookup has added or refreshed any entry since
// construction or since the last successful Flush. Load does not change it.
func (c *Cache) Dirty() bool { return c.dirty.Load() }

// Load populates the cache from a state file at path. Deserialization
// failure is non-fatal per spec.md §4.3: the cache starts empty and the
// error is logged as an advisory, never returned to the caller.
func (c *Cache) Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("cache: could not read state file, starting empty", "path", path, "error", err)
		}
		return
	}
	if err := c.loadBytes(data); err != nil {
		c.log.Warn("cache: state file unreadable, starting empty", "path", path, "error", err)
		c.mu.Lock()
		c.tree = art.New()
		c.mu.Unlock()
	}
}

func (c *Cache) loadBytes(data []byte) error {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return errCorruptState
	}
	if magic != stateMagic {
		return errCorruptState
	}
	version, err := r.ReadByte()
	if err != nil || version != stateVersion {
		return errCorruptState
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return errCorruptState
	}

	tree := art.New()
	for i := uint32(0); i < count; i++ {
		var pathLen uint16
		if err := binary.Read(r, binary.BigEndian, &pathLen); err != nil {
			return errCorruptState
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return errCorruptState
		}
		var mtime int64
		if err := binary.Read(r, binary.BigEndian, &mtime); err != nil {
			return errCorruptState
		}
		var probeLen uint32
		if err := binary.Read(r, binary.BigEndian, &probeLen); err != nil {
			return errCorruptState
		}
		blob := make([]byte, probeLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return errCorruptState
		}
		result, err := decodeProbeResult(blob)
		if err != nil {
			return errCorruptState
		}
		tree.Insert(art.Key(pathBytes), &entry{mtime: mtime, result: result})
	}

	c.mu.Lock()
	c.tree = tree
	c.mu.Unlock()
	return nil
}

// Flush atomically writes the cache's current contents to path if, and
// only if, the cache is dirty. A clean cache is left untouched (spec.md §8
// idempotence: a second, no-op invocation must not rewrite the state
// file).
func (c *Cache) Flush(path string) error {
	if !c.dirty.Load() {
		return nil
	}

	var buf bytes.Buffer
	buf.Write(stateMagic[:])
	buf.WriteByte(stateVersion)

	c.mu.RLock()
	count := uint32(c.tree.Size())
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], count)
	buf.Write(countBuf[:])

	var iterErr error
	it := c.tree.Iterator()
	for it.HasNext() {
		node, err := it.Next()
		if err != nil {
			break
		}
		key := node.Key()
		e := node.Value().(*entry)

		var pathLenBuf [2]byte
		binary.BigEndian.PutUint16(pathLenBuf[:], uint16(len(key)))
		buf.Write(pathLenBuf[:])
		buf.Write(key)

		var mtimeBuf [8]byte
		binary.BigEndian.PutUint64(mtimeBuf[:], uint64(e.mtime))
		buf.Write(mtimeBuf[:])

		blob := encodeProbeResult(e.result)
		var blobLenBuf [4]byte
		binary.BigEndian.PutUint32(blobLenBuf[:], uint32(len(blob)))
		buf.Write(blobLenBuf[:])
		buf.Write(blob)
	}
	c.mu.RUnlock()
	if iterErr != nil {
		return iterErr
	}

	if err := atomicWriteFile(path, buf.Bytes()); err != nil {
		return err
	}
	c.dirty.Store(false)
	return nil
}

// atomicWriteFile writes data to a temp file in the same directory as path
// and renames it into place, matching spec.md §5's "write to temp +
// rename" atomic-flush requirement.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
