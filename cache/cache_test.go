package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/probe"
)

func writeAssembly(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
	return path
}

func TestLookupReprobesOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeAssembly(t, dir, "Foo.dll")

	id, _ := identity.Parse("Foo, Version=1.0.0.0")
	calls := 0
	prober := probe.ProberFunc(func(p string) (probe.ProbeResult, error) {
		calls++
		return probe.ProbeResult{Identity: id}, nil
	})

	c := cache.New(prober, nil)
	_, err := c.Lookup(path)
	require.NoError(t, err)
	_, err = c.Lookup(path)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second lookup with unchanged mtime must not reprobe")

	// force an mtime change
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = c.Lookup(path)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "mtime change must trigger a reprobe")
}

func TestFlushSkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.bin")

	c := cache.New(probe.FromMap(nil), nil)
	require.NoError(t, c.Flush(statePath))
	_, err := os.Stat(statePath)
	assert.True(t, os.IsNotExist(err), "flush on a clean cache must not create a state file")
}

func TestRoundTripSerializesAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeAssembly(t, dir, "Foo.dll")
	statePath := filepath.Join(dir, "state.bin")

	id, _ := identity.Parse("Foo, Version=1.2.3.4, PublicKeyToken=b77a5c561934e089")
	ref, _ := identity.Parse("System.Runtime, Version=4.0.0.0")
	prober := probe.FromMap(map[string]probe.ProbeResult{
		path: {
			Identity:       id,
			References:     []identity.AssemblyIdentity{ref},
			ScatterFiles:   []string{"Foo.Core.dll"},
			RuntimeVersion: "v4.0.30319",
		},
	})

	c1 := cache.New(prober, nil)
	res1, err := c1.Lookup(path)
	require.NoError(t, err)
	require.NoError(t, c1.Flush(statePath))

	data1, err := os.ReadFile(statePath)
	require.NoError(t, err)

	c2 := cache.New(prober, nil)
	c2.Load(statePath)
	res2, err := c2.Lookup(path)
	require.NoError(t, err)

	if diff := cmp.Diff(res1, res2); diff != "" {
		t.Fatalf("round-tripped probe result mismatch (-before +after):\n%s", diff)
	}

	// second flush after a no-op reload shouldn't have marked dirty
	require.NoError(t, c2.Flush(statePath))
	data2, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, cmp.Equal(data1, data2), "reload + unchanged lookup must reproduce an identical state-file byte stream")
}

func TestLoadDiscardsCorruptState(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.bin")
	require.NoError(t, os.WriteFile(statePath, []byte("not a cache file"), 0o644))

	c := cache.New(probe.FromMap(nil), nil)
	c.Load(statePath) // must not panic; advisory only
	assert.False(t, c.Dirty())
}

func TestDirEntriesMemoized(t *testing.T) {
	dir := t.TempDir()
	writeAssembly(t, dir, "Foo.dll")

	c := cache.New(probe.FromMap(nil), nil)
	names1, err := c.DirEntries(dir)
	require.NoError(t, err)
	writeAssembly(t, dir, "Bar.dll")
	names2, err := c.DirEntries(dir)
	require.NoError(t, err)
	assert.Equal(t, names1, names2, "directory listing must be memoized within one Cache lifetime")
}
