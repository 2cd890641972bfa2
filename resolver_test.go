package resolver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/registryfs"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/probe"
)

func writeManifest(t *testing.T, dir, name string, refs []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
	return path
}

func manifestProber(entries map[string]probe.ProbeResult) probe.Prober {
	return probe.FromMap(entries)
}

func TestResolveSinglePrimaryNoDependencies(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Foo.dll", nil)
	fooID, err := identity.Parse("Foo, Version=1.0.0.0")
	require.NoError(t, err)

	cfg := resolver.Config{
		Items:       []resolver.Item{{Identity: fooID}},
		SearchPaths: []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Extensions:  []string{".dll"},
		Registry:    registryfs.Stub{},
		Prober:      manifestProber(map[string]probe.ProbeResult{path: {Identity: fooID}}),
		Sink:        &decisionlog.SliceSink{},
	}

	res, err := resolver.New(cfg).Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Equal(t, 1, res.Table.Len())

	ref, ok := res.Table.Get(fooID.SimpleKey())
	require.True(t, ok)
	assert.True(t, ref.Resolved())
	assert.Equal(t, path, ref.ResolvedLocation.Path)
	assert.True(t, ref.CopyLocal.Bool())
}

func TestResolveFollowsDependencyAndClassifies(t *testing.T) {
	dir := t.TempDir()
	fooPath := writeManifest(t, dir, "Foo.dll", nil)
	barPath := writeManifest(t, dir, "Bar.dll", nil)

	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	barID, _ := identity.Parse("Bar, Version=1.0.0.0")

	cfg := resolver.Config{
		Items:            []resolver.Item{{Identity: fooID}},
		SearchPaths:      []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Extensions:       []string{".dll"},
		Registry:         registryfs.Stub{},
		FindDependencies: true,
		Prober: manifestProber(map[string]probe.ProbeResult{
			fooPath: {Identity: fooID, References: []identity.AssemblyIdentity{barID}},
			barPath: {Identity: barID},
		}),
		Sink: &decisionlog.SliceSink{},
	}

	res, err := resolver.New(cfg).Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Equal(t, 2, res.Table.Len())

	bar, ok := res.Table.Get(barID.SimpleKey())
	require.True(t, ok)
	assert.False(t, bar.IsPrimary)
	require.Len(t, bar.Dependees, 1)
	assert.Equal(t, fooID.SimpleKey(), bar.Dependees[0].RequesterKey)
}

func TestResolveUnresolvedPrimaryIsWarningNotError(t *testing.T) {
	dir := t.TempDir()
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")

	cfg := resolver.Config{
		Items:       []resolver.Item{{Identity: fooID}},
		SearchPaths: []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Extensions:  []string{".dll"},
		Registry:    registryfs.Stub{},
		Prober:      manifestProber(nil),
		Sink:        &decisionlog.SliceSink{},
	}

	res, err := resolver.New(cfg).Resolve(context.Background())
	require.NoError(t, err)
	// spec.md §7: ResolutionFailed on a primary is a warning, which does
	// not flip success to false.
	assert.True(t, res.Success)
	assert.Equal(t, int64(0), res.Log.ErrorCount())
	assert.Equal(t, int64(1), res.Log.WarningCount())

	ref, ok := res.Table.Get(fooID.SimpleKey())
	require.True(t, ok)
	assert.False(t, ref.Resolved())
	require.Len(t, ref.Errors, 1)
}

func TestResolveAutoUnifyConvergesConflictingVersions(t *testing.T) {
	dir := t.TempDir()
	// A single file on disk stands in for the assembly that ships at
	// version 2.0.0.0; A requests 1.0.0.0 and B requests 2.0.0.0 of the
	// same simple identity, so only the 2.0.0.0 request can ever probe
	// successfully until auto-unify redirects A's request up.
	libPath := writeManifest(t, dir, "Lib.dll", nil)
	aPath := writeManifest(t, dir, "A.dll", nil)
	bPath := writeManifest(t, dir, "B.dll", nil)

	aID, _ := identity.Parse("A, Version=1.0.0.0")
	bID, _ := identity.Parse("B, Version=1.0.0.0")
	libV1ID, _ := identity.Parse("Lib, Version=1.0.0.0, PublicKeyToken=b77a5c561934e089")
	libV2ID, _ := identity.Parse("Lib, Version=2.0.0.0, PublicKeyToken=b77a5c561934e089")

	cfg := resolver.Config{
		Items:            []resolver.Item{{Identity: aID}, {Identity: bID}},
		SearchPaths:      []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Extensions:       []string{".dll"},
		Registry:         registryfs.Stub{},
		FindDependencies: true,
		AutoUnify:        true,
		Prober: manifestProber(map[string]probe.ProbeResult{
			aPath:   {Identity: aID, References: []identity.AssemblyIdentity{libV1ID}},
			bPath:   {Identity: bID, References: []identity.AssemblyIdentity{libV2ID}},
			libPath: {Identity: libV2ID},
		}),
		Sink: &decisionlog.SliceSink{},
	}

	res, err := resolver.New(cfg).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ConflictsFound)
	require.Len(t, res.SuggestedRedirects, 1)
	assert.Equal(t, "2.0.0.0", res.SuggestedRedirects[0].NewVersion.String())

	lib, ok := res.Table.Get(libV1ID.SimpleKey())
	require.True(t, ok)
	assert.Equal(t, "2.0.0.0", lib.ResolvedIdentity.Version.String(), "auto-unify should converge the simple identity onto the higher requested version")
	assert.True(t, lib.Resolved())
}

func TestResolveConflictWithoutAutoUnifyStillResolvesWinnerFile(t *testing.T) {
	// Same shape as the auto-unify test above, but with auto-unify off:
	// there is no second closure pass to paper over a founding probe that
	// landed on the loser's (non-existent) version, so the conflict
	// resolver itself must re-locate the winner's real file.
	dir := t.TempDir()
	libPath := writeManifest(t, dir, "Lib.dll", nil)
	aPath := writeManifest(t, dir, "A.dll", nil)
	bPath := writeManifest(t, dir, "B.dll", nil)

	aID, _ := identity.Parse("A, Version=1.0.0.0")
	bID, _ := identity.Parse("B, Version=1.0.0.0")
	libV1ID, _ := identity.Parse("Lib, Version=1.0.0.0, PublicKeyToken=b77a5c561934e089")
	libV2ID, _ := identity.Parse("Lib, Version=2.0.0.0, PublicKeyToken=b77a5c561934e089")

	cfg := resolver.Config{
		Items:            []resolver.Item{{Identity: aID}, {Identity: bID}},
		SearchPaths:      []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Extensions:       []string{".dll"},
		Registry:         registryfs.Stub{},
		FindDependencies: true,
		AutoUnify:        false,
		Prober: manifestProber(map[string]probe.ProbeResult{
			aPath:   {Identity: aID, References: []identity.AssemblyIdentity{libV1ID}},
			bPath:   {Identity: bID, References: []identity.AssemblyIdentity{libV2ID}},
			libPath: {Identity: libV2ID},
		}),
		Sink: &decisionlog.SliceSink{},
	}

	res, err := resolver.New(cfg).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ConflictsFound)
	require.Len(t, res.SuggestedRedirects, 1)
	assert.Equal(t, "2.0.0.0", res.SuggestedRedirects[0].NewVersion.String())
	assert.Empty(t, res.Log.WarningCount(), "a soluble conflict is advisory, not a warning")

	lib, ok := res.Table.Get(libV1ID.SimpleKey())
	require.True(t, ok)
	assert.True(t, lib.Resolved())
	assert.Equal(t, "2.0.0.0", lib.ResolvedIdentity.Version.String())
	assert.Equal(t, libPath, lib.ResolvedLocation.Path)
}
