package conflict_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/conflict"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/probe"
)

func ref(id identity.AssemblyIdentity, isPrimary bool, searchPathEntry int, candidates ...identity.AssemblyIdentity) *graph.Reference {
	r := &graph.Reference{
		RequestedIdentity: id,
		ResolvedIdentity:  id,
		ResolvedLocation:  &locate.FileLocation{Path: id.Raw + ".dll", SearchPathEntry: searchPathEntry},
		IsPrimary:         isPrimary,
	}
	r.AddConflictCandidate(graph.ConflictCandidate{Identity: id, IsPrimary: isPrimary, SearchPathEntry: searchPathEntry})
	for _, c := range candidates {
		r.AddConflictCandidate(graph.ConflictCandidate{Identity: c, IsPrimary: false, SearchPathEntry: -1})
	}
	return r
}

func TestResolveNoConflictWhenSingleVersion(t *testing.T) {
	table := graph.NewTable()
	foo, _ := identity.Parse("Foo, Version=1.0.0.0")
	r := ref(foo, true, 0)
	table.Put(foo.SimpleKey(), r)

	res := (&conflict.Resolver{}).Resolve(table)
	assert.Equal(t, 0, res.ConflictsFound)
	assert.Equal(t, graph.ConflictNone, r.Conflict.Kind)
}

func TestResolveHigherVersionWins(t *testing.T) {
	table := graph.NewTable()
	winner, _ := identity.Parse("Lib, Version=2.0.0.0")
	loserOnly, _ := identity.Parse("Lib, Version=1.0.0.0")

	r := ref(winner, false, 0, loserOnly)
	table.Put(winner.SimpleKey(), r)

	res := (&conflict.Resolver{}).Resolve(table)
	require.Equal(t, 1, res.ConflictsFound)
	assert.Equal(t, graph.ConflictVictor, r.Conflict.Kind, "the founding reference already holds the higher version, so it is the victor")
	require.Len(t, res.SuggestedRedirects, 1)
	assert.Equal(t, 0, winner.Version.Compare(res.SuggestedRedirects[0].NewVersion))
}

func TestResolveHigherNonFoundingCandidateIsRelocatedAndBecomesVictor(t *testing.T) {
	// The founding reference probed version 1.0.0.0 first; a dependency
	// elsewhere requested 2.0.0.0 of the same simple identity and was only
	// ever merged in as a candidate (never independently searched for).
	// Only the real file on disk, Lib.dll, carries the 2.0.0.0 identity.
	dir := t.TempDir()
	libPath := filepath.Join(dir, "Lib.dll")
	require.NoError(t, os.WriteFile(libPath, []byte("stub"), 0o644))

	founding, _ := identity.Parse("Lib, Version=1.0.0.0")
	higher, _ := identity.Parse("Lib, Version=2.0.0.0")

	r := ref(founding, false, 0, higher)
	table := graph.NewTable()
	table.Put(founding.SimpleKey(), r)

	locator := &locate.Locator{
		Extensions:  []string{".dll"},
		SearchPaths: []locate.Token{{Kind: locate.TokenDirectory, Dir: dir}},
		Cache:       cache.New(probe.FromMap(map[string]probe.ProbeResult{libPath: {Identity: higher}}), nil),
	}

	res := (&conflict.Resolver{Locator: locator}).Resolve(table)
	require.Equal(t, 1, res.ConflictsFound)
	assert.Equal(t, graph.ConflictVictor, r.Conflict.Kind, "re-locating the winner's file means no Victim is ever left without a Victor")
	assert.Equal(t, 0, higher.Version.Compare(r.ResolvedIdentity.Version))
	assert.Equal(t, libPath, r.ResolvedLocation.Path)
}

func TestResolveHigherNonFoundingCandidateUnlocatableStaysVictim(t *testing.T) {
	// Same shape as above, but with no Locator configured: the winner's
	// file can never be re-probed, so the founding reference is reported
	// as the victim it actually resolved to rather than silently dropped.
	table := graph.NewTable()
	founding, _ := identity.Parse("Lib, Version=1.0.0.0")
	higher, _ := identity.Parse("Lib, Version=2.0.0.0")

	r := ref(founding, false, 0, higher)
	table.Put(founding.SimpleKey(), r)

	res := (&conflict.Resolver{}).Resolve(table)
	require.Equal(t, 1, res.ConflictsFound)
	assert.Equal(t, graph.ConflictVictim, r.Conflict.Kind)
	assert.Equal(t, graph.VictimReasonHadLowerVersion, r.Conflict.Reason)
}

func TestResolveInsolubleWhenTwoPrimariesDisagree(t *testing.T) {
	table := graph.NewTable()
	v1, _ := identity.Parse("Lib, Version=1.0.0.0")
	v2, _ := identity.Parse("Lib, Version=2.0.0.0")

	r := ref(v1, true, 0)
	r.AddConflictCandidate(graph.ConflictCandidate{Identity: v2, IsPrimary: true, SearchPathEntry: -1})
	table.Put(v1.SimpleKey(), r)

	res := (&conflict.Resolver{}).Resolve(table)
	require.Equal(t, 1, res.ConflictsFound)
	assert.Equal(t, graph.ConflictVictim, r.Conflict.Kind)
	assert.Equal(t, graph.VictimReasonInsolubleConflict, r.Conflict.Reason)
}

func TestResolveAutoUnifyProducesLiveRedirect(t *testing.T) {
	table := graph.NewTable()
	winner, _ := identity.Parse("Lib, Version=2.0.0.0")
	loser, _ := identity.Parse("Lib, Version=1.0.0.0")
	r := ref(winner, false, 0, loser)
	table.Put(winner.SimpleKey(), r)

	log := decisionlog.New(&decisionlog.SliceSink{}, nil)
	res := (&conflict.Resolver{AutoUnify: true, Log: log}).Resolve(table)
	require.Len(t, res.LiveRedirects, 1)
	assert.True(t, res.LiveRedirects[0].OldRange.Unbounded)
}
