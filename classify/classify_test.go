package classify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/classify"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/probe"
)

func resolvedRef(id identity.AssemblyIdentity, path string) *graph.Reference {
	return &graph.Reference{
		RequestedIdentity: id,
		ResolvedIdentity:  id,
		ResolvedLocation:  &locate.FileLocation{Path: path},
	}
}

func TestCopyLocalDefaultsToYesHeuristic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Foo.dll")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")

	table := graph.NewTable()
	table.Put(fooID.SimpleKey(), resolvedRef(fooID, path))

	c := &classify.Classifier{Cache: cache.New(probe.FromMap(nil), nil)}
	c.Classify(table)

	ref, _ := table.Get(fooID.SimpleKey())
	assert.Equal(t, graph.CopyLocalYesHeuristic, ref.CopyLocal)
}

func TestCopyLocalUnresolvedIsNo(t *testing.T) {
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	table := graph.NewTable()
	table.Put(fooID.SimpleKey(), &graph.Reference{RequestedIdentity: fooID})

	c := &classify.Classifier{}
	c.Classify(table)

	ref, _ := table.Get(fooID.SimpleKey())
	assert.Equal(t, graph.CopyLocalNo, ref.CopyLocal)
}

func TestCopyLocalExplicitPrivateOverridesEverything(t *testing.T) {
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	table := graph.NewTable()
	no := false
	ref := resolvedRef(fooID, "/x/Foo.dll")
	ref.Private = &no
	table.Put(fooID.SimpleKey(), ref)

	c := &classify.Classifier{}
	c.Classify(table)

	got, _ := table.Get(fooID.SimpleKey())
	assert.Equal(t, graph.CopyLocalNo, got.CopyLocal)
}

func TestCopyLocalResolvedFromGac(t *testing.T) {
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	ref := resolvedRef(fooID, "/gac/Foo.dll")
	ref.InGAC = true
	table := graph.NewTable()
	table.Put(fooID.SimpleKey(), ref)

	c := &classify.Classifier{}
	c.Classify(table)

	got, _ := table.Get(fooID.SimpleKey())
	assert.Equal(t, graph.CopyLocalNoResolvedFromGac, got.CopyLocal)
}

func TestCopyLocalConflictVictim(t *testing.T) {
	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	ref := resolvedRef(fooID, "/x/Foo.dll")
	ref.Conflict = graph.ConflictState{Kind: graph.ConflictVictim, Reason: graph.VictimReasonHadLowerVersion}
	table := graph.NewTable()
	table.Put(fooID.SimpleKey(), ref)

	c := &classify.Classifier{}
	c.Classify(table)

	got, _ := table.Get(fooID.SimpleKey())
	assert.Equal(t, graph.CopyLocalNoConflictVictim, got.CopyLocal)
}

func TestCopyLocalParentsAllInGac(t *testing.T) {
	parentID, _ := identity.Parse("Parent, Version=1.0.0.0")
	childID, _ := identity.Parse("Child, Version=1.0.0.0")

	parent := resolvedRef(parentID, "/gac/Parent.dll")
	parent.InGAC = true
	child := resolvedRef(childID, "/x/Child.dll")
	child.Dependees = []graph.Dependee{{RequesterKey: parentID.SimpleKey(), RequesterIdentity: parentID}}

	table := graph.NewTable()
	table.Put(parentID.SimpleKey(), parent)
	table.Put(childID.SimpleKey(), child)

	c := &classify.Classifier{}
	c.Classify(table)

	got, _ := table.Get(childID.SimpleKey())
	assert.Equal(t, graph.CopyLocalNoParentsInGac, got.CopyLocal)
}

func TestRelatedFilesFoundByExtension(t *testing.T) {
	dir := t.TempDir()
	dllPath := filepath.Join(dir, "Foo.dll")
	pdbPath := filepath.Join(dir, "Foo.pdb")
	require.NoError(t, os.WriteFile(dllPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(pdbPath, []byte("x"), 0o644))

	fooID, _ := identity.Parse("Foo, Version=1.0.0.0")
	table := graph.NewTable()
	table.Put(fooID.SimpleKey(), resolvedRef(fooID, dllPath))

	c := &classify.Classifier{
		Cfg:   classify.Config{RelatedExtensions: []string{".pdb", ".xml"}},
		Cache: cache.New(probe.FromMap(nil), nil),
	}
	c.Classify(table)

	ref, _ := table.Get(fooID.SimpleKey())
	require.Len(t, ref.RelatedFiles, 1)
	assert.Equal(t, pdbPath, ref.RelatedFiles[0])
}
