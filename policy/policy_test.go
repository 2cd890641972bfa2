package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/policy"
)

func writeList(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const fullList = `<FileList Redist="Microsoft-Windows-CLRCoreComponent" FrameworkDir="v4.0">
  <File AssemblyName="Foo" Version="1.0.0.0" Culture="neutral" InGAC="true"/>
  <File AssemblyName="Bar" Version="1.0.0.0" Culture="neutral" InGAC="true"/>
</FileList>`

const subsetList = `<FileList Redist="Client-Profile" FrameworkDir="v4.0-client">
  <File AssemblyName="Foo" Version="1.0.0.0" Culture="neutral" InGAC="true"/>
</FileList>`

func TestClassifyInFrameworkAndExcluded(t *testing.T) {
	dir := t.TempDir()
	fullPath := writeList(t, dir, "full.xml", fullList)
	subsetPath := writeList(t, dir, "subset.xml", subsetList)

	p, res := policy.Load([]string{fullPath}, []string{subsetPath}, nil)
	assert.Empty(t, res.Advisories)

	foo, _ := identity.Parse("Foo, Version=1.0.0.0")
	bar, _ := identity.Parse("Bar, Version=1.0.0.0")
	baz, _ := identity.Parse("Baz, Version=1.0.0.0")

	assert.Equal(t, policy.InFramework, p.Classify(foo))
	assert.Equal(t, policy.Excluded, p.Classify(bar))
	assert.Equal(t, policy.Unknown, p.Classify(baz))
	assert.True(t, p.IsExcluded(bar))
}

func TestFullSynonymDisablesExclusion(t *testing.T) {
	dir := t.TempDir()
	fullPath := writeList(t, dir, "full.xml", fullList)
	subsetPath := writeList(t, dir, "subset.xml", subsetList)

	p, res := policy.Load([]string{fullPath}, []string{subsetPath}, []string{"Client-Profile"})
	require.NotEmpty(t, res.Advisories)

	bar, _ := identity.Parse("Bar, Version=1.0.0.0")
	assert.NotEqual(t, policy.Excluded, p.Classify(bar), "a full-synonym subset list must disable the exclusion mechanism")
}

func TestInvalidListFileIsAdvisoryNotFatal(t *testing.T) {
	dir := t.TempDir()
	badPath := writeList(t, dir, "bad.xml", "not xml at all <<<")

	p, res := policy.Load([]string{badPath}, nil, nil)
	require.NotEmpty(t, res.Advisories)
	foo, _ := identity.Parse("Foo, Version=1.0.0.0")
	assert.Equal(t, policy.Unknown, p.Classify(foo))
}

func TestNoSubsetMeansNoExclusion(t *testing.T) {
	dir := t.TempDir()
	fullPath := writeList(t, dir, "full.xml", fullList)

	p, _ := policy.Load([]string{fullPath}, nil, nil)
	bar, _ := identity.Parse("Bar, Version=1.0.0.0")
	assert.Equal(t, policy.InFramework, p.Classify(bar))
}
