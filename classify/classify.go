// Package classify implements the output classifier (spec.md C9): the
// ordered copy-local decision table, plus related-file and satellite-file
// discovery for each resolved Reference.
//
// The first-match-wins rule table mirrors the teacher's options package
// (options/options.go), which resolves a final option value by walking an
// ordered list of sources and stopping at the first one that supplies an
// answer; here the "sources" are named conditions on a Reference instead of
// option layers.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/locate"
)

// Config carries the per-invocation knobs §4.9 names explicitly.
type Config struct {
	// RelatedExtensions are appended to a resolved file's base name to look
	// for companion files (".pdb", ".xml", ...).
	RelatedExtensions []string
	// Cultures are the culture subdirectory names probed for satellite
	// resource assemblies (e.g. "de", "ja").
	Cultures []string

	DisableGacCopy bool
	// CopyLocalDependenciesWhenParentReferenceInGac corresponds exactly to
	// the config flag named in spec.md §4.9 rule 8.
	CopyLocalDependenciesWhenParentReferenceInGac bool
}

// Classifier computes copy_local and the related/satellite/scatter file
// lists for every live Reference in a Table.
type Classifier struct {
	Cfg   Config
	Cache *cache.Cache
	Log   *decisionlog.Log
}

// Classify applies spec.md §4.9 to every Reference in table, in discovery
// order, mutating CopyLocal/RelatedFiles/SatelliteFiles in place.
func (c *Classifier) Classify(table *graph.Table) {
	refs := table.InOrder()
	byKey := make(map[string]*graph.Reference, len(refs))
	for _, r := range refs {
		byKey[r.ResolvedIdentity.SimpleKey()] = r
	}

	for _, ref := range refs {
		ref.CopyLocal = c.copyLocalFor(ref, byKey)
		c.populateRelatedFiles(ref)
		c.populateSatelliteFiles(ref)
		if c.Log != nil {
			c.Log.CopyLocalDecision(ref.ResolvedIdentity.String(), ref.CopyLocal.String())
		}
	}
}

// copyLocalFor evaluates spec.md §4.9's ten rules in order, returning the
// first that matches.
func (c *Classifier) copyLocalFor(ref *graph.Reference, byKey map[string]*graph.Reference) graph.CopyLocalResult {
	// 1: Private metadata explicitly set on this reference.
	if ref.Private != nil {
		if *ref.Private {
			return graph.CopyLocalYesExplicit
		}
		return graph.CopyLocalNo
	}

	// 2: unresolved.
	if !ref.Resolved() {
		return graph.CopyLocalNo
	}

	// 3: framework prerequisite (InFramework AND in_gac).
	if ref.IsFrameworkFile && ref.RedistInGAC {
		return graph.CopyLocalNoPrerequisite
	}

	// 4: embedded interop types.
	if ref.EmbedInteropTypes {
		return graph.CopyLocalNoEmbedded
	}

	// 5: conflict victim.
	if ref.Conflict.Kind == graph.ConflictVictim {
		return graph.CopyLocalNoConflictVictim
	}

	// 6: actually resolved from the GAC.
	if ref.InGAC {
		return graph.CopyLocalNoResolvedFromGac
	}

	// 7: found in the GAC (even if not the winning candidate) and GAC copy
	// is disabled by configuration.
	if c.Cfg.DisableGacCopy && wasConsideredInGac(ref) {
		return graph.CopyLocalNoFoundInGac
	}

	// 8: every dependee parent is itself InGAC and the config flag to copy
	// anyway is off.
	if len(ref.Dependees) > 0 && !c.Cfg.CopyLocalDependenciesWhenParentReferenceInGac {
		if allParentsInGac(ref, byKey) {
			return graph.CopyLocalNoParentsInGac
		}
	}

	// 9: framework file (not caught by rule 3 because it isn't in_gac).
	if ref.IsFrameworkFile {
		return graph.CopyLocalNoFrameworkFile
	}

	// 10: default.
	return graph.CopyLocalYesHeuristic
}

func wasConsideredInGac(ref *graph.Reference) bool {
	for _, c := range ref.ConsideredLocations {
		if c.Location.Source == locate.SourceGac {
			return true
		}
	}
	return false
}

func allParentsInGac(ref *graph.Reference, byKey map[string]*graph.Reference) bool {
	for _, dep := range ref.Dependees {
		parent, ok := byKey[dep.RequesterKey]
		if !ok {
			continue
		}
		if !parent.InGAC {
			return false
		}
	}
	return true
}

// populateRelatedFiles looks for companion files (same base name, a
// configured extension) alongside the resolved location.
func (c *Classifier) populateRelatedFiles(ref *graph.Reference) {
	if ref.ResolvedLocation == nil {
		return
	}
	base := strings.TrimSuffix(ref.ResolvedLocation.Path, filepath.Ext(ref.ResolvedLocation.Path))
	var related []string
	for _, ext := range c.Cfg.RelatedExtensions {
		candidate := base + ext
		if c.Cache != nil && c.Cache.FileExists(candidate) {
			related = append(related, candidate)
		}
	}
	ref.RelatedFiles = related
}

// populateSatelliteFiles looks for per-culture "<dir>/<culture>/<name>.resources.dll"
// satellite assemblies alongside the resolved location.
func (c *Classifier) populateSatelliteFiles(ref *graph.Reference) {
	if ref.ResolvedLocation == nil || c.Cache == nil {
		return
	}
	dir := filepath.Dir(ref.ResolvedLocation.Path)
	name := strings.TrimSuffix(filepath.Base(ref.ResolvedLocation.Path), filepath.Ext(ref.ResolvedLocation.Path))

	var satellites []string
	for _, culture := range c.Cfg.Cultures {
		candidate := filepath.Join(dir, culture, name+".resources.dll")
		if c.Cache.FileExists(candidate) {
			satellites = append(satellites, candidate)
		}
	}
	ref.SatelliteFiles = satellites
}
