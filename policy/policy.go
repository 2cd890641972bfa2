// Package policy implements the redist/subset framework-membership policy
// (spec.md C5): loading XML framework-membership lists, classifying
// identities as in-framework/excluded/unknown, and deriving the exclusion
// list when both a full-framework and a subset list are configured.
//
// No third-party XML-decoding library appears anywhere in the retrieved
// example corpus (see DESIGN.md); encoding/xml is the idiomatic stdlib
// choice the Go ecosystem reaches for here, so this package is the one
// deliberate, justified stdlib-only corner of the resolver.
package policy

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/fxver"
)

// Classification is the three-way verdict classify() returns.
type Classification int

const (
	Unknown Classification = iota
	InFramework
	Excluded
)

func (c Classification) String() string {
	switch c {
	case InFramework:
		return "InFramework"
	case Excluded:
		return "Excluded"
	default:
		return "Unknown"
	}
}

// Membership is one entry of a RedistList (spec.md §3).
type Membership struct {
	Identity     identity.AssemblyIdentity
	InGAC        bool
	RedistName   string
	Retargetable bool
	FrameworkDir string
}

// fileListXML mirrors the XML schema used by redist/subset list files:
//
//	<FileList Redist="Name" FrameworkDir="...">
//	  <File AssemblyName="Foo" Version="1.0.0.0" Culture="neutral"
//	        PublicKeyToken="..." InGAC="true" Retargetable="false"/>
//	</FileList>
type fileListXML struct {
	XMLName      xml.Name  `xml:"FileList"`
	Redist       string    `xml:"Redist,attr"`
	FrameworkDir string    `xml:"FrameworkDir,attr"`
	Files        []fileXML `xml:"File"`
}

type fileXML struct {
	AssemblyName   string `xml:"AssemblyName,attr"`
	Version        string `xml:"Version,attr"`
	Culture        string `xml:"Culture,attr"`
	PublicKeyToken string `xml:"PublicKeyToken,attr"`
	InGAC          bool   `xml:"InGAC,attr"`
	Retargetable   bool   `xml:"Retargetable,attr"`
}

// RedistList is the parsed, indexed form of one or more membership list
// files (spec.md §3: "Set of {identity, in_gac, redist_name, retargetable,
// framework_dir}. Lookup by simple identity + culture + PKT.").
type RedistList struct {
	byKey map[string]Membership
}

func newRedistList() *RedistList {
	return &RedistList{byKey: make(map[string]Membership)}
}

// Lookup returns the Membership for id's simple identity, if present.
func (l *RedistList) Lookup(id identity.AssemblyIdentity) (Membership, bool) {
	if l == nil {
		return Membership{}, false
	}
	m, ok := l.byKey[id.SimpleKey()]
	return m, ok
}

// Keys returns every simple-identity key present in the list.
func (l *RedistList) Keys() []string {
	if l == nil {
		return nil
	}
	keys := make([]string, 0, len(l.byKey))
	for k := range l.byKey {
		keys = append(keys, k)
	}
	return keys
}

// loadFile parses one redist list file. Invalid files are reported via the
// returned error; Load downgrades that to an advisory and skips the
// file, per spec.md §4.5.
func loadFile(path string) (*fileListXML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fileListXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: %s: %w", path, err)
	}
	return &doc, nil
}

func mergeInto(list *RedistList, doc *fileListXML, synonyms map[string]bool, sawSynonym *bool) {
	if synonyms[doc.Redist] {
		*sawSynonym = true
	}
	for _, f := range doc.Files {
		// A malformed version in one entry degrades to the zero version
		// rather than failing the whole file: membership lists are
		// advisory input and spec.md treats the whole file as skip-on-
		// error, not per-entry.
		version, _ := fxver.Parse(f.Version)
		id := identity.New(f.AssemblyName, version, f.Version != "", f.Culture, f.PublicKeyToken)
		list.byKey[id.SimpleKey()] = Membership{
			Identity:     id,
			InGAC:        f.InGAC,
			RedistName:   doc.Redist,
			Retargetable: f.Retargetable,
			FrameworkDir: doc.FrameworkDir,
		}
	}
}

// Policy aggregates the full-framework list, the subset list, and the
// derived exclusion list.
type Policy struct {
	Full      *RedistList
	Subset    *RedistList
	exclusion map[string]bool
	disabled  bool // exclusion mechanism disabled by a full-synonym match
}

// LoadResult reports the advisories produced while loading policy files,
// matching spec.md §7's InvalidRedistList disposition (advisory, file
// skipped, invocation continues).
type LoadResult struct {
	Advisories []string
}

// Load parses fullPaths and subsetPaths and builds the exclusion list
// (members of Full minus members of Subset). fullSynonyms names redist
// identifiers that, if present in subsetPaths, indicate the "subset" is
// actually a full framework in disguise — per spec.md §4.5 this disables
// exclusion entirely.
func Load(fullPaths, subsetPaths []string, fullSynonyms []string) (*Policy, LoadResult) {
	var res LoadResult
	p := &Policy{Full: newRedistList(), Subset: newRedistList()}

	synonymSet := make(map[string]bool, len(fullSynonyms))
	for _, s := range fullSynonyms {
		synonymSet[s] = true
	}

	for _, path := range fullPaths {
		doc, err := loadFile(path)
		if err != nil {
			res.Advisories = append(res.Advisories, err.Error())
			continue
		}
		var unused bool
		mergeInto(p.Full, doc, nil, &unused)
	}

	var sawSynonym bool
	for _, path := range subsetPaths {
		doc, err := loadFile(path)
		if err != nil {
			res.Advisories = append(res.Advisories, err.Error())
			continue
		}
		mergeInto(p.Subset, doc, synonymSet, &sawSynonym)
	}

	if sawSynonym {
		p.disabled = true
		res.Advisories = append(res.Advisories, "policy: subset list matched a full-framework synonym; exclusion list disabled")
	}

	p.exclusion = make(map[string]bool)
	if len(subsetPaths) > 0 && !p.disabled {
		for key := range p.Full.byKey {
			if _, inSubset := p.Subset.byKey[key]; !inSubset {
				p.exclusion[key] = true
			}
		}
	}

	return p, res
}

// Classify implements spec.md §4.5's classify(identity).
func (p *Policy) Classify(id identity.AssemblyIdentity) Classification {
	if p == nil {
		return Unknown
	}
	key := id.SimpleKey()
	if p.exclusion[key] {
		return Excluded
	}
	if _, ok := p.Full.byKey[key]; ok {
		return InFramework
	}
	if _, ok := p.Subset.byKey[key]; ok {
		return InFramework
	}
	return Unknown
}

// IsExcluded is a convenience wrapper used by the graph builder to decide
// whether to prune a reference.
func (p *Policy) IsExcluded(id identity.AssemblyIdentity) bool {
	return p.Classify(id) == Excluded
}

// Membership looks up the Membership backing an InFramework classification
// (checking Full first, then Subset), for callers that need in_gac/
// redist_name alongside the verdict.
func (p *Policy) Membership(id identity.AssemblyIdentity) (Membership, bool) {
	if p == nil {
		return Membership{}, false
	}
	key := id.SimpleKey()
	if m, ok := p.Full.byKey[key]; ok {
		return m, true
	}
	if m, ok := p.Subset.byKey[key]; ok {
		return m, true
	}
	return Membership{}, false
}

