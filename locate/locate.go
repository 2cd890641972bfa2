// Package locate implements the candidate locator (spec.md C4): given a
// requested identity and an ordered list of search-path tokens, it
// enumerates candidate files in strict priority order and selects the
// first whose probed identity matches the request.
//
// The consult-in-order, stop-at-first-success shape mirrors
// CompositeResolver in the teacher repo's resolver.go: each token is tried
// in turn, and the first candidate that satisfies the identity match wins.
package locate

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/registryfs"
	"github.com/archref/resolver/probe"
)

// SourceTag records which mechanism produced a FileLocation (spec.md §3).
type SourceTag int

const (
	SourceHintPath SourceTag = iota
	SourceCandidateFile
	SourceDirectory
	SourceRegistry
	SourceGac
	SourceRawFile
	SourceFrameworkDir
)

func (t SourceTag) String() string {
	switch t {
	case SourceHintPath:
		return "HintPath"
	case SourceCandidateFile:
		return "CandidateFile"
	case SourceDirectory:
		return "Directory"
	case SourceRegistry:
		return "Registry"
	case SourceGac:
		return "Gac"
	case SourceRawFile:
		return "RawFile"
	case SourceFrameworkDir:
		return "FrameworkDir"
	default:
		return "Unknown"
	}
}

// FileLocation is an absolute candidate file path plus its provenance
// (spec.md §3).
type FileLocation struct {
	Path            string
	LastWriteTime   time.Time
	Source          SourceTag
	SearchPathEntry int // index into the SearchPaths list that produced it
}

// RejectionReason is the exact enum from spec.md §4.4.
type RejectionReason int

const (
	RejectNone RejectionReason = iota
	RejectFileNotFound
	RejectFusionNamesDidNotMatch
	RejectTargetHadNoFusionName
	RejectNotInGac
	RejectNotAFileNameOnDisk
	RejectProcessorArchitectureDoesNotMatch
)

func (r RejectionReason) String() string {
	switch r {
	case RejectFileNotFound:
		return "FileNotFound"
	case RejectFusionNamesDidNotMatch:
		return "FusionNamesDidNotMatch"
	case RejectTargetHadNoFusionName:
		return "TargetHadNoFusionName"
	case RejectNotInGac:
		return "NotInGac"
	case RejectNotAFileNameOnDisk:
		return "NotAFileNameOnDisk"
	case RejectProcessorArchitectureDoesNotMatch:
		return "ProcessorArchitectureDoesNotMatch"
	default:
		return "None"
	}
}

// Considered records one candidate that was examined and why it was
// accepted or rejected.
type Considered struct {
	Location FileLocation
	Reason   RejectionReason // RejectNone means this candidate was selected
	Probed   probe.ProbeResult
	HasProbe bool
}

// TokenKind is the exact enum of recognized search-path forms from
// spec.md §4.4.
type TokenKind int

const (
	TokenDirectory TokenKind = iota
	TokenHintPath
	TokenCandidateAssemblyFiles
	TokenRegistry
	TokenAssemblyFolders
	TokenGac
	TokenRawFileName
	TokenTargetFrameworkDirectory
)

// Token is one entry in the ordered search-path list.
type Token struct {
	Kind TokenKind

	// Dir is used by TokenDirectory: a single literal directory to scan.
	Dir string

	// Dirs is used by TokenAssemblyFolders and TokenTargetFrameworkDirectory:
	// an ordered list of directories, all tried before moving to the next
	// search-path token.
	Dirs []string

	// Registry fields are used by TokenRegistry.
	RegistryBase   string
	RegistryVer    string
	RegistrySuffix string
}

// Request is the per-identity input to Locate: the requested identity plus
// any per-item overrides named in spec.md §6 (hint_path, candidate files).
type Request struct {
	Identity        identity.AssemblyIdentity
	HintPath        string
	CandidateFiles  []string
	SpecificVersion bool
}

// MatchMode returns Strict when the request is strong-named or explicitly
// pins SpecificVersion, and Simple otherwise (spec.md §4.4).
func (r Request) MatchMode() identity.MatchMode {
	if r.Identity.IsStrongNamed() || r.SpecificVersion {
		return identity.Strict
	}
	return identity.Simple
}

// Locator enumerates candidates for a Request against a configured,
// ordered list of search-path Tokens.
type Locator struct {
	SearchPaths []Token
	Extensions  []string // allowed_assembly_extensions, in priority order
	Cache       *cache.Cache
	Registry    registryfs.Registry
	// GacQuery returns candidate GAC file paths for an identity, or
	// (nil, false) if the identity is not present in the GAC. Left nil on
	// non-Windows targets, per spec.md §6's "non-platforms return empty".
	GacQuery func(identity.AssemblyIdentity) ([]string, bool)
	// TargetArch is target_processor_architecture (spec.md §6); it filters
	// GAC candidates whose architecture cannot satisfy the target.
	TargetArch identity.ProcessorArchitecture
}

// Locate walks SearchPaths in order and returns every Considered candidate
// plus, if one was found, the winning Considered entry (Reason ==
// RejectNone). Enumeration stops at the first matching candidate, matching
// spec.md §4.4's "lazy sequence" contract without requiring an iterator
// protocol: since the only consumer is C7 picking the first match, a
// slice built with early-return is equivalent and simpler to test.
func (l *Locator) Locate(req Request) (considered []Considered, winner *Considered) {
	for idx, tok := range l.SearchPaths {
		var cands []Considered
		switch tok.Kind {
		case TokenHintPath:
			cands = l.considerHintPath(req, idx)
		case TokenCandidateAssemblyFiles:
			cands = l.considerCandidateFiles(req, idx)
		case TokenDirectory:
			cands = l.considerDirectory(req, tok.Dir, idx, SourceDirectory)
		case TokenAssemblyFolders:
			for _, d := range tok.Dirs {
				cands = append(cands, l.considerDirectory(req, d, idx, SourceDirectory)...)
			}
		case TokenTargetFrameworkDirectory:
			for _, d := range tok.Dirs {
				cands = append(cands, l.considerDirectory(req, d, idx, SourceFrameworkDir)...)
			}
		case TokenRegistry:
			for _, d := range l.registryDirs(tok) {
				cands = append(cands, l.considerDirectory(req, d, idx, SourceRegistry)...)
			}
		case TokenGac:
			cands = l.considerGac(req, idx)
		case TokenRawFileName:
			cands = l.considerRawFileName(req, idx)
		}

		for i := range cands {
			considered = append(considered, cands[i])
			if cands[i].Reason == RejectNone {
				w := cands[i]
				return considered, &w
			}
		}
	}
	return considered, nil
}

func (l *Locator) probeAndMatch(req Request, loc FileLocation) Considered {
	mode := req.MatchMode()
	if !l.Cache.FileExists(loc.Path) {
		return Considered{Location: loc, Reason: RejectFileNotFound}
	}
	result, err := l.Cache.Lookup(loc.Path)
	if err != nil {
		return Considered{Location: loc, Reason: RejectFileNotFound}
	}
	if result.Identity.SimpleName == "" {
		return Considered{Location: loc, Reason: RejectTargetHadNoFusionName, Probed: result, HasProbe: true}
	}
	if !req.Identity.Matches(result.Identity, mode) {
		return Considered{Location: loc, Reason: RejectFusionNamesDidNotMatch, Probed: result, HasProbe: true}
	}
	return Considered{Location: loc, Reason: RejectNone, Probed: result, HasProbe: true}
}

func (l *Locator) considerHintPath(req Request, searchIdx int) []Considered {
	if req.HintPath == "" {
		return nil
	}
	loc := FileLocation{Path: req.HintPath, Source: SourceHintPath, SearchPathEntry: searchIdx}
	return []Considered{l.probeAndMatch(req, loc)}
}

func (l *Locator) considerCandidateFiles(req Request, searchIdx int) []Considered {
	var out []Considered
	for _, f := range req.CandidateFiles {
		if !hasAllowedExtension(f, l.Extensions) {
			continue
		}
		loc := FileLocation{Path: f, Source: SourceCandidateFile, SearchPathEntry: searchIdx}
		out = append(out, l.probeAndMatch(req, loc))
	}
	return out
}

func (l *Locator) considerDirectory(req Request, dir string, searchIdx int, tag SourceTag) []Considered {
	var out []Considered
	for _, ext := range l.Extensions {
		candidate := filepath.Join(dir, req.Identity.Raw+ext)
		loc := FileLocation{Path: candidate, Source: tag, SearchPathEntry: searchIdx}
		out = append(out, l.probeAndMatch(req, loc))
	}
	return out
}

func (l *Locator) considerGac(req Request, searchIdx int) []Considered {
	if l.GacQuery == nil {
		return []Considered{{
			Location: FileLocation{Path: "gac://" + req.Identity.Raw, Source: SourceGac, SearchPathEntry: searchIdx},
			Reason:   RejectNotInGac,
		}}
	}
	paths, ok := l.GacQuery(req.Identity)
	if !ok || len(paths) == 0 {
		return []Considered{{
			Location: FileLocation{Path: "gac://" + req.Identity.Raw, Source: SourceGac, SearchPathEntry: searchIdx},
			Reason:   RejectNotInGac,
		}}
	}
	var out []Considered
	for _, p := range paths {
		loc := FileLocation{Path: p, Source: SourceGac, SearchPathEntry: searchIdx}
		c := l.probeAndMatch(req, loc)
		if c.Reason == RejectNone && !identity.ArchCompatible(l.TargetArch, c.Probed.Identity.ProcessorArch) {
			c.Reason = RejectProcessorArchitectureDoesNotMatch
		}
		out = append(out, c)
	}
	return out
}

func (l *Locator) considerRawFileName(req Request, searchIdx int) []Considered {
	loc := FileLocation{Path: req.Identity.Raw, Source: SourceRawFile, SearchPathEntry: searchIdx}
	if !l.Cache.FileExists(loc.Path) {
		return []Considered{{Location: loc, Reason: RejectNotAFileNameOnDisk}}
	}
	return []Considered{l.probeAndMatch(req, loc)}
}

func (l *Locator) registryDirs(tok Token) []string {
	if l.Registry == nil {
		return nil
	}
	names := l.Registry.SubkeyNames(tok.RegistryBase, tok.RegistryVer)
	sort.Strings(names)
	var dirs []string
	for _, n := range names {
		if v, ok := l.Registry.DefaultValue(tok.RegistryBase, tok.RegistryVer+"\\"+n); ok {
			dirs = append(dirs, filepath.Join(v, tok.RegistrySuffix))
		}
	}
	return dirs
}

func hasAllowedExtension(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
