// Package probe implements the metadata probe (spec.md C2): extracting an
// assembly's identity, its referenced identities, runtime version,
// processor architecture, WinMD flag, target framework moniker, and scatter
// files from a file on disk.
//
// Probing is expressed as a pluggable interface, mirroring the resolver/
// search-result pattern the rest of this module uses for pluggable
// collaborators: the graph builder only ever calls through a Prober, never
// a concrete file-format reader, so alternate metadata sources (a build
// cache, an in-memory test fixture, a future native-metadata reader) can be
// substituted without touching C7.
package probe

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/archref/resolver/identity"
)

// ProbeResult is the pure-function output of probing one file.
type ProbeResult struct {
	Identity        identity.AssemblyIdentity
	References      []identity.AssemblyIdentity
	ScatterFiles    []string
	RuntimeVersion  string
	ProcessorArch   identity.ProcessorArchitecture
	IsWinMD         bool
	FrameworkMoniker string
}

// Kind distinguishes the two recoverable probe failure modes named in
// spec.md §4.2.
type Kind int

const (
	KindBadImage Kind = iota
	KindIO
)

// Error is returned by Probe on failure, tagged with Kind so callers can
// apply spec.md §7's disposition table without string-matching.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	kind := "bad image"
	if e.Kind == KindIO {
		kind = "io"
	}
	return fmt.Sprintf("probe: %s: %s: %v", kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Prober extracts a ProbeResult from a file path. Implementations must be
// safe for concurrent use from multiple goroutines, since C3/C7 may invoke
// Probe for distinct paths in parallel via the graph package's worker pool.
type Prober interface {
	Probe(path string) (ProbeResult, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(path string) (ProbeResult, error)

func (f ProberFunc) Probe(path string) (ProbeResult, error) { return f(path) }

// manifest is the on-disk shape read by FileProber. Real assembly metadata
// (ECMA-335 headers) is out of scope for this exercise; FileProber stands
// in for a native-metadata reader behind the same Prober contract, reading
// a small sidecar manifest co-located with the assembly file so that the
// rest of the resolver can be exercised end-to-end without a CLR-metadata
// decoder.
type manifest struct {
	SimpleName       string   `json:"name"`
	Version          string   `json:"version"`
	Culture          string   `json:"culture"`
	PublicKeyToken   string   `json:"publicKeyToken"`
	ProcessorArch    string   `json:"processorArchitecture"`
	RuntimeVersion   string   `json:"runtimeVersion"`
	FrameworkMoniker string   `json:"frameworkMoniker"`
	IsWinMD          bool     `json:"winmd"`
	References       []string `json:"references"`
	ScatterFiles     []string `json:"scatterFiles"`
}

// FileProber reads manifest sidecar files named "<assembly>.meta.json" next
// to the probed assembly. It implements Prober.
type FileProber struct {
	// FS is the filesystem to read from. Defaults to the OS filesystem via
	// os.ReadFile when nil.
	FS fs.FS
}

var _ Prober = (*FileProber)(nil)

func (p *FileProber) Probe(path string) (ProbeResult, error) {
	data, err := p.readFile(path + ".meta.json")
	if err != nil {
		if os.IsNotExist(err) {
			return ProbeResult{}, &Error{Kind: KindBadImage, Path: path, Err: fmt.Errorf("no metadata manifest found")}
		}
		return ProbeResult{}, &Error{Kind: KindIO, Path: path, Err: err}
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ProbeResult{}, &Error{Kind: KindBadImage, Path: path, Err: err}
	}
	if strings.TrimSpace(m.SimpleName) == "" {
		return ProbeResult{}, &Error{Kind: KindBadImage, Path: path, Err: fmt.Errorf("manifest missing assembly name")}
	}

	fusion := m.SimpleName
	if m.Version != "" {
		fusion += ", Version=" + m.Version
	}
	if m.Culture != "" {
		fusion += ", Culture=" + m.Culture
	}
	if m.PublicKeyToken != "" {
		fusion += ", PublicKeyToken=" + m.PublicKeyToken
	}
	id, err := identity.Parse(fusion)
	if err != nil {
		return ProbeResult{}, &Error{Kind: KindBadImage, Path: path, Err: err}
	}
	id.ProcessorArch = identity.ParseArchitecture(m.ProcessorArch)

	refs := make([]identity.AssemblyIdentity, 0, len(m.References))
	for _, r := range m.References {
		rid, err := identity.Parse(r)
		if err != nil {
			return ProbeResult{}, &Error{Kind: KindBadImage, Path: path, Err: err}
		}
		refs = append(refs, rid)
	}

	runtimeVersion := m.RuntimeVersion
	if runtimeVersion == "" {
		runtimeVersion = "v4.0.30319"
	}

	return ProbeResult{
		Identity:         id,
		References:       refs,
		ScatterFiles:     m.ScatterFiles,
		RuntimeVersion:   runtimeVersion,
		ProcessorArch:    id.ProcessorArch,
		IsWinMD:          m.IsWinMD,
		FrameworkMoniker: m.FrameworkMoniker,
	}, nil
}

func (p *FileProber) readFile(path string) ([]byte, error) {
	if p.FS != nil {
		return fs.ReadFile(p.FS, path)
	}
	return os.ReadFile(path)
}

// FromMap returns a Prober backed by an in-memory map of path to
// ProbeResult, useful for unit tests that do not want to touch the
// filesystem at all.
func FromMap(results map[string]ProbeResult) Prober {
	return ProberFunc(func(path string) (ProbeResult, error) {
		r, ok := results[path]
		if !ok {
			return ProbeResult{}, &Error{Kind: KindIO, Path: path, Err: fs.ErrNotExist}
		}
		return r, nil
	})
}
