// Package redirect implements the binding-redirect engine (spec.md C6):
// applying configured version remappings in priority order (explicit
// config, then framework retarget, then synthesized auto-unify) and
// yielding the highest-version remap whose range contains the requested
// version.
package redirect

import (
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/fxver"
)

// Reason tags why a version was unified, mirroring the
// pre_unification_versions reason enum in spec.md §3.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonConfigRedirect
	ReasonAutoUnify
	ReasonFrameworkRetarget
)

func (r Reason) String() string {
	switch r {
	case ReasonConfigRedirect:
		return "ConfigRedirect"
	case ReasonAutoUnify:
		return "AutoUnify"
	case ReasonFrameworkRetarget:
		return "FrameworkRetarget"
	default:
		return "None"
	}
}

// PartialIdentity is the version-less key a redirect matches against:
// simple name, culture, and (optional) public key token.
type PartialIdentity struct {
	SimpleName        string
	Culture           string
	PublicKeyToken    string
	HasPublicKeyToken bool
}

// PartialOf extracts the PartialIdentity of a full identity.
func PartialOf(id identity.AssemblyIdentity) PartialIdentity {
	return PartialIdentity{
		SimpleName:        id.SimpleName,
		Culture:           id.Culture,
		PublicKeyToken:    id.PublicKeyToken,
		HasPublicKeyToken: id.HasPublicKeyToken,
	}
}

func (p PartialIdentity) matches(id identity.AssemblyIdentity) bool {
	return p.SimpleName == id.SimpleName &&
		p.Culture == id.Culture &&
		p.HasPublicKeyToken == id.HasPublicKeyToken &&
		p.PublicKeyToken == id.PublicKeyToken
}

// Redirect is one {partial_identity, old_version_range, new_version} entry
// (spec.md §3 RedirectSet).
type Redirect struct {
	Partial    PartialIdentity
	OldRange   fxver.Range
	NewVersion fxver.Version
}

// Engine holds the three redirect tiers and applies them in priority
// order: config beats framework-retarget beats auto-unify (spec.md §4.6).
type Engine struct {
	config    []Redirect
	retarget  []Redirect
	autoUnify []Redirect
}

// NewEngine constructs an Engine with the given config and framework-
// retarget redirects. Auto-unify redirects are added later via Install, as
// they are only known once the conflict resolver (C8) runs.
func NewEngine(config, retarget []Redirect) *Engine {
	return &Engine{config: config, retarget: retarget}
}

// Install appends synthesized auto-unify redirects (spec.md §4.7 step 4:
// "install them in C6"). Safe to call multiple times across closure
// passes; later installs simply extend the tier.
func (e *Engine) Install(redirects ...Redirect) {
	e.autoUnify = append(e.autoUnify, redirects...)
}

// AutoUnifyRedirects returns the currently-installed auto-unify tier, for
// diagnostics.
func (e *Engine) AutoUnifyRedirects() []Redirect {
	return e.autoUnify
}

// Apply returns the effective version for id after applying the
// highest-priority, highest-version matching redirect, plus the Reason
// tier it came from. If no redirect applies, it returns id's own version
// and ReasonNone.
func (e *Engine) Apply(id identity.AssemblyIdentity) (fxver.Version, Reason) {
	if v, ok := highestMatch(e.config, id); ok {
		return v, ReasonConfigRedirect
	}
	if v, ok := highestMatch(e.retarget, id); ok {
		return v, ReasonFrameworkRetarget
	}
	if v, ok := highestMatch(e.autoUnify, id); ok {
		return v, ReasonAutoUnify
	}
	return id.Version, ReasonNone
}

func highestMatch(redirects []Redirect, id identity.AssemblyIdentity) (fxver.Version, bool) {
	var best fxver.Version
	var found bool
	for _, r := range redirects {
		if !r.Partial.matches(id) {
			continue
		}
		if !r.OldRange.Contains(id.Version) {
			continue
		}
		if !found || r.NewVersion.Compare(best) > 0 {
			best = r.NewVersion
			found = true
		}
	}
	return best, found
}
