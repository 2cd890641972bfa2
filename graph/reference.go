// Package graph implements the reference graph data model (spec.md §3) and
// the graph builder (C7) that drives candidate search and metadata probing
// to compute the transitive closure of a set of primary assembly
// references.
package graph

import (
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/redirect"
)

// CopyLocalResult is the tagged outcome of the C9 copy-local rule table
// (spec.md §4.9). It lives on Reference itself (the data model owns its
// own fields) even though the classify package computes it, since
// copy_local is named as a core Reference field in spec.md §3.
type CopyLocalResult int

const (
	CopyLocalUnset CopyLocalResult = iota
	CopyLocalYesExplicit
	CopyLocalYesHeuristic
	CopyLocalNo
	CopyLocalNoPrerequisite
	CopyLocalNoEmbedded
	CopyLocalNoConflictVictim
	CopyLocalNoResolvedFromGac
	CopyLocalNoFoundInGac
	CopyLocalNoParentsInGac
	CopyLocalNoFrameworkFile
)

func (c CopyLocalResult) String() string {
	switch c {
	case CopyLocalYesExplicit, CopyLocalYesHeuristic:
		return "Yes"
	case CopyLocalNoPrerequisite:
		return "NoPrerequisite"
	case CopyLocalNoEmbedded:
		return "NoEmbedded"
	case CopyLocalNoConflictVictim:
		return "NoConflictVictim"
	case CopyLocalNoResolvedFromGac:
		return "NoResolvedFromGac"
	case CopyLocalNoFoundInGac:
		return "NoFoundInGac"
	case CopyLocalNoParentsInGac:
		return "NoParentsInGac"
	case CopyLocalNoFrameworkFile:
		return "NoFrameworkFile"
	case CopyLocalNo:
		return "No"
	default:
		return "Unset"
	}
}

// Bool reports whether this result means the file should be copied to the
// output directory.
func (c CopyLocalResult) Bool() bool {
	return c == CopyLocalYesExplicit || c == CopyLocalYesHeuristic
}

// ConflictKind distinguishes the three conflict_state values (spec.md §3).
type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictVictor
	ConflictVictim
)

// VictimReason is the exact enum from spec.md §4.8.
type VictimReason int

const (
	VictimReasonNone VictimReason = iota
	VictimReasonHadLowerVersion
	VictimReasonWasNotPrimary
	VictimReasonInsolubleConflict
	VictimReasonFusionEquivalentWithSameVersion
)

func (r VictimReason) String() string {
	switch r {
	case VictimReasonHadLowerVersion:
		return "HadLowerVersion"
	case VictimReasonWasNotPrimary:
		return "WasNotPrimary"
	case VictimReasonInsolubleConflict:
		return "InsolubleConflict"
	case VictimReasonFusionEquivalentWithSameVersion:
		return "FusionEquivalentWithSameVersion"
	default:
		return "None"
	}
}

// ConflictState is the conflict_state Reference field (spec.md §3).
type ConflictState struct {
	Kind      ConflictKind
	Reason    VictimReason
	WinnerKey string // SimpleKey of the winning Reference, set when Kind is ConflictVictor or ConflictVictim
}

// ErrorKind is the exact tagged-error enum from spec.md §3/§7.
type ErrorKind int

const (
	ErrorResolutionFailed ErrorKind = iota
	ErrorDependencyFailed
	ErrorBadImage
	ErrorArchMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorResolutionFailed:
		return "ResolutionFailed"
	case ErrorDependencyFailed:
		return "DependencyFailed"
	case ErrorBadImage:
		return "BadImage"
	case ErrorArchMismatch:
		return "ArchMismatch"
	default:
		return "Unknown"
	}
}

// RefError is one tagged error recorded on a Reference.
type RefError struct {
	Kind    ErrorKind
	Message string
}

// ArchMismatchMode controls the severity of a resolved-arch-mismatch
// finding (spec.md §6's warn_or_error_on_arch_mismatch, §7's ArchMismatch
// disposition).
type ArchMismatchMode int

const (
	ArchMismatchNone ArchMismatchMode = iota
	ArchMismatchWarning
	ArchMismatchError
)

// PreUnification records one prior version an identity held before a
// redirect was applied (spec.md §3: pre_unification_versions).
type PreUnification struct {
	Version identity.AssemblyIdentity // the identity as requested, before remap
	Reason  redirect.Reason
}

// ConflictCandidate records one distinct strict identity that was requested
// for this Reference's simple identity, whether or not it was the one
// actually searched for and resolved. spec.md §4.8 describes a conflict as
// "a set of Reference entries with equal simple identity but distinct
// strict identities"; since the ReferenceTable invariant forbids two live
// Reference rows sharing a simple identity (§3), the candidate history that
// C8 needs is tracked on the single surviving Reference instead of as
// separate rows.
type ConflictCandidate struct {
	Identity  identity.AssemblyIdentity
	IsPrimary bool
	// SearchPathEntry is the winning location's search-path index when this
	// candidate is the one that was actually probed and resolved (i.e. it is
	// the founding request); -1 for candidates that were only ever merged in
	// as a dependee and never independently searched for.
	SearchPathEntry int
}

// Dependee is a back-reference from a Reference to one of its requesters,
// addressed by SimpleKey handle rather than by pointer (spec.md §9 "Back-
// edges without cycles": dependees hold identity handles, not owning
// pointers; the ReferenceTable is the sole owner).
type Dependee struct {
	RequesterKey      string
	RequesterIdentity identity.AssemblyIdentity
}

// Reference is the central graph node (spec.md §3).
type Reference struct {
	RequestedIdentity identity.AssemblyIdentity
	ResolvedIdentity  identity.AssemblyIdentity
	ResolvedLocation  *locate.FileLocation

	IsPrimary bool
	IsUnified bool

	PreUnificationVersions []PreUnification
	Dependees              []Dependee
	SourceItems            []string // primary-level item names that transitively required this reference
	ConflictCandidates     []ConflictCandidate

	ConsideredLocations []locate.Considered

	RelatedFiles   []string
	SatelliteFiles []string
	ScatterFiles   []string

	CopyLocal CopyLocalResult
	Errors    []RefError
	Conflict  ConflictState

	IsFrameworkFile bool
	IsWinMD         bool
	RuntimeVersion  string

	// Per-item overrides/hints carried from the request (spec.md §6).
	HintPath             string
	Private              *bool
	SpecificVersion      bool
	EmbedInteropTypes    bool
	IsExternallyResolved bool
	InGAC                bool
	RedistInGAC          bool // true if found InFramework(in_gac=true) via policy classification
}

// Resolved reports whether this Reference has a resolved location (spec.md
// §3: "A Reference is Resolved iff resolved_location is set AND its
// metadata has been probed.").
func (r *Reference) Resolved() bool {
	return r.ResolvedLocation != nil
}

// AddDependee appends a back-reference if one for requesterKey does not
// already exist.
func (r *Reference) AddDependee(requesterKey string, requesterIdentity identity.AssemblyIdentity) {
	for _, d := range r.Dependees {
		if d.RequesterKey == requesterKey {
			return
		}
	}
	r.Dependees = append(r.Dependees, Dependee{RequesterKey: requesterKey, RequesterIdentity: requesterIdentity})
}

// AddSourceItem records a primary-level item name as having transitively
// required this reference, if not already recorded.
func (r *Reference) AddSourceItem(name string) {
	for _, s := range r.SourceItems {
		if s == name {
			return
		}
	}
	r.SourceItems = append(r.SourceItems, name)
}

// AddConflictCandidate records a distinct requested strict identity for
// this Reference's simple identity, if a candidate with the same version
// has not already been recorded.
func (r *Reference) AddConflictCandidate(c ConflictCandidate) {
	for i, existing := range r.ConflictCandidates {
		if existing.Identity.Version.Compare(c.Identity.Version) == 0 {
			if existing.SearchPathEntry < 0 && c.SearchPathEntry >= 0 {
				r.ConflictCandidates[i].SearchPathEntry = c.SearchPathEntry
			}
			if c.IsPrimary {
				r.ConflictCandidates[i].IsPrimary = true
			}
			return
		}
	}
	r.ConflictCandidates = append(r.ConflictCandidates, c)
}
