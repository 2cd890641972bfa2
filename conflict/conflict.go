// Package conflict implements the conflict resolver (spec.md C8): for each
// Reference that accumulated more than one distinct requested version under
// its simple identity, it picks a winner by the priority rules, tags the
// Reference's conflict_state, and synthesizes a suggested (and, in
// auto-unify mode, live) redirect.
//
// The tagged Victor/Victim(reason) shape mirrors the teacher's symbol-table
// collision handling (linker/symbols.go's AlreadyDefinedError): a typed
// outcome carrying the reason, rather than a boolean plus a string.
package conflict

import (
	"math"

	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/fxver"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/redirect"
)

// Resolver detects and resolves conflicts across a Table's References.
type Resolver struct {
	// AutoUnify, when true, causes Resolve to also return live redirects
	// for the caller to Install into the C6 engine before the next closure
	// pass (spec.md §4.7 step 4).
	AutoUnify bool
	Log       *decisionlog.Log

	// Locator, when set, lets Resolve re-locate and re-probe a soluble
	// conflict's winner when it is not the candidate the graph builder
	// happened to found the Reference on (spec.md §8 invariant 9: a
	// Victim always implies a corresponding Victor). Without a Locator, a
	// founding reference that loses to a higher non-founding candidate
	// stays a Victim with no Victor ever resolved for it.
	Locator *locate.Locator
}

// Result is the outcome of one Resolve pass.
type Result struct {
	ConflictsFound     int
	SuggestedRedirects []redirect.Redirect // always produced, one per conflicted simple identity
	LiveRedirects      []redirect.Redirect // only populated when AutoUnify is true
}

// Resolve walks every live Reference in table and applies spec.md §4.8.
func (r *Resolver) Resolve(table *graph.Table) Result {
	var res Result
	for _, ref := range table.InOrder() {
		if len(ref.ConflictCandidates) < 2 {
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictNone}
			continue
		}
		if !hasDistinctVersions(ref.ConflictCandidates) {
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictNone}
			continue
		}

		res.ConflictsFound++
		winner, insoluble := pickWinner(ref.ConflictCandidates)

		simpleKey := ref.ResolvedIdentity.SimpleKey()
		if simpleKey == "" {
			simpleKey = ref.RequestedIdentity.SimpleKey()
		}

		for _, cand := range ref.ConflictCandidates {
			if cand.Identity.Version.Compare(winner.Identity.Version) == 0 {
				continue
			}
			r.logIfPresent(func(l *decisionlog.Log) {
				l.Conflict(winner.Identity.String(), cand.Identity.String(), victimReasonFor(cand, winner, insoluble).String())
				// spec.md §7: InsolubleConflict (two primaries disagree) is
				// a warning; an ordinary soluble conflict is advisory, with
				// the suggested redirect carrying the actionable detail.
				if insoluble {
					l.Warning("InsolubleConflict", "two primaries disagree on version for "+simpleKey)
				} else {
					l.Advisory("SolubleConflict: version conflict for " + simpleKey)
				}
			})
		}

		foundingVersion := ref.ResolvedIdentity.Version
		if !ref.Resolved() {
			foundingVersion = ref.RequestedIdentity.Version
		}

		switch {
		case foundingVersion.Compare(winner.Identity.Version) == 0:
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictVictor, WinnerKey: simpleKey}
		case insoluble:
			// Two primaries disagree; spec.md §4.8 keeps both, so there is
			// no single file to re-resolve toward and the founding
			// reference stays tagged as the (sole) live row.
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictVictim, Reason: graph.VictimReasonInsolubleConflict, WinnerKey: simpleKey}
		case r.reconcileWinner(ref, winner.Identity):
			// The winner was never the founding candidate, so nothing had
			// probed its file until now; re-locating it here is what makes
			// it the one live Reference ever resolves to, so a Victim never
			// outlives its Victor (spec.md §8 invariant 9).
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictVictor, WinnerKey: simpleKey}
		default:
			// The winner's file could not be re-located (e.g. it was only
			// ever a requested version, never an actual file on disk);
			// fall back to reporting the founding reference as the victim
			// it resolved to.
			ref.Conflict = graph.ConflictState{Kind: graph.ConflictVictim, Reason: graph.VictimReasonHadLowerVersion, WinnerKey: simpleKey}
		}

		partial := redirect.PartialOf(winner.Identity)
		suggested := redirect.Redirect{
			Partial:    partial,
			OldRange:   fxver.Range{Low: fxver.Version{}, High: fxver.Version{}},
			NewVersion: winner.Identity.Version,
		}
		res.SuggestedRedirects = append(res.SuggestedRedirects, suggested)
		r.logIfPresent(func(l *decisionlog.Log) {
			l.SuggestedRedirect(partial.SimpleName, winner.Identity.Version.String())
		})

		if r.AutoUnify {
			res.LiveRedirects = append(res.LiveRedirects, redirect.Redirect{
				Partial:    partial,
				OldRange:   fxver.Range{Low: fxver.Version{}, Unbounded: true},
				NewVersion: winner.Identity.Version,
			})
		}
	}
	return res
}

func (r *Resolver) logIfPresent(f func(*decisionlog.Log)) {
	if r.Log != nil {
		f(r.Log)
	}
}

// reconcileWinner re-locates and re-probes winner (forcing a strict-identity
// match so the exact winning version is required, not merely a matching
// simple name) and, if found, makes it ref's resolved file. It reports
// whether the winner could be located.
func (r *Resolver) reconcileWinner(ref *graph.Reference, winner identity.AssemblyIdentity) bool {
	if r.Locator == nil {
		return false
	}

	req := locate.Request{Identity: winner, SpecificVersion: true}
	considered, found := r.Locator.Locate(req)
	ref.ConsideredLocations = append(ref.ConsideredLocations, considered...)
	r.logIfPresent(func(l *decisionlog.Log) {
		for _, c := range considered {
			l.Considered(c.Location.Path, c.Reason.String())
		}
	})
	if found == nil {
		return false
	}

	ref.ResolvedLocation = &found.Location
	ref.ResolvedIdentity = found.Probed.Identity
	ref.IsWinMD = found.Probed.IsWinMD
	ref.RuntimeVersion = found.Probed.RuntimeVersion
	ref.ScatterFiles = found.Probed.ScatterFiles
	ref.InGAC = found.Location.Source == locate.SourceGac
	ref.AddConflictCandidate(graph.ConflictCandidate{
		Identity:        winner,
		SearchPathEntry: found.Location.SearchPathEntry,
	})
	r.logIfPresent(func(l *decisionlog.Log) {
		l.Resolved(ref.ResolvedIdentity.String(), ref.ResolvedLocation.Path)
	})
	return true
}

func hasDistinctVersions(cands []graph.ConflictCandidate) bool {
	if len(cands) == 0 {
		return false
	}
	first := cands[0].Identity.Version
	for _, c := range cands[1:] {
		if c.Identity.Version.Compare(first) != 0 {
			return true
		}
	}
	return false
}

// pickWinner applies spec.md §4.8's four priority rules in order: prefer
// is_primary; prefer higher version; (rule 3, newer assembly-level
// file-version, has no analogue here since non-founding candidates were
// never independently probed — see DESIGN.md); prefer lower
// SearchPathEntry (higher search-path priority). insoluble reports whether
// two distinct primaries disagreed.
func pickWinner(cands []graph.ConflictCandidate) (winner graph.ConflictCandidate, insoluble bool) {
	primaryVersions := map[string]bool{}
	for _, c := range cands {
		if c.IsPrimary {
			primaryVersions[c.Identity.Version.String()] = true
		}
	}
	insoluble = len(primaryVersions) > 1

	pool := cands
	if !insoluble {
		var primaries []graph.ConflictCandidate
		for _, c := range cands {
			if c.IsPrimary {
				primaries = append(primaries, c)
			}
		}
		if len(primaries) > 0 {
			pool = primaries
		}
	}

	best := pool[0]
	bestEntry := searchPathPriority(best)
	for _, c := range pool[1:] {
		if c.Identity.Version.Compare(best.Identity.Version) > 0 {
			best, bestEntry = c, searchPathPriority(c)
			continue
		}
		if c.Identity.Version.Compare(best.Identity.Version) == 0 {
			if entry := searchPathPriority(c); entry < bestEntry {
				best, bestEntry = c, entry
			}
		}
	}
	return best, insoluble
}

func searchPathPriority(c graph.ConflictCandidate) int {
	if c.SearchPathEntry < 0 {
		return math.MaxInt32
	}
	return c.SearchPathEntry
}

func victimReasonFor(cand, winner graph.ConflictCandidate, insoluble bool) graph.VictimReason {
	switch {
	case insoluble:
		return graph.VictimReasonInsolubleConflict
	case cand.Identity.Version.Compare(winner.Identity.Version) == 0:
		return graph.VictimReasonFusionEquivalentWithSameVersion
	case !cand.IsPrimary && winner.IsPrimary:
		return graph.VictimReasonWasNotPrimary
	default:
		return graph.VictimReasonHadLowerVersion
	}
}
