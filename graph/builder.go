package graph

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/policy"
	"github.com/archref/resolver/redirect"
)

// SeedItem is a primary root to seed the closure with (spec.md §4.7 step
// 1: "Seed the queue with each primary (identity, hint) from inputs.").
type SeedItem struct {
	Identity             identity.AssemblyIdentity
	HintPath             string
	Private              *bool
	SpecificVersion      bool
	EmbedInteropTypes    bool
	IsExternallyResolved bool
	// SourceItem names this primary for source_items[] tracking. Defaults
	// to Identity.Raw when empty.
	SourceItem string
}

// Builder drives C4 (locate) + C2/C3 (probe via cache) to compute the
// transitive closure of a set of primaries, applying C5 policy pruning at
// the end. Concurrency across distinct file probes within one BFS "wave"
// is bounded by a semaphore, exactly as the teacher's compiler.go bounds
// concurrent file compiles with golang.org/x/sync/semaphore; the
// ReferenceTable itself is mutated only by the driver goroutine (spec.md
// §5), matching the teacher's single-writer executor.results discipline.
type Builder struct {
	Locator   *locate.Locator
	Cache     *cache.Cache
	Policy    *policy.Policy
	Redirects *redirect.Engine
	Log       *decisionlog.Log

	MaxParallelism int

	FindDependencies                     bool
	FindDependenciesOfExternallyResolved bool

	// TargetArch and ArchMismatchMode implement spec.md §6/§7's arch-mismatch
	// diagnostic: a resolved reference whose architecture cannot satisfy
	// TargetArch is flagged at the configured severity. ArchMismatchNone
	// (the zero value) disables the check entirely.
	TargetArch       identity.ProcessorArchitecture
	ArchMismatchMode ArchMismatchMode
}

type workItem struct {
	identity             identity.AssemblyIdentity
	hintPath             string
	specificVersion      bool
	isPrimary            bool
	private              *bool
	embedInteropTypes    bool
	isExternallyResolved bool
	requesterKey         string
	requesterIdentity    identity.AssemblyIdentity
	sourceItem           string

	// effective is the post-redirect identity actually searched for;
	// preUnification is set when a redirect changed the version.
	effective      identity.AssemblyIdentity
	preUnification *PreUnification
}

type waveResult struct {
	considered []locate.Considered
	winner     *locate.Considered
}

// ErrCancelled is returned by BuildClosure when ctx is cancelled mid-build,
// per spec.md §5: the driver drains outstanding work, discards partial
// results, and does not flush the cache.
var ErrCancelled = fmt.Errorf("graph: resolution cancelled")

// BuildClosure implements spec.md §4.7's algorithm, steps 1-3 (step 4, the
// conflict-driven re-pass, is orchestrated by the root resolver package
// since it depends on the C8 conflict package).
func (b *Builder) BuildClosure(ctx context.Context, seeds []SeedItem) (*Table, error) {
	table := NewTable()

	queue := make([]workItem, 0, len(seeds))
	for _, s := range seeds {
		src := s.SourceItem
		if src == "" {
			src = s.Identity.Raw
		}
		queue = append(queue, workItem{
			identity:             s.Identity,
			hintPath:             s.HintPath,
			specificVersion:      s.SpecificVersion,
			isPrimary:            true,
			private:              s.Private,
			embedInteropTypes:    s.EmbedInteropTypes,
			isExternallyResolved: s.IsExternallyResolved,
			sourceItem:           src,
		})
	}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		var toProcess []workItem
		for _, item := range queue {
			key := item.identity.SimpleKey()
			item.effective, item.preUnification = b.applyRedirect(item.identity)
			if ref, ok := table.Get(key); ok {
				mergeIntoExisting(ref, item)
				continue
			}
			ref := &Reference{
				RequestedIdentity:    item.identity,
				IsPrimary:            item.isPrimary,
				HintPath:             item.hintPath,
				Private:              item.private,
				SpecificVersion:      item.specificVersion,
				EmbedInteropTypes:    item.embedInteropTypes,
				IsExternallyResolved: item.isExternallyResolved,
			}
			mergeIntoExisting(ref, item)
			table.Put(key, ref)
			toProcess = append(toProcess, item)
			b.Log.PrimaryOrDependency(item.identity.String(), item.isPrimary)
		}

		results, err := b.processWave(ctx, toProcess)
		if err != nil {
			return nil, err
		}

		var next []workItem
		for i, item := range toProcess {
			key := item.identity.SimpleKey()
			ref, _ := table.Get(key)
			deps := b.finishReference(ref, item, results[i])
			if !b.FindDependencies {
				continue
			}
			if ref.IsExternallyResolved && !b.FindDependenciesOfExternallyResolved {
				continue
			}
			if !ref.Resolved() {
				continue
			}
			for _, depID := range deps {
				next = append(next, workItem{
					identity:          depID,
					isPrimary:         false,
					requesterKey:      key,
					requesterIdentity: ref.ResolvedIdentity,
					sourceItem:        firstSourceItem(ref),
				})
			}
		}
		sort.Slice(next, func(i, j int) bool {
			return next[i].identity.SimpleKey() < next[j].identity.SimpleKey()
		})
		queue = next
	}

	b.pruneExcluded(table)
	return table, nil
}

func mergeIntoExisting(ref *Reference, item workItem) {
	if item.requesterKey != "" {
		ref.AddDependee(item.requesterKey, item.requesterIdentity)
	}
	if item.sourceItem != "" {
		ref.AddSourceItem(item.sourceItem)
	}
	if item.isPrimary {
		ref.IsPrimary = true
	}
	if item.preUnification != nil {
		ref.IsUnified = true
		ref.PreUnificationVersions = append(ref.PreUnificationVersions, *item.preUnification)
	}
	ref.AddConflictCandidate(ConflictCandidate{
		Identity:        item.identity,
		IsPrimary:       item.isPrimary,
		SearchPathEntry: -1,
	})
}

// applyRedirect resolves id through the redirect engine (spec.md §4.7 step
// 2b), returning the effective identity to search for and, if a redirect
// actually changed the version, the PreUnification record to attach.
func (b *Builder) applyRedirect(id identity.AssemblyIdentity) (identity.AssemblyIdentity, *PreUnification) {
	if b.Redirects == nil {
		return id, nil
	}
	newVersion, reason := b.Redirects.Apply(id)
	if reason == redirect.ReasonNone || newVersion.Compare(id.Version) == 0 {
		return id, nil
	}
	return id.WithVersion(newVersion), &PreUnification{Version: id, Reason: reason}
}

func firstSourceItem(ref *Reference) string {
	if len(ref.SourceItems) > 0 {
		return ref.SourceItems[0]
	}
	return ""
}

// processWave resolves all items in a wave concurrently, bounded by
// MaxParallelism, and returns one waveResult per item in the same order.
func (b *Builder) processWave(ctx context.Context, items []workItem) ([]waveResult, error) {
	results := make([]waveResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	limit := b.MaxParallelism
	if limit <= 0 {
		limit = 8
	}
	sem := semaphore.NewWeighted(int64(limit))

	errCh := make(chan error, len(items))
	for i := range items {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := 0; j < i; j++ {
				<-errCh
			}
			return nil, ErrCancelled
		}
		go func() {
			defer sem.Release(1)
			req := locate.Request{
				Identity:        items[i].effective,
				HintPath:        items[i].hintPath,
				SpecificVersion: items[i].specificVersion,
			}
			considered, winner := b.Locator.Locate(req)
			results[i] = waveResult{considered: considered, winner: winner}
			errCh <- nil
		}()
	}
	for range items {
		if err := <-errCh; err != nil {
			return nil, err
		}
	}
	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	default:
	}
	return results, nil
}

// finishReference merges one wave result into its placeholder Reference,
// applying C2 probe output (C6 redirects were already applied by the driver
// loop before the item was located), and returns the referenced identities
// to enqueue as dependencies.
func (b *Builder) finishReference(ref *Reference, item workItem, res waveResult) []identity.AssemblyIdentity {
	ref.ConsideredLocations = res.considered
	for _, c := range res.considered {
		b.Log.Considered(c.Location.Path, c.Reason.String())
	}

	if res.winner == nil {
		ref.ResolvedIdentity = item.effective
		msg := fmt.Sprintf("no candidate matched %s", item.effective)
		ref.Errors = append(ref.Errors, RefError{Kind: ErrorResolutionFailed, Message: msg})
		// spec.md §7: ResolutionFailed is a warning on a primary, an
		// advisory (info) on a dependency.
		if item.isPrimary {
			b.Log.Warning("ResolutionFailed", msg)
		} else {
			b.Log.Advisory("ResolutionFailed: " + msg)
		}
		return nil
	}

	ref.ResolvedLocation = &res.winner.Location
	ref.ResolvedIdentity = res.winner.Probed.Identity
	ref.IsWinMD = res.winner.Probed.IsWinMD
	ref.RuntimeVersion = res.winner.Probed.RuntimeVersion
	ref.ScatterFiles = res.winner.Probed.ScatterFiles
	ref.InGAC = res.winner.Location.Source == locate.SourceGac
	ref.AddConflictCandidate(ConflictCandidate{
		Identity:        item.identity,
		IsPrimary:       item.isPrimary,
		SearchPathEntry: res.winner.Location.SearchPathEntry,
	})

	if b.Policy != nil {
		class := b.Policy.Classify(ref.ResolvedIdentity)
		ref.IsFrameworkFile = class == policy.InFramework
		if m, ok := b.Policy.Membership(ref.ResolvedIdentity); ok {
			ref.RedistInGAC = m.InGAC
		}
	}

	b.Log.Resolved(ref.ResolvedIdentity.String(), ref.ResolvedLocation.Path)

	if b.ArchMismatchMode != ArchMismatchNone && !identity.ArchCompatible(b.TargetArch, ref.ResolvedIdentity.ProcessorArch) {
		msg := fmt.Sprintf("%s resolved as %s, want %s", ref.ResolvedIdentity, ref.ResolvedIdentity.ProcessorArch, b.TargetArch)
		ref.Errors = append(ref.Errors, RefError{Kind: ErrorArchMismatch, Message: msg})
		if b.ArchMismatchMode == ArchMismatchError {
			b.Log.Error("ArchMismatch", msg)
		} else {
			b.Log.Warning("ArchMismatch", msg)
		}
	}

	return res.winner.Probed.References
}

// pruneExcluded implements spec.md §4.7 step 3: remove references (and
// implicitly their edges, since Dependees are handle-based and simply
// become dangling handles nobody looks up) whose resolved identity is
// classified Excluded by policy.
func (b *Builder) pruneExcluded(table *Table) {
	if b.Policy == nil {
		return
	}
	for _, ref := range table.InOrder() {
		id := ref.ResolvedIdentity
		if id.SimpleName == "" {
			id = ref.RequestedIdentity
		}
		if b.Policy.IsExcluded(id) {
			key := id.SimpleKey()
			table.Remove(key)
			subsetName := "subset"
			if m, ok := b.Policy.Full.Lookup(id); ok {
				subsetName = m.RedistName
			}
			b.Log.ExclusionApplied(id.String(), subsetName)
		}
	}
}
