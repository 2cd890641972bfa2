// Package resolver ties the C1-C10 components together into the single
// entry point spec.md §6 describes: Config in, a ReferenceTable and
// decision log out, success iff no Error-kind event was logged.
//
// The orchestration mirrors the teacher's compiler.go Compile(): load
// ambient configuration, build the options a later stage needs from it,
// run the staged pipeline, and report a single aggregate result rather
// than letting each stage's caller wire the next stage by hand.
package resolver

import (
	"context"
	"log/slog"

	"github.com/archref/resolver/cache"
	"github.com/archref/resolver/classify"
	"github.com/archref/resolver/conflict"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/registryfs"
	"github.com/archref/resolver/locate"
	"github.com/archref/resolver/policy"
	"github.com/archref/resolver/probe"
	"github.com/archref/resolver/redirect"
)

// Item is one input reference request (spec.md §6's per-item input shape).
type Item struct {
	Identity             identity.AssemblyIdentity
	HintPath             string
	Private              *bool
	SpecificVersion      bool
	EmbedInteropTypes    bool
	IsExternallyResolved bool
	SourceItem           string
}

// Config is the full set of inputs spec.md §6 names for one invocation.
type Config struct {
	Items []Item

	SearchPaths []locate.Token
	Extensions  []string
	Registry    registryfs.Registry

	FullFrameworkLists    []string
	SubsetLists           []string
	FullFrameworkSynonyms []string

	ConfigRedirects   []redirect.Redirect
	RetargetRedirects []redirect.Redirect
	AutoUnify         bool

	Classify classify.Config

	CacheStatePath string
	Prober         probe.Prober

	FindDependencies                     bool
	FindDependenciesOfExternallyResolved bool
	MaxParallelism                       int

	// TargetProcessorArchitecture and ArchMismatchMode implement spec.md
	// §6's target_processor_architecture / warn_or_error_on_arch_mismatch
	// inputs: the former filters GAC candidates, the latter sets the
	// severity at which a resolved reference's architecture mismatch is
	// reported (ArchMismatchNone disables the check).
	TargetProcessorArchitecture identity.ProcessorArchitecture
	ArchMismatchMode            graph.ArchMismatchMode

	Sink   decisionlog.Sink
	Logger *slog.Logger
}

// Option mutates a Config; functional options let callers set only what
// they need while New fills in the rest, matching the teacher's
// compiler.Option pattern (compiler.go's WithXxx constructors).
type Option func(*Config)

func WithItems(items ...Item) Option {
	return func(c *Config) { c.Items = append(c.Items, items...) }
}

func WithSearchPaths(tokens ...locate.Token) Option {
	return func(c *Config) { c.SearchPaths = append(c.SearchPaths, tokens...) }
}

func WithExtensions(exts ...string) Option {
	return func(c *Config) { c.Extensions = exts }
}

func WithRegistry(r registryfs.Registry) Option {
	return func(c *Config) { c.Registry = r }
}

func WithFrameworkLists(full, subset []string, synonyms []string) Option {
	return func(c *Config) {
		c.FullFrameworkLists = full
		c.SubsetLists = subset
		c.FullFrameworkSynonyms = synonyms
	}
}

func WithRedirects(config, retarget []redirect.Redirect) Option {
	return func(c *Config) {
		c.ConfigRedirects = config
		c.RetargetRedirects = retarget
	}
}

func WithAutoUnify(enabled bool) Option {
	return func(c *Config) { c.AutoUnify = enabled }
}

func WithClassify(cfg classify.Config) Option {
	return func(c *Config) { c.Classify = cfg }
}

func WithCacheStatePath(path string) Option {
	return func(c *Config) { c.CacheStatePath = path }
}

func WithProber(p probe.Prober) Option {
	return func(c *Config) { c.Prober = p }
}

func WithDependencyDiscovery(findDependencies, ofExternallyResolved bool) Option {
	return func(c *Config) {
		c.FindDependencies = findDependencies
		c.FindDependenciesOfExternallyResolved = ofExternallyResolved
	}
}

func WithMaxParallelism(n int) Option {
	return func(c *Config) { c.MaxParallelism = n }
}

func WithArchConstraint(target identity.ProcessorArchitecture, mode graph.ArchMismatchMode) Option {
	return func(c *Config) {
		c.TargetProcessorArchitecture = target
		c.ArchMismatchMode = mode
	}
}

func WithSink(sink decisionlog.Sink) Option {
	return func(c *Config) { c.Sink = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Resolver owns one Config and runs Resolve against it.
type Resolver struct {
	cfg Config
}

// New builds a Resolver, applying opts over cfg. Callers that
// already have a fully-populated Config can pass it directly and skip
// options entirely.
func New(cfg Config, opts ...Option) *Resolver {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Resolver{cfg: cfg}
}

// Result is the aggregate outcome of one Resolve invocation.
type Result struct {
	Table   *graph.Table
	Log     *decisionlog.Log
	Success bool

	ConflictsFound     int
	SuggestedRedirects []redirect.Redirect

	// DependsOnSystemRuntime and DependsOnNetStandard are spec.md §6's
	// scalar closure-membership outputs.
	DependsOnSystemRuntime bool
	DependsOnNetStandard   bool
	// FilesWritten lists paths actually (re)written by this invocation —
	// just the cache state file, when it was dirty and flushed.
	FilesWritten []string
}

// Resolve runs spec.md §4.7's full pipeline: C5 policy load, C6 redirect
// engine construction, C7 closure build, C8 conflict resolution, a second
// C7 pass when auto-unify produced live redirects (§4.7 step 4), C9
// classification, and a final cache flush.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	cfg := r.cfg

	sink := cfg.Sink
	if sink == nil {
		sink = &decisionlog.SliceSink{}
	}
	log := decisionlog.New(sink, cfg.Logger)

	for i, item := range cfg.Items {
		name := item.SourceItem
		if name == "" {
			name = item.Identity.Raw
		}
		log.Input("item", name)
		cfg.Items[i].SourceItem = name
	}
	log.Input("searchPaths", tokensSummary(cfg.SearchPaths))

	pol, loadResult := policy.Load(cfg.FullFrameworkLists, cfg.SubsetLists, cfg.FullFrameworkSynonyms)
	for _, adv := range loadResult.Advisories {
		log.Advisory(adv)
	}

	redirects := redirect.NewEngine(cfg.ConfigRedirects, cfg.RetargetRedirects)

	prober := cfg.Prober
	if prober == nil {
		prober = &probe.FileProber{}
	}
	c := cache.New(prober, cfg.Logger)
	if cfg.CacheStatePath != "" {
		c.Load(cfg.CacheStatePath)
	}

	locator := &locate.Locator{
		Cache:       c,
		Extensions:  cfg.Extensions,
		SearchPaths: cfg.SearchPaths,
		Registry:    cfg.Registry,
		TargetArch:  cfg.TargetProcessorArchitecture,
	}

	builder := &graph.Builder{
		Locator:                              locator,
		Cache:                                c,
		Policy:                               pol,
		Redirects:                            redirects,
		Log:                                  log,
		MaxParallelism:                       cfg.MaxParallelism,
		FindDependencies:                     cfg.FindDependencies,
		FindDependenciesOfExternallyResolved: cfg.FindDependenciesOfExternallyResolved,
		TargetArch:                           cfg.TargetProcessorArchitecture,
		ArchMismatchMode:                     cfg.ArchMismatchMode,
	}

	seeds := make([]graph.SeedItem, len(cfg.Items))
	for i, item := range cfg.Items {
		seeds[i] = graph.SeedItem{
			Identity:             item.Identity,
			HintPath:             item.HintPath,
			Private:              item.Private,
			SpecificVersion:      item.SpecificVersion,
			EmbedInteropTypes:    item.EmbedInteropTypes,
			IsExternallyResolved: item.IsExternallyResolved,
			SourceItem:           item.SourceItem,
		}
	}

	table, err := builder.BuildClosure(ctx, seeds)
	if err != nil {
		return Result{}, err
	}

	conflictResolver := &conflict.Resolver{AutoUnify: cfg.AutoUnify, Log: log, Locator: locator}
	conflictResult := conflictResolver.Resolve(table)

	if cfg.AutoUnify && len(conflictResult.LiveRedirects) > 0 {
		redirects.Install(conflictResult.LiveRedirects...)
		table, err = builder.BuildClosure(ctx, seeds)
		if err != nil {
			return Result{}, err
		}
		// A second conflict pass re-tags conflict_state against the now-
		// unified candidates; spec.md §4.7 step 4 runs exactly one
		// additional closure pass, not an unbounded fixed-point loop.
		conflictResult = conflictResolver.Resolve(table)
	}

	classifier := &classify.Classifier{Cfg: cfg.Classify, Cache: c, Log: log}
	classifier.Classify(table)

	var filesWritten []string
	if cfg.CacheStatePath != "" && c.Dirty() {
		if err := c.Flush(cfg.CacheStatePath); err != nil {
			log.Advisory("cache: failed to flush state: " + err.Error())
		} else {
			filesWritten = append(filesWritten, cfg.CacheStatePath)
		}
	}

	dependsOnSystemRuntime, dependsOnNetStandard := closureDependsOn(table)

	return Result{
		Table:                  table,
		Log:                    log,
		Success:                log.Success(),
		ConflictsFound:         conflictResult.ConflictsFound,
		SuggestedRedirects:     conflictResult.SuggestedRedirects,
		DependsOnSystemRuntime: dependsOnSystemRuntime,
		DependsOnNetStandard:   dependsOnNetStandard,
		FilesWritten:           filesWritten,
	}, nil
}

// closureDependsOn reports spec.md §6's depends_on_system_runtime and
// depends_on_netstandard scalars: whether any reference in the closure was
// ever requested under that simple name, regardless of whether it resolved.
func closureDependsOn(table *graph.Table) (systemRuntime, netStandard bool) {
	for _, ref := range table.InOrder() {
		switch ref.RequestedIdentity.SimpleName {
		case "system.runtime":
			systemRuntime = true
		case "netstandard":
			netStandard = true
		}
	}
	return systemRuntime, netStandard
}

var tokenKindNames = map[locate.TokenKind]string{
	locate.TokenDirectory:                "Directory",
	locate.TokenHintPath:                 "HintPath",
	locate.TokenCandidateAssemblyFiles:   "CandidateAssemblyFiles",
	locate.TokenRegistry:                 "Registry",
	locate.TokenAssemblyFolders:          "AssemblyFolders",
	locate.TokenGac:                      "Gac",
	locate.TokenRawFileName:              "RawFileName",
	locate.TokenTargetFrameworkDirectory: "TargetFrameworkDirectory",
}

func tokensSummary(tokens []locate.Token) string {
	var out []byte
	for i, t := range tokens {
		if i > 0 {
			out = append(out, ';')
		}
		name, ok := tokenKindNames[t.Kind]
		if !ok {
			name = "Unknown"
		}
		out = append(out, name...)
	}
	return string(out)
}
