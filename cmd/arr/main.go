// Command arr is a thin flag-parsing front end over the resolver library.
// It is not the CLI harness spec.md names as an external, out-of-scope
// collaborator (§1) — it is a minimal driver for exercising the library
// from a shell, emitting the decision log as newline-delimited JSON on
// stdout and a non-zero exit code iff the invocation logged an Error.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/archref/resolver"
	"github.com/archref/resolver/decisionlog"
	"github.com/archref/resolver/graph"
	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/registryfs"
	"github.com/archref/resolver/locate"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("arr", flag.ContinueOnError)

	var references stringList
	var searchDirs stringList
	var extensions stringList
	var fullLists stringList
	var subsetLists stringList

	fs.Var(&references, "reference", "fusion name of a primary assembly reference (repeatable)")
	fs.Var(&searchDirs, "search-dir", "literal directory search path entry (repeatable)")
	fs.Var(&extensions, "extension", "allowed assembly extension, e.g. .dll (repeatable; default .dll,.exe)")
	fs.Var(&fullLists, "full-framework-list", "path to a full-framework redist list XML file (repeatable)")
	fs.Var(&subsetLists, "subset-list", "path to a subset redist list XML file (repeatable)")
	autoUnify := fs.Bool("auto-unify", false, "synthesize and install binding redirects for detected conflicts")
	findDeps := fs.Bool("find-dependencies", true, "follow transitive dependencies")
	cacheState := fs.String("cache-state", "", "path to a persistent probe-cache state file")
	maxParallel := fs.Int("max-parallelism", 8, "bounded concurrency for candidate probing within one wave")
	verbose := fs.Bool("verbose", false, "emit debug-level log/slog output in addition to the decision log")
	targetArch := fs.String("target-arch", "", "target_processor_architecture: MSIL, X86, AMD64, IA64, or ARM (default: unconstrained)")
	archMismatch := fs.String("arch-mismatch", "warning", "severity on a resolved reference's architecture mismatch: none, warning, or error")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if len(extensions) == 0 {
		extensions = stringList{".dll", ".exe"}
	}

	var archMismatchMode graph.ArchMismatchMode
	switch strings.ToLower(strings.TrimSpace(*archMismatch)) {
	case "", "none":
		archMismatchMode = graph.ArchMismatchNone
	case "warning":
		archMismatchMode = graph.ArchMismatchWarning
	case "error":
		archMismatchMode = graph.ArchMismatchError
	default:
		fmt.Fprintf(os.Stderr, "arr: invalid -arch-mismatch %q: want none, warning, or error\n", *archMismatch)
		return 2
	}

	items := make([]resolver.Item, 0, len(references))
	for _, raw := range references {
		id, err := identity.Parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "arr: invalid reference %q: %v\n", raw, err)
			return 2
		}
		items = append(items, resolver.Item{Identity: id})
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "arr: at least one -reference is required")
		return 2
	}

	var searchPaths []locate.Token
	for _, d := range searchDirs {
		searchPaths = append(searchPaths, locate.Token{Kind: locate.TokenDirectory, Dir: d})
	}
	searchPaths = append(searchPaths, locate.Token{Kind: locate.TokenHintPath})

	cfg := resolver.Config{
		Items:                       items,
		SearchPaths:                 searchPaths,
		Extensions:                  extensions,
		Registry:                    registryfs.Stub{},
		FullFrameworkLists:          fullLists,
		SubsetLists:                 subsetLists,
		AutoUnify:                   *autoUnify,
		CacheStatePath:              *cacheState,
		FindDependencies:            *findDeps,
		MaxParallelism:              *maxParallel,
		TargetProcessorArchitecture: identity.ParseArchitecture(*targetArch),
		ArchMismatchMode:            archMismatchMode,
		Logger:                      logger,
	}

	sink := decisionlog.NewJSONSink(os.Stdout)
	cfg.Sink = sink

	res, err := resolver.New(cfg).Resolve(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "arr: %v\n", err)
		return 1
	}

	if !res.Success {
		return 1
	}
	return 0
}
