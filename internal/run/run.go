// Package run implements `turbo run`
// This file implements the command itself, wiring cobra flags into the
// graph-building, scope-resolution, hashing, and execution pipeline that the
// rest of this package provides.
package run

import (
	gocontext "context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cargoworks/cargo/internal/analytics"
	"github.com/cargoworks/cargo/internal/cache"
	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/core"
	"github.com/cargoworks/cargo/internal/env"
	"github.com/cargoworks/cargo/internal/graph"
	"github.com/cargoworks/cargo/internal/process"
	"github.com/cargoworks/cargo/internal/runcache"
	"github.com/cargoworks/cargo/internal/runsummary"
	"github.com/cargoworks/cargo/internal/scm"
	"github.com/cargoworks/cargo/internal/scope"
	"github.com/cargoworks/cargo/internal/signals"
	"github.com/cargoworks/cargo/internal/taskhash"
	"github.com/cargoworks/cargo/internal/turbopath"
	"github.com/cargoworks/cargo/internal/util"
)

// GetCmd returns the cobra command for `turbo run`
func GetCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	opts := getDefaultOptions()

	// cwd is only used to compute flag defaults (e.g. the default cache
	// directory). The repoRoot that actually governs the run is resolved
	// later, in RunE, via helper.GetCmdBase, which honors --cwd.
	cwd, err := turbopath.GetCwd()
	if err != nil {
		cwd = turbopath.AbsoluteSystemPath("")
	}

	cmd := &cobra.Command{
		Use:                   "run <task> [<task>...] [<flags>] -- <args passed to tasks>",
		Short:                 "Run tasks across projects in your monorepo",
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
		Args:                  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, passThroughArgs := parseTasksAndArgs(args, cmd.ArgsLenAtDash())
			opts.runOpts.passThroughArgs = passThroughArgs
			return runRun(cmd.Context(), helper, signalWatcher, tasks, opts, cmd.Flags())
		},
	}

	flags := cmd.Flags()
	addRunOptsFlags(&opts.runOpts, flags)
	addScopeOptsFlags(&opts.scopeOpts, flags)
	cache.AddFlags(&opts.cacheOpts, flags, cwd)
	runcache.AddFlags(&opts.runcacheOpts, flags)

	return cmd
}

// parseTasksAndArgs splits the positional args into task names and the
// pass-through args that follow a literal "--".
func parseTasksAndArgs(args []string, dashAt int) ([]string, []string) {
	if dashAt < 0 || dashAt >= len(args) {
		return args, nil
	}
	return args[:dashAt], args[dashAt:]
}

func addRunOptsFlags(ro *runOpts, flags *pflag.FlagSet) {
	flags.IntVar(&ro.concurrency, "concurrency", ro.concurrency, "Limit the concurrency of task execution. Use 1 for serial (i.e. one-at-a-time) execution.")
	flags.BoolVarP(&ro.parallel, "parallel", "p", false, "Execute all tasks in parallel.")
	flags.StringVar(&ro.profile, "profile", "", "File to write turbo's performance profile output into. You can load the file up in chrome://tracing to see which parts of your build were slow.")
	flags.BoolVar(&ro.continueOnError, "continue", false, "Continue executing other tasks even if one fails.")
	flags.BoolVar(&ro.only, "only", false, "Only run the specified tasks, not their dependencies.")
	flags.BoolVar(&ro.dryRun, "dry-run", false, "List the packages in scope and the tasks that would run, without executing them.")
	flags.Lookup("dry-run").NoOptDefVal = "true"
	flags.BoolVar(&ro.graphDot, "graph", false, "Generate a Dot graph of the task execution.")
	flags.StringVar(&ro.graphFile, "graph-file", "", "Generate a file containing a visualization of the task execution graph (supports .dot, .html, .json, .mermaid, .png and .svg).")
	flags.BoolVar(&ro.noDaemon, "no-daemon", false, "Run without using the turbo daemon for watching the filesystem.")
	flags.BoolVar(&ro.singlePackage, "single-package", false, "Run turbo in single-package mode.")
	flags.StringVar(&ro.logPrefix, "log-prefix", "", `Controls whether turbo prefixes logs produced by tasks ("auto", "none")`)
	flags.BoolVar(&ro.summarize, "summarize", false, "Generate a list of all tasks that ran in the `.turbo/runs` folder for this run.")
	flags.StringVar(&ro.experimentalSpaceID, "experimental-space-id", "", "Record the run against the given Vercel space.")
	flags.Var(&envModeValue{target: &ro.envMode}, "env-mode", `Environment variable mode. One of "infer", "loose", "strict"`)

	if err := flags.MarkHidden("no-daemon"); err != nil {
		panic(err)
	}
	if err := flags.MarkHidden("experimental-space-id"); err != nil {
		panic(err)
	}
}

// envModeValue adapts util.EnvMode to pflag.Value so it can be set on the command line.
type envModeValue struct {
	target *util.EnvMode
}

func (e *envModeValue) String() string {
	if e.target == nil || *e.target == "" {
		return string(util.Infer)
	}
	return string(*e.target)
}

func (e *envModeValue) Set(value string) error {
	switch util.EnvMode(value) {
	case util.Infer, util.Loose, util.Strict:
		*e.target = util.EnvMode(value)
		return nil
	default:
		return fmt.Errorf("invalid env-mode %q, expected one of \"infer\", \"loose\", \"strict\"", value)
	}
}

func (e *envModeValue) Type() string {
	return "string"
}

func addScopeOptsFlags(so *scope.Opts, flags *pflag.FlagSet) {
	flags.BoolVar(&so.LegacyFilter.IncludeDependencies, "include-dependencies", false, "Include the dependencies of tasks in execution.")
	flags.BoolVar(&so.LegacyFilter.SkipDependents, "no-deps", false, "Exclude dependent task consumers from execution.")
	flags.StringArrayVar(&so.LegacyFilter.Entrypoints, "scope", nil, "Specify package(s) to act as entry points for task execution. Supports globs.")
	flags.StringVar(&so.LegacyFilter.Since, "since", "", "Limit/Set scope to changed packages since a mergebase.")
	flags.StringArrayVar(&so.FilterPatterns, "filter", nil, "Use the given selector to specify package(s) to act as entry points.")
	flags.StringArrayVar(&so.IgnorePatterns, "ignore", nil, "Files to ignore when calculating changed files (i.e. --since). Supports globs.")
	flags.StringArrayVar(&so.GlobalDepPatterns, "global-deps", nil, "Specify glob of global filesystem dependencies to be hashed.")
}

// runRun wires together a complete turbo run: discover the monorepo,
// resolve the tasks and packages in scope, compute hashes, and dispatch
// execution to GraphRun, DryRun, or RealRun.
func runRun(ctx gocontext.Context, helper *cmdutil.Helper, signalWatcher *signals.Watcher, tasks []string, opts *Opts, flags *pflag.FlagSet) error {
	base, err := helper.GetCmdBase(flags)
	if err != nil {
		return err
	}
	LogTag(base.Logger)

	g, err := graph.BuildCompleteGraph(base.RepoRoot, opts.runOpts.singlePackage, base.Logger)
	if err != nil {
		return fmt.Errorf("could not construct graph: %w", err)
	}

	rootTurboConfig, err := g.GetTurboConfigFromWorkspace(util.RootPkgName, opts.runOpts.singlePackage)
	if err != nil {
		return fmt.Errorf("could not read turbo.json: %w", err)
	}
	pipeline := rootTurboConfig.Pipeline
	g.Pipeline = pipeline

	scmInstance, err := scm.FromInRepo(base.RepoRoot)
	if err != nil {
		base.LogWarning("", fmt.Errorf("failed to find SCM, some features may not work: %w", err))
		scmInstance = scm.New(base.RepoRoot)
	}

	filteredPkgs, _, err := scope.ResolvePackages(&opts.scopeOpts, base.RepoRoot, scmInstance, g, base.UI, base.Logger)
	if err != nil {
		return fmt.Errorf("could not resolve packages to run: %w", err)
	}

	packagesInScope := filteredPkgs.UnsafeListOfStrings()

	engine := core.NewEngine(g, opts.runOpts.singlePackage)
	if err := engine.Prepare(&core.EngineBuildingOptions{
		Packages:  packagesInScope,
		TaskNames: tasks,
		TasksOnly: opts.runOpts.only,
	}); err != nil {
		return fmt.Errorf("could not build task graph: %w", err)
	}
	if err := engine.ValidatePersistentDependencies(g, opts.runOpts.concurrency); err != nil {
		return err
	}

	envAtExecutionStart := env.GetEnvMap()
	globalHashableEnvVars, err := getGlobalHashableEnvVars(envAtExecutionStart, rootTurboConfig.GlobalEnv)
	if err != nil {
		return fmt.Errorf("could not resolve global hash env vars: %w", err)
	}

	rootPackageJSON, err := g.GetPackageJSONFromWorkspace(util.RootPkgName)
	if err != nil {
		return fmt.Errorf("could not read root package.json: %w", err)
	}

	globalFileDependencies := append([]string{}, rootTurboConfig.GlobalDeps...)
	globalFileDependencies = append(globalFileDependencies, opts.scopeOpts.GlobalDepPatterns...)

	globalHash, globalFileHashMap, err := calculateGlobalHash(
		base.RepoRoot,
		rootPackageJSON,
		pipeline,
		globalHashableEnvVars,
		globalFileDependencies,
		g.PackageManager,
		g.Lockfile,
		base.Logger,
	)
	if err != nil {
		return fmt.Errorf("could not calculate global hash: %w", err)
	}
	g.GlobalHash = globalHash

	tracker := taskhash.NewTracker(g.RootNode, globalHash, envAtExecutionStart, pipeline)
	if err := tracker.CalculateFileHashes(engine.TaskGraph.Vertices(), opts.runOpts.concurrency, g.WorkspaceInfos, g.TaskDefinitions, base.RepoRoot); err != nil {
		return fmt.Errorf("could not calculate task file hashes: %w", err)
	}
	g.TaskHashTracker = tracker

	anchoredRepoPath, err := base.RepoRoot.RelativeTo(base.RepoRoot)
	if err != nil {
		return err
	}
	repoPath := turbopath.RelativeSystemPath(anchoredRepoPath.ToString())

	globalEnvPassthroughVars, err := envAtExecutionStart.FromWildcardsUnresolved(rootTurboConfig.GlobalPassThroughEnv)
	if err != nil {
		return fmt.Errorf("could not resolve global passthrough env vars: %w", err)
	}

	globalHashSummary := runsummary.NewGlobalHashSummary(
		globalFileHashMap,
		rootPackageJSON.ExternalDepsHash,
		globalHashableEnvVars,
		globalEnvPassthroughVars.Resolve(),
		_globalCacheKey,
		pipeline.Pristine(),
	)

	rs := &runSpec{
		Targets:      tasks,
		FilteredPkgs: filteredPkgs,
		Opts:         opts,
	}

	runSummary := runsummary.NewRunSummary(
		time.Now(),
		base.UI,
		base.RepoRoot,
		repoPath,
		base.TurboVersion,
		base.APIClient,
		opts.runOpts.toUtilRunOpts(),
		packagesInScope,
		opts.runOpts.envMode,
		globalHashSummary,
		opts.SynthesizeCommand(tasks),
	)

	if opts.runOpts.graphDot || opts.runOpts.graphFile != "" {
		return GraphRun(ctx, rs, engine, base)
	}

	recorder := analytics.NewClient(ctx, analytics.NullSink, base.Logger)
	defer recorder.CloseWithTimeout(50 * time.Millisecond)

	onCacheRemoved := func(cache cache.Cache, err error) {
		base.LogWarning("Remote Caching is unavailable", err)
	}
	turboCache, err := cache.New(opts.cacheOpts, base.RepoRoot, base.APIClient, recorder, onCacheRemoved)
	if err != nil {
		return fmt.Errorf("could not set up caching: %w", err)
	}

	if opts.runOpts.dryRun {
		return DryRun(ctx, g, rs, engine, tracker, turboCache, packagesInScope, base)
	}

	processes := process.NewManager(base.Logger.Named("processes"))
	signalWatcher.AddOnClose(processes.Close)
	defer processes.Close()

	exitCode := 0
	runErr := RealRun(ctx, g, rs, engine, tracker, turboCache, packagesInScope, base, runSummary, g.PackageManager, processes)
	if runErr != nil {
		exitCode = 1
	}

	if closeErr := runSummary.Close(ctx, exitCode, g.WorkspaceInfos); closeErr != nil {
		base.LogWarning("", fmt.Errorf("failed to close run summary: %w", closeErr))
	}

	if runErr != nil {
		return runErr
	}
	return nil
}
