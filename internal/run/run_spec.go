// Package run implements `turbo run`
// This file implements some structs for options
package run

import (
	"fmt"
	"strings"

	"github.com/cargoworks/cargo/internal/cache"
	"github.com/cargoworks/cargo/internal/client"
	"github.com/cargoworks/cargo/internal/runcache"
	"github.com/cargoworks/cargo/internal/scope"
	"github.com/cargoworks/cargo/internal/util"
)

// runOpts holds the options that control the execution of a turbo run.
// Unlike util.RunOpts (which is a trimmed-down, serializable snapshot used by
// runsummary), this struct backs the cobra flags directly.
type runOpts struct {
	// dotGraph, when non-empty, is the filename to emit a visualization to
	dotGraph string
	// Force execution to be serially one-at-a-time
	concurrency int
	// Whether to execute in parallel (defaults to false)
	parallel bool
	// Whether to emit a perf profile
	profile string
	// If true, continue task executions even if a task fails.
	continueOnError bool
	passThroughArgs []string
	// Restrict execution to only the listed task names. Default false
	only bool
	// Dry run flags
	dryRun     bool
	dryRunJSON bool
	// Graph flags
	graphDot      bool
	graphFile     string
	noDaemon      bool
	singlePackage bool
	// logPrefix controls whether we should print a prefix in task logs
	logPrefix string
	// Whether turbo should create a run summary
	summarize bool

	experimentalSpaceID string

	// envMode controls how the environment is sanitized before being passed to task child processes
	envMode util.EnvMode
}

// toUtilRunOpts produces the trimmed-down, serializable snapshot that runsummary expects.
func (ro runOpts) toUtilRunOpts() util.RunOpts {
	return util.RunOpts{
		Concurrency:          ro.concurrency,
		Parallel:             ro.parallel,
		Profile:              ro.profile,
		ContinueOnError:      ro.continueOnError,
		PassThroughArgs:      ro.passThroughArgs,
		Only:                 ro.only,
		DryRun:               ro.dryRun,
		DryRunJSON:           ro.dryRunJSON,
		GraphDot:             ro.graphDot,
		GraphFile:            ro.graphFile,
		NoDaemon:             ro.noDaemon,
		SinglePackage:        ro.singlePackage,
		LogPrefix:            ro.logPrefix,
		Summarize:            ro.summarize,
		ExperimentalSpaceID:  ro.experimentalSpaceID,
		EnvMode:              ro.envMode,
	}
}

// runSpec contains the run-specific configuration elements that come from a particular
// invocation of turbo.
type runSpec struct {
	// Target is a list of task that are going to run this time
	// E.g. in `turbo run build lint` Targets will be ["build", "lint"]
	Targets []string

	// FilteredPkgs is the list of packages that are relevant for this run.
	FilteredPkgs util.Set

	// Opts contains various opts, gathered from CLI flags,
	// but bucketed in smaller structs based on what they mean.
	Opts *Opts
}

// ArgsForTask returns the set of args that need to be passed through to the task
func (rs *runSpec) ArgsForTask(task string) []string {
	passThroughArgs := make([]string, 0, len(rs.Opts.runOpts.passThroughArgs))
	for _, target := range rs.Targets {
		if target == task {
			passThroughArgs = append(passThroughArgs, rs.Opts.runOpts.passThroughArgs...)
		}
	}
	return passThroughArgs
}

// Opts holds the current run operations configuration
type Opts struct {
	runOpts      runOpts
	cacheOpts    cache.Opts
	clientOpts   client.Opts
	runcacheOpts runcache.Opts
	scopeOpts    scope.Opts
}

// SynthesizeCommand produces a human-readable "turbo run ..." invocation equivalent to the
// given Opts and task list. It is used to label run summaries and dry runs.
func (o *Opts) SynthesizeCommand(tasks []string) string {
	cmd := []string{"turbo", "run"}
	cmd = append(cmd, tasks...)

	filterPatterns := append([]string{}, o.scopeOpts.FilterPatterns...)
	filterPatterns = append(filterPatterns, o.scopeOpts.LegacyFilter.AsFilterPatterns()...)
	for _, pattern := range filterPatterns {
		cmd = append(cmd, fmt.Sprintf("--filter=%s", pattern))
	}

	if o.runOpts.parallel {
		cmd = append(cmd, "--parallel")
	}
	if o.runOpts.continueOnError {
		cmd = append(cmd, "--continue")
	}
	if o.runOpts.dryRun {
		if o.runOpts.dryRunJSON {
			cmd = append(cmd, "--dry=json")
		} else {
			cmd = append(cmd, "--dry")
		}
	}

	if len(o.runOpts.passThroughArgs) > 0 {
		cmd = append(cmd, "--")
		cmd = append(cmd, o.runOpts.passThroughArgs...)
	}

	return strings.Join(cmd, " ")
}

// getDefaultOptions returns the default set of Opts for every run
func getDefaultOptions() *Opts {
	return &Opts{
		runOpts: runOpts{
			concurrency: 10,
			envMode:     util.Infer,
		},
		clientOpts: client.Opts{
			Timeout: client.ClientTimeout,
		},
	}
}
