package run

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/cargoworks/cargo/internal/env"
	"github.com/cargoworks/cargo/internal/fs"
	"github.com/cargoworks/cargo/internal/globby"
	"github.com/cargoworks/cargo/internal/hashing"
	"github.com/cargoworks/cargo/internal/lockfile"
	"github.com/cargoworks/cargo/internal/packagemanager"
	"github.com/cargoworks/cargo/internal/turbopath"
	"github.com/cargoworks/cargo/internal/util"
)

const _globalCacheKey = "Buffalo buffalo Buffalo buffalo buffalo buffalo Buffalo buffalo"

// Variables that we always include
var _defaultEnvVars = []string{
	"VERCEL_ANALYTICS_ID",
}

// calculateGlobalHash hashes the set of inputs that, if changed, should invalidate
// every task's cache: global file dependencies, global env vars, and the pipeline
// definition itself. It also returns the file-hash map, since runsummary needs it
// verbatim to render a global hash summary.
func calculateGlobalHash(rootpath turbopath.AbsoluteSystemPath, rootPackageJSON *fs.PackageJSON, pipeline fs.Pipeline, globalHashableEnvVars env.DetailedMap, globalFileDependencies []string, packageManager *packagemanager.PackageManager, lockFile lockfile.Lockfile, logger hclog.Logger) (string, map[turbopath.AnchoredUnixPath]string, error) {
	globalHashableEnvPairs := globalHashableEnvVars.All.ToHashable()
	sort.Strings(globalHashableEnvPairs)
	logger.Debug("global hash env vars", "vars", globalHashableEnvVars.All.Names())

	// Calculate global file dependencies
	globalDeps := make(util.Set)
	if len(globalFileDependencies) > 0 {
		ignores, err := packageManager.GetWorkspaceIgnores(rootpath)
		if err != nil {
			return "", nil, err
		}

		f := globby.GlobFiles(rootpath.ToStringDuringMigration(), globalFileDependencies, ignores)

		for _, val := range f {
			globalDeps.Add(val)
		}
	}

	if lockFile == nil {
		// If we don't have lockfile information available, add the specfile and lockfile to global deps
		globalDeps.Add(filepath.Join(rootpath.ToStringDuringMigration(), packageManager.Specfile))
		globalDeps.Add(filepath.Join(rootpath.ToStringDuringMigration(), packageManager.Lockfile))
	}

	// No prefix, global deps already have full paths
	globalDepsArray := globalDeps.UnsafeListOfStrings()
	globalDepsPaths := make([]turbopath.AnchoredSystemPath, 0, len(globalDepsArray))
	for _, path := range globalDepsArray {
		absolutePath := turbopath.AbsoluteSystemPathFromUpstream(path)
		anchoredPath, err := absolutePath.RelativeTo(rootpath)
		if err != nil {
			return "", nil, fmt.Errorf("error relativizing global dependency %v: %w", path, err)
		}
		globalDepsPaths = append(globalDepsPaths, anchoredPath)
	}

	globalFileHashMap, err := hashing.GetHashesForFiles(rootpath, globalDepsPaths)
	if err != nil {
		return "", nil, fmt.Errorf("error hashing files: %w", err)
	}
	globalHashable := struct {
		globalFileHashMap    map[turbopath.AnchoredUnixPath]string
		rootExternalDepsHash string
		hashedSortedEnvPairs []string
		globalCacheKey       string
		pipeline             fs.Pipeline
	}{
		globalFileHashMap:    globalFileHashMap,
		rootExternalDepsHash: rootPackageJSON.ExternalDepsHash,
		hashedSortedEnvPairs: globalHashableEnvPairs,
		globalCacheKey:       _globalCacheKey,
		pipeline:             pipeline,
	}
	globalHash, err := fs.HashObject(globalHashable)
	if err != nil {
		return "", nil, fmt.Errorf("error hashing global dependencies %w", err)
	}
	return globalHash, globalFileHashMap, nil
}
