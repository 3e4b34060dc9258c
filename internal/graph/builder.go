package graph

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/pyr-sh/dag"
	"github.com/cargoworks/cargo/internal/fs"
	"github.com/cargoworks/cargo/internal/lockfile"
	"github.com/cargoworks/cargo/internal/packagemanager"
	"github.com/cargoworks/cargo/internal/turbopath"
	"github.com/cargoworks/cargo/internal/util"
	"github.com/cargoworks/cargo/internal/workspace"
)

// rootNodeName mirrors core.ROOT_NODE_NAME. It can't be imported directly:
// core already imports graph, so the reverse import would cycle.
const rootNodeName = "___ROOT___"

// BuildCompleteGraph discovers the monorepo rooted at repoRoot from the
// filesystem: it detects the package manager, enumerates workspace packages
// (or treats repoRoot as the sole package in single-package mode), wires up
// the internal dependency graph, and loads the lockfile if one is present.
//
// The returned graph's TaskDefinitions and TaskHashTracker are left zero;
// those are populated later, by core.Engine and by the run-specific global
// hash computation respectively, once the execution scope is known.
func BuildCompleteGraph(repoRoot turbopath.AbsoluteSystemPath, isSinglePackage bool, logger hclog.Logger) (*CompleteGraph, error) {
	rootPackageJSONPath := repoRoot.UntypedJoin("package.json")
	rootPackageJSON, err := fs.ReadPackageJSON(rootPackageJSONPath)
	if err != nil {
		return nil, fmt.Errorf("package.json: %w", err)
	}
	rootPackageJSON.Name = util.RootPkgName
	rootPackageJSON.Dir = turbopath.AnchoredSystemPath("")
	rootPackageJSON.PackageJSONPath = turbopath.AnchoredSystemPath("package.json")

	packageJSONs := map[string]*fs.PackageJSON{
		util.RootPkgName: rootPackageJSON,
	}

	workspaceGraph := dag.AcyclicGraph{}
	workspaceGraph.Add(util.RootPkgName)

	packageManager, err := packagemanager.GetPackageManager(repoRoot, rootPackageJSON)
	if err != nil {
		return nil, err
	}

	if isSinglePackage {
		rootPackageJSON.UnresolvedExternalDeps = collectDependencies(rootPackageJSON)
	} else {
		packageJSONPaths, err := packageManager.GetWorkspaces(repoRoot)
		if err != nil {
			return nil, fmt.Errorf("could not resolve workspaces: %w", err)
		}

		for _, rawPath := range packageJSONPaths {
			pkgJSONPath := turbopath.AbsoluteSystemPathFromUpstream(rawPath)
			pkgJSON, err := fs.ReadPackageJSON(pkgJSONPath)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rawPath, err)
			}
			if pkgJSON.Name == "" || pkgJSON.Name == util.RootPkgName {
				logger.Warn("skipping workspace with missing or reserved name", "path", rawPath)
				continue
			}
			if _, ok := packageJSONs[pkgJSON.Name]; ok {
				return nil, fmt.Errorf("duplicate workspace package name %q", pkgJSON.Name)
			}

			anchoredPackageJSONPath, err := pkgJSONPath.RelativeTo(repoRoot)
			if err != nil {
				return nil, err
			}
			pkgJSON.PackageJSONPath = anchoredPackageJSONPath
			pkgJSON.Dir = turbopath.AnchoredSystemPath(filepath.Dir(anchoredPackageJSONPath.ToString()))

			packageJSONs[pkgJSON.Name] = pkgJSON
			workspaceGraph.Add(pkgJSON.Name)
		}

		for _, pkgJSON := range packageJSONs {
			if pkgJSON.Name == util.RootPkgName {
				continue
			}
			populateInternalDeps(pkgJSON, packageJSONs, &workspaceGraph)
		}
	}

	var lockFile lockfile.Lockfile
	if packageManager != nil {
		lockfilePath := repoRoot.UntypedJoin(packageManager.Lockfile)
		if lockfilePath.FileExists() {
			contents, err := lockfilePath.ReadFile()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", packageManager.Lockfile, err)
			}
			lockFile, err = packageManager.UnmarshalLockfile(rootPackageJSON, contents)
			if err != nil {
				return nil, fmt.Errorf("could not parse %s: %w", packageManager.Lockfile, err)
			}
		}
	}

	return &CompleteGraph{
		WorkspaceGraph: workspaceGraph,
		RootNode:       rootNodeName,
		RepoRoot:       repoRoot,
		WorkspaceInfos: workspace.Catalog{
			PackageJSONs: packageJSONs,
			TurboConfigs: map[string]*fs.TurboJSON{},
		},
		TaskDefinitions: map[string]*fs.TaskDefinition{},
		PackageManager:  packageManager,
		Lockfile:        lockFile,
	}, nil
}

// collectDependencies flattens a package.json's four dependency maps into a
// single unresolved-external-deps map, used for single-package repos where
// there is no internal/external split to make.
func collectDependencies(pkgJSON *fs.PackageJSON) map[string]string {
	deps := map[string]string{}
	for dep, version := range pkgJSON.Dependencies {
		deps[dep] = version
	}
	for dep, version := range pkgJSON.DevDependencies {
		deps[dep] = version
	}
	for dep, version := range pkgJSON.OptionalDependencies {
		deps[dep] = version
	}
	for dep, version := range pkgJSON.PeerDependencies {
		deps[dep] = version
	}
	return deps
}

// populateInternalDeps splits pkgJSON's dependencies into internal workspace
// references (wired into workspaceGraph as edges) and unresolved external
// deps (left for the lockfile to resolve), matching the teacher's
// populateTopologicGraphForPackageJson.
func populateInternalDeps(pkgJSON *fs.PackageJSON, packageJSONs map[string]*fs.PackageJSON, workspaceGraph *dag.AcyclicGraph) {
	allDeps := collectDependencies(pkgJSON)

	internalDeps := []string{}
	unresolvedExternalDeps := map[string]string{}
	for dep, version := range allDeps {
		if _, isInternal := packageJSONs[dep]; isInternal && dep != pkgJSON.Name {
			internalDeps = append(internalDeps, dep)
			workspaceGraph.Connect(dag.BasicEdge(pkgJSON.Name, dep))
		} else {
			unresolvedExternalDeps[dep] = version
		}
	}

	sort.Strings(internalDeps)
	pkgJSON.InternalDeps = internalDeps
	pkgJSON.UnresolvedExternalDeps = unresolvedExternalDeps
}
