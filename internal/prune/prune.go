// Package prune implements `turbo prune`
package prune

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/spf13/cobra"

	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/fs"
	"github.com/cargoworks/cargo/internal/graph"
	"github.com/cargoworks/cargo/internal/lockfile"
	"github.com/cargoworks/cargo/internal/turbopath"
	"github.com/cargoworks/cargo/internal/ui"
	"github.com/cargoworks/cargo/internal/util"
)

type opts struct {
	scope  string
	docker bool
}

// GetCmd returns the cobra command for `turbo prune`
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	opts := &opts{}

	cmd := &cobra.Command{
		Use:                   "prune --scope=<package name> [<flags>]",
		Short:                 "Prepare a subset of your monorepo",
		Long:                  "Prepare a subset of your monorepo for deployment, containing only the dependency graph required to build the given scope.",
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			if err := prune(base, opts); err != nil {
				base.LogError("%v", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.scope, "scope", "", "Specify package to act as entry point for pruned monorepo.")
	flags.BoolVarP(&opts.docker, "docker", "d", false, "Output pruned workspace into 'full' and 'json' directories optimized for Docker layer caching.")
	if err := cmd.MarkFlagRequired("scope"); err != nil {
		panic(err)
	}

	return cmd
}

// outDirs are the filesystem locations a pruned monorepo is written to, either
// a single flat directory or the full/json split used by Docker layer caching.
type outDirs struct {
	root turbopath.AbsoluteSystemPath
	full turbopath.AbsoluteSystemPath
	json turbopath.AbsoluteSystemPath
}

func resolveOutDirs(repoRoot turbopath.AbsoluteSystemPath, docker bool) outDirs {
	root := repoRoot.UntypedJoin("out")
	if !docker {
		return outDirs{root: root, full: root, json: root}
	}
	return outDirs{root: root, full: root.UntypedJoin("full"), json: root.UntypedJoin("json")}
}

func prune(base *cmdutil.CmdBase, opts *opts) error {
	g, err := graph.BuildCompleteGraph(base.RepoRoot, false, base.Logger)
	if err != nil {
		return fmt.Errorf("could not construct graph: %w", err)
	}

	target, ok := g.WorkspaceInfos.PackageJSONs[opts.scope]
	if !ok {
		return fmt.Errorf("no package found with name '%s' in workspace", opts.scope)
	}

	if ok, err := g.PackageManager.CanPrune(base.RepoRoot); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("this command is not yet implemented for %s", g.PackageManager.Name)
	}

	dirs := resolveOutDirs(base.RepoRoot, opts.docker)

	base.Logger.Trace("scope", "value", opts.scope)
	base.Logger.Trace("docker", "value", opts.docker)
	base.Logger.Trace("out dir", "value", dirs.root.ToString())

	base.UI.Output(fmt.Sprintf("Generating pruned monorepo for %s in %s", ui.Bold(opts.scope), ui.Bold(dirs.root.ToString())))

	ancestors, err := g.WorkspaceGraph.Ancestors(opts.scope)
	if err != nil {
		return fmt.Errorf("failed to traverse the dependency graph to find topological dependencies: %w", err)
	}

	workspaceNames := mapset.NewSet()
	workspaceNames.Add(opts.scope)
	for dep := range ancestors {
		if dep == g.RootNode || dep == util.RootPkgName {
			continue
		}
		workspaceNames.Add(dep)
	}

	keptWorkspaces := make([]string, 0, workspaceNames.Cardinality())
	for _, name := range workspaceNames.ToSlice() {
		keptWorkspaces = append(keptWorkspaces, name.(string))
	}
	sort.Strings(keptWorkspaces)

	resolvedPackages := mapset.NewSet()
	workspacePaths := make([]turbopath.AnchoredSystemPath, 0, len(keptWorkspaces))
	for _, name := range keptWorkspaces {
		pkg, ok := g.WorkspaceInfos.PackageJSONs[name]
		if !ok {
			continue
		}
		workspacePaths = append(workspacePaths, pkg.Dir)

		if !lockfile.IsNil(g.Lockfile) {
			closure, err := lockfile.TransitiveClosure(pkg.Dir.ToUnixPath(), pkg.UnresolvedExternalDeps, g.Lockfile)
			if err != nil {
				return fmt.Errorf("failed to resolve dependencies for %s: %w", name, err)
			}
			resolvedPackages = resolvedPackages.Union(closure)
		}

		targetDir := dirs.full.UntypedJoin(pkg.Dir.ToString())
		if err := targetDir.MkdirAll(fs.DirPermissions); err != nil {
			return fmt.Errorf("failed to create folder %s for %s: %w", targetDir, name, err)
		}
		if err := fs.RecursiveCopy(pkg.Dir.RestoreAnchor(base.RepoRoot), targetDir); err != nil {
			return fmt.Errorf("failed to copy %s into %s: %w", name, targetDir, err)
		}

		if opts.docker {
			jsonDir := dirs.json.UntypedJoin(pkg.PackageJSONPath.ToString())
			if err := jsonDir.Dir().MkdirAll(fs.DirPermissions); err != nil {
				return fmt.Errorf("failed to create folder %s for %s: %w", jsonDir, name, err)
			}
			if err := fs.CopyFile(&fs.LstatCachedFile{Path: pkg.PackageJSONPath.RestoreAnchor(base.RepoRoot)}, jsonDir.ToString()); err != nil {
				return fmt.Errorf("failed to copy %s into %s: %w", name, jsonDir, err)
			}
		}

		base.UI.Output(fmt.Sprintf(" - Added %s", name))
	}

	gitignore := base.RepoRoot.UntypedJoin(".gitignore")
	if gitignore.FileExists() {
		if err := fs.CopyFile(&fs.LstatCachedFile{Path: gitignore}, dirs.full.UntypedJoin(".gitignore").ToString()); err != nil {
			return fmt.Errorf("failed to copy root .gitignore: %w", err)
		}
	}

	rootPkgJSONPath := base.RepoRoot.UntypedJoin("package.json")
	rootPkgJSON, err := fs.ReadPackageJSON(rootPkgJSONPath)
	if err != nil {
		return fmt.Errorf("failed to read root package.json: %w", err)
	}

	var lockfilePatches []turbopath.AnchoredUnixPath
	if !lockfile.IsNil(g.Lockfile) {
		lockfilePatches = g.Lockfile.Patches()
	}
	if err := g.PackageManager.PrunePatches(rootPkgJSON, lockfilePatches); err != nil {
		return fmt.Errorf("failed to prune unused patches from root package.json: %w", err)
	}

	rootPkgJSONBytes, err := fs.MarshalPackageJSON(rootPkgJSON)
	if err != nil {
		return fmt.Errorf("failed to marshal root package.json: %w", err)
	}
	if err := dirs.full.UntypedJoin("package.json").WriteFile(rootPkgJSONBytes, 0644); err != nil {
		return fmt.Errorf("failed to write root package.json: %w", err)
	}
	if opts.docker {
		if err := dirs.json.UntypedJoin("package.json").WriteFile(rootPkgJSONBytes, 0644); err != nil {
			return fmt.Errorf("failed to write root package.json: %w", err)
		}
	}

	if lockfile.IsNil(g.Lockfile) {
		base.LogWarning("", fmt.Errorf("no lockfile available, skipping lockfile pruning for %s", target.Name))
		return nil
	}

	packageKeys := make([]string, 0, resolvedPackages.Cardinality())
	for untyped := range resolvedPackages.Iter() {
		pkg, ok := untyped.(lockfile.Package)
		if !ok {
			continue
		}
		packageKeys = append(packageKeys, pkg.Key)
	}
	sort.Strings(packageKeys)

	prunedLockfile, err := g.Lockfile.Subgraph(workspacePaths, packageKeys)
	if err != nil {
		return fmt.Errorf("failed to prune lockfile: %w", err)
	}

	lockfileName := g.PackageManager.Lockfile
	outLockfile, err := dirs.full.UntypedJoin(lockfileName).Create()
	if err != nil {
		return fmt.Errorf("failed to create pruned lockfile: %w", err)
	}
	defer outLockfile.Close()
	if err := prunedLockfile.Encode(outLockfile); err != nil {
		return fmt.Errorf("failed to write pruned lockfile: %w", err)
	}

	return nil
}
