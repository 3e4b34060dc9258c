package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/cargoworks/cargo/internal/fs/hash"
	"github.com/cargoworks/cargo/internal/turbopath"
	"github.com/cargoworks/cargo/internal/util"
)

const envPipelineDelimiter = "$"

// RemoteCacheOptions configures how a repo authenticates and scopes its
// calls to the remote cache.
type RemoteCacheOptions struct {
	TeamID    string
	Signature bool
	Preflight bool
}

// TaskOutputs represents the patterns for including and excluding files from
// a task's cacheable outputs, expressed relative to the owning package.
type TaskOutputs struct {
	Inclusions []string
	Exclusions []string
}

// Sort sorts the inclusion and exclusion patterns so they hash deterministically.
func (to *TaskOutputs) Sort() {
	sort.Strings(to.Inclusions)
	sort.Strings(to.Exclusions)
}

// TaskDefinition is the fully-resolved configuration for a single task, after
// merging a package's turbo.json with everything it extends from.
type TaskDefinition struct {
	Outputs TaskOutputs
	// ShouldCache indicates whether the outputs of this task should be cached at all.
	ShouldCache bool
	// TopologicalDependencies are tasks for dependency packages that must run first,
	// e.g. the "build" in "^build".
	TopologicalDependencies []string
	// TaskDependencies are tasks in the same package (or explicit package#task
	// references) that must run first.
	TaskDependencies []string
	Inputs           []string
	OutputMode       util.TaskOutputMode
	Persistent       bool
	Env              []string
	PassThroughEnv   []string
	// PassthroughEnv mirrors PassThroughEnv but is only non-nil when the task
	// explicitly opted into strict env mode; used to infer EnvMode.
	PassthroughEnv []string
	DotEnv         turbopath.AnchoredUnixPathArray
}

// taskDefinitionExperiments holds fields that are not yet part of the stable
// turbo.json schema.
type taskDefinitionExperiments struct {
	PassthroughEnv []string
}

// taskDefinitionHashable is the raw, per-file representation of a task's
// configuration, prior to being merged with its extends-chain.
type taskDefinitionHashable struct {
	Outputs                 hash.TaskOutputs
	Cache                   bool
	TopologicalDependencies []string
	TaskDependencies        []string
	Inputs                  []string
	OutputMode              util.TaskOutputMode
	Persistent              bool
	Env                     []string
	PassThroughEnv          []string
	DotEnv                  turbopath.AnchoredUnixPathArray
}

// BookkeepingTaskDefinition wraps a taskDefinitionHashable together with
// bookkeeping about which fields were actually present in the source JSON, so
// that extends-chain merges can tell "unset" apart from "set to the zero value".
type BookkeepingTaskDefinition struct {
	definedFields      util.Set
	experimentalFields util.Set
	experimental       taskDefinitionExperiments
	TaskDefinition     taskDefinitionHashable
}

// GetTaskDefinition flattens the bookkeeping wrapper into the exported,
// consumer-facing TaskDefinition shape.
func (btd BookkeepingTaskDefinition) GetTaskDefinition() TaskDefinition {
	return TaskDefinition{
		Outputs: TaskOutputs{
			Inclusions: btd.TaskDefinition.Outputs.Inclusions,
			Exclusions: btd.TaskDefinition.Outputs.Exclusions,
		},
		ShouldCache:             btd.TaskDefinition.Cache,
		TopologicalDependencies: btd.TaskDefinition.TopologicalDependencies,
		TaskDependencies:        btd.TaskDefinition.TaskDependencies,
		Inputs:                  btd.TaskDefinition.Inputs,
		OutputMode:              btd.TaskDefinition.OutputMode,
		Persistent:              btd.TaskDefinition.Persistent,
		Env:                     btd.TaskDefinition.Env,
		PassThroughEnv:          btd.TaskDefinition.PassThroughEnv,
		PassthroughEnv:          btd.experimental.PassthroughEnv,
		DotEnv:                  btd.TaskDefinition.DotEnv,
	}
}

// hasField reports whether the given raw turbo.json field name was present
// when this definition was parsed.
func (btd BookkeepingTaskDefinition) hasField(name string) bool {
	return btd.definedFields.Includes(name)
}

// rawTask is the on-disk shape of a single pipeline entry.
type rawTask struct {
	Outputs        *[]string `json:"outputs,omitempty"`
	Cache          *bool     `json:"cache,omitempty"`
	DependsOn      *[]string `json:"dependsOn,omitempty"`
	Inputs         *[]string `json:"inputs,omitempty"`
	OutputMode     *string   `json:"outputMode,omitempty"`
	Persistent     *bool     `json:"persistent,omitempty"`
	Env            *[]string `json:"env,omitempty"`
	PassThroughEnv *[]string `json:"passThroughEnv,omitempty"`
	DotEnv         *[]string `json:"dotEnv,omitempty"`
}

// UnmarshalJSON hydrates a BookkeepingTaskDefinition, recording which fields
// were explicitly present in the source so later extends-chain merges only
// override what was actually configured.
func (btd *BookkeepingTaskDefinition) UnmarshalJSON(data []byte) error {
	var raw rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	defined := util.Set{}
	btd.TaskDefinition.Cache = true
	btd.TaskDefinition.OutputMode = util.FullTaskOutput
	btd.TaskDefinition.TopologicalDependencies = []string{}
	btd.TaskDefinition.TaskDependencies = []string{}
	btd.TaskDefinition.Env = []string{}

	if raw.Outputs != nil {
		defined.Add("Outputs")
		var inclusions, exclusions []string
		for _, output := range *raw.Outputs {
			if strings.HasPrefix(output, "!") {
				exclusions = append(exclusions, strings.TrimPrefix(output, "!"))
			} else {
				inclusions = append(inclusions, output)
			}
		}
		sort.Strings(inclusions)
		sort.Strings(exclusions)
		btd.TaskDefinition.Outputs = hash.TaskOutputs{Inclusions: inclusions, Exclusions: exclusions}
	}

	if raw.Cache != nil {
		defined.Add("Cache")
		btd.TaskDefinition.Cache = *raw.Cache
	}

	if raw.DependsOn != nil {
		defined.Add("DependsOn")
		topo := []string{}
		tasks := []string{}
		for _, dep := range *raw.DependsOn {
			if strings.HasPrefix(dep, "^") {
				topo = append(topo, strings.TrimPrefix(dep, "^"))
			} else {
				tasks = append(tasks, dep)
			}
		}
		sort.Strings(topo)
		sort.Strings(tasks)
		btd.TaskDefinition.TopologicalDependencies = topo
		btd.TaskDefinition.TaskDependencies = tasks
	}

	if raw.Inputs != nil {
		defined.Add("Inputs")
		inputs := append([]string{}, (*raw.Inputs)...)
		sort.Strings(inputs)
		btd.TaskDefinition.Inputs = inputs
	}

	if raw.OutputMode != nil {
		defined.Add("OutputMode")
		if !util.IsValidTaskOutputMode(*raw.OutputMode) {
			return fmt.Errorf("invalid outputMode %q", *raw.OutputMode)
		}
		btd.TaskDefinition.OutputMode = util.TaskOutputMode(*raw.OutputMode)
	}

	if raw.Persistent != nil {
		defined.Add("Persistent")
		btd.TaskDefinition.Persistent = *raw.Persistent
	}

	if raw.Env != nil {
		defined.Add("Env")
		env, err := validateNoEnvPrefix(*raw.Env, "env")
		if err != nil {
			return err
		}
		sort.Strings(env)
		btd.TaskDefinition.Env = env
	}

	if raw.PassThroughEnv != nil {
		defined.Add("PassThroughEnv")
		passThrough, err := validateNoEnvPrefix(*raw.PassThroughEnv, "passThroughEnv")
		if err != nil {
			return err
		}
		sort.Strings(passThrough)
		btd.TaskDefinition.PassThroughEnv = passThrough
	}

	if raw.DotEnv != nil {
		defined.Add("DotEnv")
		dotEnv := make(turbopath.AnchoredUnixPathArray, len(*raw.DotEnv))
		for i, p := range *raw.DotEnv {
			dotEnv[i] = turbopath.AnchoredUnixPath(p)
		}
		sort.Slice(dotEnv, func(i, j int) bool { return dotEnv[i] > dotEnv[j] })
		btd.TaskDefinition.DotEnv = dotEnv
	}

	btd.definedFields = defined
	btd.experimentalFields = util.Set{}
	return nil
}

// MarshalJSON serializes a BookkeepingTaskDefinition back to the modern,
// fully-qualified turbo.json task shape.
func (btd BookkeepingTaskDefinition) MarshalJSON() ([]byte, error) {
	td := btd.TaskDefinition
	outputs := make([]string, 0, len(td.Outputs.Inclusions)+len(td.Outputs.Exclusions))
	outputs = append(outputs, td.Outputs.Inclusions...)
	for _, excl := range td.Outputs.Exclusions {
		outputs = append(outputs, "!"+excl)
	}

	dependsOn := make([]string, 0, len(td.TopologicalDependencies)+len(td.TaskDependencies))
	for _, dep := range td.TopologicalDependencies {
		dependsOn = append(dependsOn, "^"+dep)
	}
	dependsOn = append(dependsOn, td.TaskDependencies...)

	inputs := td.Inputs
	if inputs == nil {
		inputs = []string{}
	}

	var dotEnv interface{}
	if td.DotEnv != nil {
		dotEnv = td.DotEnv
	}
	var passThroughEnv interface{}
	if td.PassThroughEnv != nil {
		passThroughEnv = td.PassThroughEnv
	}

	return json.Marshal(struct {
		Outputs        []string    `json:"outputs"`
		Cache          bool        `json:"cache"`
		DependsOn      []string    `json:"dependsOn"`
		Inputs         []string    `json:"inputs"`
		OutputMode     string      `json:"outputMode"`
		Persistent     bool        `json:"persistent"`
		Env            []string    `json:"env"`
		PassThroughEnv interface{} `json:"passThroughEnv"`
		DotEnv         interface{} `json:"dotEnv"`
	}{
		Outputs:        outputs,
		Cache:          td.Cache,
		DependsOn:      dependsOn,
		Inputs:         inputs,
		OutputMode:     string(td.OutputMode),
		Persistent:     td.Persistent,
		Env:            td.Env,
		PassThroughEnv: passThroughEnv,
		DotEnv:         dotEnv,
	})
}

// Pipeline is the set of task definitions configured in a turbo.json, keyed
// by task name (or, in root turbo.json files, by "pkg#task" when scoped to a
// single workspace).
type Pipeline map[string]BookkeepingTaskDefinition

// GetTask looks up a task definition by its fully-qualified taskID first,
// falling back to the bare task name.
func (p Pipeline) GetTask(taskID string, taskName string) (*BookkeepingTaskDefinition, error) {
	if entry, ok := p[taskID]; ok {
		return &entry, nil
	}
	if entry, ok := p[taskName]; ok {
		return &entry, nil
	}
	return nil, errTaskNotFound
}

// HasTask returns true if the given task or package-task is defined anywhere
// in the pipeline.
func (p Pipeline) HasTask(task string) bool {
	for key := range p {
		if key == task {
			return true
		}
		if util.IsPackageTask(key) {
			if _, taskName := util.GetPackageTaskFromId(key); taskName == task {
				return true
			}
		}
	}
	return false
}

// PristinePipeline is a JSON-friendly rendering of a Pipeline, with the
// bookkeeping fields stripped out. It is used when a pipeline needs to be
// embedded in a run summary.
type PristinePipeline map[string]TaskDefinition

// Pristine strips the bookkeeping metadata from every task definition in the
// pipeline, producing a plain map suitable for JSON serialization.
func (p Pipeline) Pristine() PristinePipeline {
	pristine := make(PristinePipeline, len(p))
	for taskName, btd := range p {
		pristine[taskName] = btd.GetTaskDefinition()
	}
	return pristine
}

var errTaskNotFound = errors.New("task not found in pipeline")

// IsTaskNotFound reports whether err is the "no such task" sentinel returned
// by Pipeline.GetTask.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, errTaskNotFound)
}

// TurboJSON is the parsed representation of a turbo.json configuration file,
// whether read from its own file or from a package.json's legacy "turbo" key.
type TurboJSON struct {
	GlobalDeps           []string
	GlobalEnv            []string
	GlobalPassThroughEnv []string
	GlobalDotEnv         turbopath.AnchoredUnixPathArray
	Pipeline             Pipeline
	RemoteCacheOptions   RemoteCacheOptions
	// Extends lists the workspace names this turbo.json inherits tasks from;
	// only the root package ("//") is currently supported.
	Extends []string
}

// TurboJSONValidation is a function that inspects a TurboJSON and returns any
// problems it finds. Used to compose validation passes at call sites that
// have more context than this package does (e.g. single-vs-multi package mode).
type TurboJSONValidation func(turboJSON *TurboJSON) []error

// Validate runs every given validation against this TurboJSON.
func (tj *TurboJSON) Validate(validations []TurboJSONValidation) []error {
	var errs []error
	for _, validate := range validations {
		errs = append(errs, validate(tj)...)
	}
	return errs
}

type rawTurboJSON struct {
	BaseBranch           string                 `json:"baseBranch,omitempty"`
	GlobalDependencies   []string               `json:"globalDependencies,omitempty"`
	GlobalEnv            []string               `json:"globalEnv,omitempty"`
	GlobalPassThroughEnv []string               `json:"globalPassThroughEnv,omitempty"`
	GlobalDotEnv         []string               `json:"globalDotEnv,omitempty"`
	Pipeline             Pipeline               `json:"pipeline,omitempty"`
	RemoteCacheOptions   *RemoteCacheOptions `json:"remoteCacheOptions,omitempty"`
	Extends              []string            `json:"extends,omitempty"`
}

func validateNoEnvPrefix(envVars []string, key string) ([]string, error) {
	for _, envVar := range envVars {
		if strings.HasPrefix(envVar, envPipelineDelimiter) {
			return nil, fmt.Errorf("turbo.json: You specified %q in the %q key. You should not prefix your environment variables with \"$\"", envVar, key)
		}
	}
	return envVars, nil
}

// UnmarshalJSON decodes a turbo.json (or package.json "turbo" block) payload.
func (tj *TurboJSON) UnmarshalJSON(data []byte) error {
	var raw rawTurboJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	globalEnv, err := validateNoEnvPrefix(raw.GlobalEnv, "globalEnv")
	if err != nil {
		return err
	}
	globalPassThroughEnv, err := validateNoEnvPrefix(raw.GlobalPassThroughEnv, "globalPassThroughEnv")
	if err != nil {
		return err
	}

	sort.Strings(raw.GlobalDependencies)
	sort.Strings(globalEnv)
	if globalPassThroughEnv != nil {
		sort.Strings(globalPassThroughEnv)
	}

	tj.GlobalDeps = raw.GlobalDependencies
	tj.GlobalEnv = globalEnv
	tj.GlobalPassThroughEnv = globalPassThroughEnv
	if raw.GlobalDotEnv != nil {
		dotEnv := make(turbopath.AnchoredUnixPathArray, len(raw.GlobalDotEnv))
		for i, p := range raw.GlobalDotEnv {
			dotEnv[i] = turbopath.AnchoredUnixPath(p)
		}
		sort.Slice(dotEnv, func(i, j int) bool { return dotEnv[i] > dotEnv[j] })
		tj.GlobalDotEnv = dotEnv
	}
	tj.Pipeline = raw.Pipeline
	tj.Extends = raw.Extends
	if raw.RemoteCacheOptions != nil {
		tj.RemoteCacheOptions = *raw.RemoteCacheOptions
	}

	return nil
}

// MarshalJSON serializes a TurboJSON back to the modern turbo.json shape.
func (tj *TurboJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GlobalPassThroughEnv []string                       `json:"globalPassThroughEnv"`
		GlobalDotEnv         turbopath.AnchoredUnixPathArray `json:"globalDotEnv"`
		Pipeline             Pipeline                        `json:"pipeline"`
		RemoteCache          struct {
			Enabled bool `json:"enabled"`
		} `json:"remoteCache"`
	}{
		GlobalPassThroughEnv: tj.GlobalPassThroughEnv,
		GlobalDotEnv:         tj.GlobalDotEnv,
		Pipeline:             tj.Pipeline,
		RemoteCache: struct {
			Enabled bool `json:"enabled"`
		}{Enabled: true},
	})
}

// readTurboConfig reads and parses a turbo.json file from the given path.
func readTurboConfig(path turbopath.AbsoluteSystemPath) (*TurboJSON, error) {
	b, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	turboJSON := &TurboJSON{}
	if err := turboJSON.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return turboJSON, nil
}

// LoadTurboConfig reads the turbo.json file in a workspace's directory. A
// package.json's legacy "turbo" key is not used as a fallback: without a
// turbo.json file it returns an error wrapping os.ErrNotExist.
func LoadTurboConfig(dir turbopath.AbsoluteSystemPath, rootPackageJSON *PackageJSON, isSinglePackage bool) (*TurboJSON, error) {
	turboJSONPath := dir.UntypedJoin("turbo.json")
	if turboJSONPath.FileExists() {
		return readTurboConfig(turboJSONPath)
	}

	return nil, pkgerrors.Wrap(
		os.ErrNotExist,
		"Could not find turbo.json. Follow directions at https://turbo.build/repo/docs to create one",
	)
}

// MergeTaskDefinitions flattens an extends-chain of task definitions (root
// first, most specific last) into a single TaskDefinition, with later
// entries overriding only the fields they explicitly set.
func MergeTaskDefinitions(taskDefinitions []BookkeepingTaskDefinition) (*TaskDefinition, error) {
	if len(taskDefinitions) == 0 {
		return nil, fmt.Errorf("no task definitions provided")
	}

	merged := taskDefinitions[0].GetTaskDefinition()

	for _, btd := range taskDefinitions[1:] {
		if btd.hasField("Outputs") {
			merged.Outputs = TaskOutputs{
				Inclusions: btd.TaskDefinition.Outputs.Inclusions,
				Exclusions: btd.TaskDefinition.Outputs.Exclusions,
			}
		}
		if btd.hasField("Cache") {
			merged.ShouldCache = btd.TaskDefinition.Cache
		}
		if btd.hasField("DependsOn") {
			merged.TopologicalDependencies = btd.TaskDefinition.TopologicalDependencies
			merged.TaskDependencies = btd.TaskDefinition.TaskDependencies
		}
		if btd.hasField("Inputs") {
			merged.Inputs = btd.TaskDefinition.Inputs
		}
		if btd.hasField("OutputMode") {
			merged.OutputMode = btd.TaskDefinition.OutputMode
		}
		if btd.hasField("Persistent") {
			merged.Persistent = btd.TaskDefinition.Persistent
		}
		if btd.hasField("Env") {
			merged.Env = btd.TaskDefinition.Env
		}
		if btd.hasField("PassThroughEnv") {
			merged.PassThroughEnv = btd.TaskDefinition.PassThroughEnv
			merged.PassthroughEnv = btd.TaskDefinition.PassThroughEnv
		}
		if btd.hasField("DotEnv") {
			merged.DotEnv = btd.TaskDefinition.DotEnv
		}
	}

	return &merged, nil
}
