package runsummary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/cargoworks/cargo/internal/cache"
)

func TestNewSpacesCacheStatus(t *testing.T) {
	exitCode := 0
	ts := &TaskSummary{
		TaskID:  "my-id",
		Task:    "task",
		Package: "package",
		Hash:    "hash",
		Execution: &TaskExecutionSummary{
			startAt:  time.Now(),
			Duration: 3 * time.Second,
			exitCode: &exitCode,
		},
	}

	status := newSpacesCacheStatus(ts)
	assert.Equal(t, "MISS", status.Status)
	assert.Equal(t, int((3 * time.Second)), status.TimeSaved)
}

func TestNewSpacesTaskPayload(t *testing.T) {
	exitCode := 1
	start := time.Now()
	ts := &TaskSummary{
		TaskID:       "my-pkg#build",
		Task:         "build",
		Package:      "my-pkg",
		Hash:         "somehash",
		Dependencies: []string{"my-pkg#prebuild"},
		Dependents:   []string{},
		CacheState:   cache.ItemStatus{Local: true},
		Execution: &TaskExecutionSummary{
			startAt:  start,
			Duration: 2 * time.Second,
			exitCode: &exitCode,
		},
	}

	payload := newSpacesTaskPayload(ts)
	assert.Equal(t, "my-pkg#build", payload.Key)
	assert.Equal(t, "somehash", payload.Hash)
	assert.Equal(t, &exitCode, payload.ExitCode)
	assert.Equal(t, start.UnixMilli(), payload.StartTime)
	assert.Equal(t, start.Add(2*time.Second).UnixMilli(), payload.EndTime)
	assert.Equal(t, "HIT", payload.Cache.Status)
	assert.Equal(t, "LOCAL", payload.Cache.Source)
}
