package runsummary

import (
	"encoding/json"
	"time"
)

// TaskExecutionSummary contains data about the execution of a single task.
type TaskExecutionSummary struct {
	startAt  time.Time     // set once task begins
	Duration time.Duration `json:"duration"`
	Label    string        `json:"-"` // key, don't need to print it
	Status   string        `json:"status"`
	Err      error         `json:"error,omitempty"`
	exitCode *int          // pointer so we can distinguish between "0" and unset
}

// endTime returns the time the task finished, derived from startAt + Duration.
func (ts *TaskExecutionSummary) endTime() time.Time {
	if ts.Duration == 0 {
		return ts.startAt
	}
	return ts.startAt.Add(ts.Duration)
}

// taskExecutionSummaryMarshaled is the marshaled form of TaskExecutionSummary, with
// unexported fields promoted to stable JSON keys.
type taskExecutionSummaryMarshaled struct {
	Start    int64         `json:"start"`
	Duration time.Duration `json:"duration"`
	End      int64         `json:"end"`
	ExitCode *int          `json:"exitCode,omitempty"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// MarshalJSON exposes the unexported startAt/exitCode fields under stable JSON keys.
func (ts *TaskExecutionSummary) MarshalJSON() ([]byte, error) {
	errStr := ""
	if ts.Err != nil {
		errStr = ts.Err.Error()
	}
	return json.Marshal(&taskExecutionSummaryMarshaled{
		Start:    ts.startAt.UnixMilli(),
		Duration: ts.Duration,
		End:      ts.endTime().UnixMilli(),
		ExitCode: ts.exitCode,
		Status:   ts.Status,
		Error:    errStr,
	})
}
