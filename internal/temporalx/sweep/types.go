package sweep

import "time"

const (
	WorkflowName        = "due_sweep"
	ActivityRunDueSweep = "due_sweep_run"
	// WorkflowIDPrefix names the executions the schedule starts.
	WorkflowIDPrefix = "due-sweep"
)

// Input pins the sweep to the workflow's clock so activity retries query
// the same due window.
type Input struct {
	Now time.Time `json:"now"`
}
