package execution

import (
	"errors"
	"fmt"
)

// ErrWorkflowNotExecutable indicates the workflow exists but is not in an
// executable status.
var ErrWorkflowNotExecutable = errors.New("workflow is not executable")

// ExecutorError wraps a failure raised by a node's executor. It aborts the
// run; the message and stack are persisted verbatim on the execution record.
type ExecutorError struct {
	NodeID   string
	NodeType string
	Err      error
	Stack    string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// SchedulingError wraps a failure to compute or persist a schedule's next
// occurrence. The schedule chain logs it and continues on a best-effort basis.
type SchedulingError struct {
	ScheduleID string
	Err        error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.ScheduleID, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
