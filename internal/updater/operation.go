package updater

import "time"

// Operation statuses.
const (
	OperationRunning = "running"
	OperationSuccess = "success"
	OperationError   = "error"
)

// Operation tracks a command that changed the collection or the
// installation. It has ID 0 until a Store records it.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewOperation creates an in-memory running operation.
func NewOperation(operation, parameters string, startedAt time.Time) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     OperationRunning,
		StartedAt:  startedAt,
	}
}

// Persisted reports whether a Store has recorded the operation.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Finish sets the final status from err.
func (op *Operation) Finish(err error, finishedAt time.Time) {
	op.Status = OperationSuccess
	if err != nil {
		op.Status = OperationError
	}
	op.FinishedAt = finishedAt
}
