package updater

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{name: "with parameters", operation: "mark", parameters: "plugins/Tool.jar update"},
		{name: "empty parameters", operation: "refresh", parameters: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters, started)

			if op.Operation != tt.operation {
				t.Errorf("Operation = %q, want %q", op.Operation, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != OperationRunning {
				t.Errorf("Status = %q, want %q", op.Status, OperationRunning)
			}
			if !op.StartedAt.Equal(started) {
				t.Errorf("StartedAt = %v, want %v", op.StartedAt, started)
			}
			if op.Persisted() {
				t.Error("new operation should not be persisted")
			}
		})
	}
}

func TestOperation_Finish(t *testing.T) {
	finished := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: OperationSuccess},
		{name: "error", err: errors.New("boom"), want: OperationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("apply", "", finished.Add(-time.Minute))
			op.Finish(tt.err, finished)
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
			if !op.FinishedAt.Equal(finished) {
				t.Errorf("FinishedAt = %v, want %v", op.FinishedAt, finished)
			}
		})
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}
