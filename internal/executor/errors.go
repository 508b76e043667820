package executor

import (
	"context"
	"errors"

	"github.com/kubilitics/hqee/pkg/types"
)

// ToolError lets a tool classify its own failure into the stable error
// taxonomy instead of falling back to the executor's generic classification.
type ToolError struct {
	Category string
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError wraps err with an explicit taxonomy category.
func NewToolError(category string, err error) *ToolError {
	return &ToolError{Category: category, Err: err}
}

// classify maps any error returned by a tool invocation (or the pool itself)
// to one of the stable taxonomy categories.
func classify(err error) string {
	if err == nil {
		return ""
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te.Category
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrExecutionTimeout
	case errors.Is(err, context.Canceled):
		return types.ErrExecutionInterrupted
	case errors.Is(err, errQueueRejected):
		return types.ErrResourceExhaustion
	default:
		return types.ErrExecutionError
	}
}

// nonRetryableCategories mirrors the spec's retry exclusion list: an
// exception is retryable iff it is not one of these.
var nonRetryableCategories = map[string]bool{
	types.ErrInvalidParameters:    true,
	types.ErrResourceExhaustion:   true,
	types.ErrExecutionInterrupted: true,
	types.ErrExecutionTimeout:     true,
	types.ErrSystemOverloaded:     true,
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !nonRetryableCategories[classify(err)]
}
