package logging

import (
	"fmt"
	"strings"
)

// OperationError annotates an error with the pipeline stage, the method
// (backend) in use and the request it belongs to.
type OperationError struct {
	Operation string
	Method    string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var tags []string
	if e.Method != "" {
		tags = append(tags, "method="+e.Method)
	}
	if e.RequestID != "" {
		tags = append(tags, "request_id="+e.RequestID)
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(tags, " "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the stage and request identifiers. It
// returns nil for a nil err so call sites can wrap unconditionally.
func NewOperationError(operation, requestID string, err error) error {
	return NewMethodError(operation, "", requestID, err)
}

// NewMethodError is NewOperationError for failures tied to a specific method.
func NewMethodError(operation, method, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Method: method, RequestID: requestID, Err: err}
}
