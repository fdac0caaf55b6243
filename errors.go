package admingrid

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPrimaryKey is fatal at grid init: rows cannot be identified.
	ErrMissingPrimaryKey = errors.New("admingrid: primary key column is not defined")
	// ErrStaleResponse marks a page response superseded by a newer request.
	ErrStaleResponse = errors.New("admingrid: stale page response discarded")
	// ErrEmptySelection is returned when a bulk action has nothing to act on.
	ErrEmptySelection = errors.New("admingrid: selection is empty")
	// ErrBulkInProgress is returned when a bulk action is already executing.
	ErrBulkInProgress = errors.New("admingrid: bulk action already in progress")
	// ErrBulkNotRequested is returned by Confirm when no confirmation is open.
	ErrBulkNotRequested = errors.New("admingrid: bulk action was not requested")
)

// RequestFailureError is a network or HTTP failure talking to the data endpoint.
type RequestFailureError struct {
	Op         string // "fetch", "delete" or "lookup"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *RequestFailureError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *RequestFailureError) Unwrap() error { return e.Err }

// CompileGapError reports a filter leaf whose condition has no backend operator.
type CompileGapError struct {
	Column    string
	Condition string
}

func (e *CompileGapError) Error() string {
	return fmt.Sprintf("no backend operator for condition %q on column %q", e.Condition, e.Column)
}

// MissingMetadataError reports a column that is referenced but not described.
type MissingMetadataError struct {
	Column string
	Where  string // "filter", "sort", "render", ...
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("column %q referenced by %s is not in the column table", e.Column, e.Where)
}

// ErrMissingMetadata creates a MissingMetadataError.
func ErrMissingMetadata(where, column string) *MissingMetadataError {
	return &MissingMetadataError{Column: column, Where: where}
}

// ErrRequestFailure creates a RequestFailureError.
func ErrRequestFailure(op string, status int, err error) *RequestFailureError {
	return &RequestFailureError{Op: op, StatusCode: status, Err: err}
}
