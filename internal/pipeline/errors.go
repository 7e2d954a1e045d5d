package pipeline

import (
	"fmt"
	"time"
)

// SaveAbortError is returned when a batch save run is cancelled. It carries
// the tally accumulated before the abort so the caller can report partial
// progress instead of a bare failure.
type SaveAbortError struct {
	Saved     int
	Failed    int
	Processed int
	Err       error
}

func (e *SaveAbortError) Error() string {
	return fmt.Sprintf("batch save aborted after %d items (%d saved, %d failed): %v",
		e.Processed, e.Saved, e.Failed, e.Err)
}

func (e *SaveAbortError) Unwrap() error { return e.Err }

// ExtractTimeoutError is returned when the extraction deadline passed before
// all items settled. CompletedBeforeTimeout is the number of items that had
// settled at the moment the deadline fired.
type ExtractTimeoutError struct {
	CompletedBeforeTimeout int
	Total                  int
	Timeout                time.Duration
}

func (e *ExtractTimeoutError) Error() string {
	return fmt.Sprintf("extraction timed out after %v with %d/%d items completed",
		e.Timeout, e.CompletedBeforeTimeout, e.Total)
}

// ExtractCancelError is returned when the caller cancelled an extraction run.
type ExtractCancelError struct {
	Completed int
	Total     int
	Err       error
}

func (e *ExtractCancelError) Error() string {
	return fmt.Sprintf("extraction cancelled with %d/%d items completed: %v",
		e.Completed, e.Total, e.Err)
}

func (e *ExtractCancelError) Unwrap() error { return e.Err }
