package pipeline

import "fmt"

// ErrorKind classifies a stage failure for counting and for deciding whether
// the run continues. Only store write failures abort a run; everything else
// degrades the affected record and moves on.
type ErrorKind string

const (
	KindRejectedInput       ErrorKind = "rejected_input"
	KindResolutionMiss      ErrorKind = "resolution_miss"
	KindProviderThrottled   ErrorKind = "provider_throttled"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindStoreWriteFailure   ErrorKind = "store_write_failure"
)

// StageError wraps a failure with the stage and record it belongs to, so a
// single log line identifies what broke and for which title.
type StageError struct {
	Stage string
	Title string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %q: %v", e.Stage, e.Kind, e.Title, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, kind ErrorKind, title string, err error) *StageError {
	return &StageError{Stage: stage, Title: title, Kind: kind, Err: err}
}
