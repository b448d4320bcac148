package mothr

import (
	"errors"
	"fmt"
)

var (
	// Credential and authentication errors.
	ErrMissingCredentials = errors.New("mothr: username or password not provided")
	ErrLoginFailed        = errors.New("mothr: login failed")
	ErrTokenRefresh       = errors.New("mothr: token refresh failed")

	// Job lifecycle errors.
	ErrSubmit       = errors.New("mothr: job submission failed")
	ErrNotSubmitted = errors.New("mothr: job not submitted")
)

// FieldError reports a field path that could not be resolved against the
// schema. Path is the full dotted path as requested; Segment is the
// component that failed.
type FieldError struct {
	Type    string // root or intermediate type the segment was resolved against
	Path    string
	Segment string
	Reason  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("mothr: cannot resolve field %q: segment %q on type %s: %s",
		e.Path, e.Segment, e.Type, e.Reason)
}

// JobError reports a job that reached a terminal status other than complete.
type JobError struct {
	JobID   string
	Status  Status
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mothr: job %s finished with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("mothr: job %s failed: %s", e.JobID, e.Message)
}
