package mothr

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusUnsubmitted means the request has not been sent to MOTHR yet.
	// It is the only status with no job ID attached.
	StatusUnsubmitted Status = "unsubmitted"
	// StatusSubmitted means MOTHR accepted the job and queued it.
	StatusSubmitted Status = "submitted"
	// StatusRunning means a worker is currently executing the job.
	StatusRunning Status = "running"
	// StatusComplete means the job finished successfully.
	StatusComplete Status = "complete"
	// StatusFailed means the job finished with an error.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status will not change again.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ParameterType classifies a job parameter.
type ParameterType string

const (
	// ParameterPlain is an ordinary positional parameter or flag value.
	ParameterPlain ParameterType = "parameter"
	// ParameterInput is an S3 URI the service downloads before running.
	ParameterInput ParameterType = "input"
	// ParameterOutput is an S3 URI the service uploads after running.
	ParameterOutput ParameterType = "output"
)

// Parameter is a single positional parameter of a job request. Order is
// significant: parameters reach the service in the order they were added.
type Parameter struct {
	Type  ParameterType `json:"type"`
	Value string        `json:"value"`
	Name  string        `json:"name,omitempty"`
}

// MetadataEntry is the wire form of one output-metadata key/value pair.
// The submit mutation expects a sequence of pairs, not a mapping.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// JobResult is the full job record fetched after (or during) execution.
type JobResult struct {
	JobID   string `json:"jobId"`
	Service string `json:"service"`
	Status  Status `json:"status"`
	Result  string `json:"result"`
	Error   string `json:"error"`
}
