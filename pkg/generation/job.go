package generation

// JobStatus tracks a generation job through its lifecycle.
type JobStatus string

const (
	StatusRequested JobStatus = "requested"
	StatusSubmitted JobStatus = "submitted"
	StatusPolling   JobStatus = "polling"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Features are the musical attributes extracted from a finished artifact.
// Either field is "N/A" when extraction was unavailable or failed.
type Features struct {
	Tempo string `json:"bpm"`
	Key   string `json:"key"`
}

// UnknownFeatures is the placeholder used when extraction cannot run.
func UnknownFeatures() Features {
	return Features{Tempo: "N/A", Key: "N/A"}
}

// Result is the outcome of a successful generation job.
type Result struct {
	OperationID string
	ArtifactURL string
	Features    Features
	DisplayName string
	Prompt      string
}
