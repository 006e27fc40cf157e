package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed-out"
)

// Terminal reports whether no further polling is required.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusTimedOut
}

// GenerationJob tracks a single request against the prediction service. It
// lives only for the duration of one request.
type GenerationJob struct {
	Prompt        string
	InputImage    []byte
	ExternalJobID string
	StatusURL     string
	Status        JobStatus
	UpstreamState string
	Attempts      int
	OutputURL     string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Validate enforces that exactly one input mode is set.
func (j GenerationJob) Validate() error {
	hasPrompt := j.Prompt != ""
	hasImage := len(j.InputImage) > 0
	switch {
	case hasPrompt && hasImage:
		return Invalid("Provide either a prompt or an image, not both.")
	case !hasPrompt && !hasImage:
		return Invalid("Prompt is required.")
	}
	return nil
}
