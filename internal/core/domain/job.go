package domain

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed
}

// ExtractionJob is the message handed to the background substrate.
type ExtractionJob struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	RunSeq     int64     `json:"run_seq"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobDelivery is one delivery attempt of a job; Attempt starts at 1.
type JobDelivery struct {
	Job         ExtractionJob
	Attempt     int
	MaxAttempts int
}

func (d JobDelivery) Final() bool {
	return d.Attempt >= d.MaxAttempts
}

// JobState is what the substrate retains about a background job.
type JobState struct {
	JobID      string            `json:"job_id"`
	DocumentID string            `json:"document_id"`
	RunSeq     int64             `json:"run_seq"`
	Status     JobStatus         `json:"status"`
	Attempt    int               `json:"attempt"`
	Error      string            `json:"error,omitempty"`
	Report     *ExtractionReport `json:"report,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type DispatchResult struct {
	DocumentID          string            `json:"document_id"`
	Status              JobStatus         `json:"status"`
	Mode                ProcessingMode    `json:"processing_type"`
	JobID               string            `json:"job_id,omitempty"`
	RunSeq              int64             `json:"run_seq"`
	Report              *ExtractionReport `json:"result,omitempty"`
	Error               *ErrorDetail      `json:"error,omitempty"`
	EstimatedCompletion *time.Time        `json:"estimated_completion,omitempty"`
}

type ProcessingStatus struct {
	DocumentID string            `json:"document_id"`
	Status     DocumentStatus    `json:"status"`
	Mode       ProcessingMode    `json:"processing_type,omitempty"`
	JobID      string            `json:"job_id,omitempty"`
	JobStatus  JobStatus         `json:"job_status,omitempty"`
	Attempt    int               `json:"attempt,omitempty"`
	Report     *ExtractionReport `json:"extracted_data,omitempty"`
	Error      *ErrorDetail      `json:"error,omitempty"`
}

type ProcessingHealth struct {
	QueueConnected bool                   `json:"queue_connected"`
	Documents      map[DocumentStatus]int `json:"documents"`
}
