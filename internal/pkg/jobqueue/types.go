package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeSubscriptionEvent applies one recorded billing webhook delivery.
	JobTypeSubscriptionEvent JobType = "subscription_event"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// SubscriptionEventJobPayload points at a webhook event log row. The raw
// payload stays in the database so the job itself carries no customer data.
type SubscriptionEventJobPayload struct {
	WebhookEventID         uint   `json:"webhook_event_id"`
	Provider               string `json:"provider"`
	EventName              string `json:"event_name"`
	ProviderSubscriptionID string `json:"provider_subscription_id"`
}

// ToMap converts the payload to a map for storage
func (p SubscriptionEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"webhook_event_id":         p.WebhookEventID,
		"provider":                 p.Provider,
		"event_name":               p.EventName,
		"provider_subscription_id": p.ProviderSubscriptionID,
	}
}

// SubscriptionEventJobPayloadFromMap creates a payload from a map
func SubscriptionEventJobPayloadFromMap(data map[string]interface{}) (*SubscriptionEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SubscriptionEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsPermanentlyFailed fails the job without leaving retries.
func (j *Job) MarkAsPermanentlyFailed(errorMsg string) {
	j.MarkAsFailed(errorMsg)
	if j.RetryCount < j.MaxRetries {
		j.MaxRetries = j.RetryCount
	}
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
