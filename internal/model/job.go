package model

import (
	"time"
)

// JobPayload is the queued unit of work wrapping one enrollment event. The
// payload keeps the wire shape of the event so a job can be re-parsed into
// its union variant on every delivery attempt.
type JobPayload struct {
	EventID     string         `json:"eventId"`
	EventType   EventType      `json:"eventType"`
	Enrollment  EnrollmentData `json:"enrollmentData"`
	ProcessedAt time.Time      `json:"processedAt"`
	RetryCount  int            `json:"retryCount"`
}

// Event rebuilds the enrollment event union from the payload.
func (p *JobPayload) Event() (EnrollmentEvent, error) {
	return NewEnrollmentEvent(p.EventID, p.EventType, p.Enrollment)
}

// IdempotencyKey derives the deduplication key for a job. Webhook jobs use
// the event id directly; reconciliation jobs prefix the enrollment id so a
// pull never collides with a live webhook delivery of a different event.
func (p *JobPayload) IdempotencyKey() string {
	return p.EventID
}

// SyncJobID builds the idempotency key for a reconciliation-originated job.
func SyncJobID(enrollmentID string) string {
	return "sync-" + enrollmentID
}

// EventPriority maps event types to queue priority. Completion events carry
// the highest priority; reconciliation jobs always rank below webhooks.
func EventPriority(t EventType) JobPriority {
	switch t {
	case EventEnrollmentCompleted:
		return PriorityCritical
	case EventEnrollmentProgress:
		return PriorityHigh
	case EventEnrollmentCreated:
		return PriorityDefault
	default:
		return PriorityLow
	}
}

// JobPriority selects which queue a job lands in.
type JobPriority int

const (
	PriorityCritical JobPriority = 1
	PriorityHigh     JobPriority = 2
	PriorityDefault  JobPriority = 3
	PriorityLow      JobPriority = 4 // reconciliation pulls
)
