package model

import (
	"fmt"
	"time"
)

// EventType identifies the kind of enrollment state change an event carries.
type EventType string

const (
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventEnrollmentProgress  EventType = "enrollment.progress"
	EventEnrollmentCompleted EventType = "enrollment.completed"
)

// ValidEventType reports whether t is a supported webhook event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventEnrollmentCreated, EventEnrollmentProgress, EventEnrollmentCompleted:
		return true
	}
	return false
}

// EnrollmentData is the wire shape of an enrollment payload as delivered by
// the LMS, both via webhook and via the listing API. Optional fields are
// pointers so that absence is distinguishable from a zero value.
type EnrollmentData struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	CourseID            string     `json:"course_id"`
	ActivatedAt         *time.Time `json:"activated_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	ExpiryDate          *time.Time `json:"expiry_date,omitempty"`
	PercentageCompleted *float64   `json:"percentage_completed,omitempty"`
	IsFreeTrial         *bool      `json:"is_free_trial,omitempty"`
	Completed           *bool      `json:"completed,omitempty"`
	Expired             *bool      `json:"expired,omitempty"`
}

// WebhookEvent is the inbound webhook envelope.
type WebhookEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Data      EnrollmentData `json:"data"`
}

// Validate checks the envelope structure before the event is admitted.
func (e *WebhookEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Data.ID == "" {
		return fmt.Errorf("enrollment id is required")
	}
	if e.Data.CourseID == "" {
		return fmt.Errorf("course id is required")
	}
	return nil
}

// EnrollmentEvent is a fact about a single enrollment state change. It is a
// closed union over the event types: each variant carries only the fields
// meaningful for that type.
type EnrollmentEvent interface {
	EventID() string
	Type() EventType
	EnrollmentID() string
	CourseID() string
	// Patch returns the partial record update this event represents.
	Patch() EnrollmentPatch

	isEnrollmentEvent()
}

type eventBase struct {
	eventID      string
	enrollmentID string
	courseID     string
	userID       string
}

func (b eventBase) EventID() string      { return b.eventID }
func (b eventBase) EnrollmentID() string { return b.enrollmentID }
func (b eventBase) CourseID() string     { return b.courseID }
func (b eventBase) isEnrollmentEvent()   {}

// CreatedEvent marks a new enrollment on the LMS.
type CreatedEvent struct {
	eventBase
	UserID      string
	ActivatedAt *time.Time
	ExpiryDate  *time.Time
	IsFreeTrial *bool
}

func (e *CreatedEvent) Type() EventType { return EventEnrollmentCreated }

func (e *CreatedEvent) Patch() EnrollmentPatch {
	return EnrollmentPatch{
		UserID:      optional(e.UserID),
		ActivatedAt: e.ActivatedAt,
		ExpiryDate:  e.ExpiryDate,
		IsFreeTrial: e.IsFreeTrial,
	}
}

// ProgressEvent reports partial completion of an enrollment.
type ProgressEvent struct {
	eventBase
	UserID              string
	StartedAt           *time.Time
	PercentageCompleted *float64
	Expired             *bool
}

func (e *ProgressEvent) Type() EventType { return EventEnrollmentProgress }

func (e *ProgressEvent) Patch() EnrollmentPatch {
	return EnrollmentPatch{
		UserID:              optional(e.UserID),
		StartedAt:           e.StartedAt,
		PercentageCompleted: e.PercentageCompleted,
		Expired:             e.Expired,
	}
}

// CompletedEvent marks an enrollment as finished. Processing one latches the
// local record into its terminal state.
type CompletedEvent struct {
	eventBase
	UserID              string
	CompletedAt         *time.Time
	PercentageCompleted *float64
	Completed           *bool
	Expired             *bool
}

func (e *CompletedEvent) Type() EventType { return EventEnrollmentCompleted }

func (e *CompletedEvent) Patch() EnrollmentPatch {
	completed := true
	if e.Completed != nil {
		completed = *e.Completed
	}
	return EnrollmentPatch{
		UserID:              optional(e.UserID),
		CompletedAt:         e.CompletedAt,
		PercentageCompleted: e.PercentageCompleted,
		Completed:           &completed,
		Expired:             e.Expired,
	}
}

// NewEnrollmentEvent builds the union variant matching the event type.
func NewEnrollmentEvent(eventID string, t EventType, d EnrollmentData) (EnrollmentEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if d.ID == "" || d.CourseID == "" {
		return nil, fmt.Errorf("event %s: enrollment id and course id are required", eventID)
	}

	base := eventBase{
		eventID:      eventID,
		enrollmentID: d.ID,
		courseID:     d.CourseID,
		userID:       d.UserID,
	}

	switch t {
	case EventEnrollmentCreated:
		return &CreatedEvent{
			eventBase:   base,
			UserID:      d.UserID,
			ActivatedAt: d.ActivatedAt,
			ExpiryDate:  d.ExpiryDate,
			IsFreeTrial: d.IsFreeTrial,
		}, nil
	case EventEnrollmentProgress:
		return &ProgressEvent{
			eventBase:           base,
			UserID:              d.UserID,
			StartedAt:           d.StartedAt,
			PercentageCompleted: d.PercentageCompleted,
			Expired:             d.Expired,
		}, nil
	case EventEnrollmentCompleted:
		return &CompletedEvent{
			eventBase:           base,
			UserID:              d.UserID,
			CompletedAt:         d.CompletedAt,
			PercentageCompleted: d.PercentageCompleted,
			Completed:           d.Completed,
			Expired:             d.Expired,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported event type: %s", t)
	}
}

// EnrollmentPatch is a partial update against the system of record. Nil
// fields are never written, so absence cannot clobber existing data.
type EnrollmentPatch struct {
	UserID              *string
	ActivatedAt         *time.Time
	CompletedAt         *time.Time
	StartedAt           *time.Time
	ExpiryDate          *time.Time
	PercentageCompleted *float64
	IsFreeTrial         *bool
	Completed           *bool
	Expired             *bool
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
