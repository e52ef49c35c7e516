package lms

import (
	"fmt"
	"time"

	"enrollsync/internal/model"
)

// APIError is a transport-level or server-side failure talking to the LMS.
// It is retryable: the enclosing job should retry or fail retryably.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("lms api error: %s", e.Message)
	}
	return fmt.Sprintf("lms api error (status %d): %s", e.StatusCode, e.Message)
}

// DecodeError is a malformed LMS response. It is not retryable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("lms decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Pagination is the LMS listing pagination envelope.
type Pagination struct {
	CurrentPage  int `json:"current_page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// ListResponse is a page of enrollments from the LMS.
type ListResponse struct {
	Items []model.EnrollmentData `json:"items"`
	Meta  struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// ListFilter narrows an enrollment listing.
type ListFilter struct {
	Page         int
	Limit        int
	CourseID     string
	UserID       string
	Completed    *bool
	UpdatedSince time.Time
	Sort         string
}

// CreateEnrollmentRequest is the outbound enrollment-creation payload.
type CreateEnrollmentRequest struct {
	CourseID    string     `json:"course_id"`
	UserID      string     `json:"user_id"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}
