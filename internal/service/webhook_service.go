package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/queue"
)

// ErrUnsupportedEventType marks a webhook event type the pipeline does not
// consume. The delivery is acknowledged but nothing is queued.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// AdmitResult reports webhook event admission.
type AdmitResult struct {
	EventID   string `json:"eventId"`
	JobID     string `json:"jobId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// WebhookService verifies and admits inbound LMS webhook deliveries into
// the job queue.
type WebhookService struct {
	queue  queue.Queue
	secret string
}

// NewWebhookService creates the webhook ingestion service.
func NewWebhookService(q queue.Queue, secret string) *WebhookService {
	return &WebhookService{queue: q, secret: secret}
}

// VerifySignature checks the delivery's HMAC-SHA256 hex signature against
// the shared secret using a constant-time compare. An unconfigured secret
// disables verification.
func (s *WebhookService) VerifySignature(payload []byte, signature string) bool {
	if s.secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(received, expected)
}

// Admit validates an event and enqueues it under its event id. A replayed
// delivery (same event id) is acknowledged as a duplicate without creating
// a second queue entry.
func (s *WebhookService) Admit(ctx context.Context, event *model.WebhookEvent) (*AdmitResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if !model.ValidEventType(event.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventType, event.Type)
	}

	// Build the union variant up front so malformed data is rejected at the
	// door rather than dead-lettered later
	if _, err := model.NewEnrollmentEvent(event.ID, event.Type, event.Data); err != nil {
		return nil, err
	}

	payload := &model.JobPayload{
		EventID:     event.ID,
		EventType:   event.Type,
		Enrollment:  event.Data,
		ProcessedAt: time.Now(),
	}

	err := s.queue.Enqueue(ctx, event.ID, payload, queue.EnqueueOptions{
		Priority: model.EventPriority(event.Type),
	})
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			return &AdmitResult{EventID: event.ID, Duplicate: true}, nil
		}
		return nil, err
	}

	return &AdmitResult{EventID: event.ID, JobID: event.ID}, nil
}
