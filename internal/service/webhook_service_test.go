package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"enrollsync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func validEvent(id string, t model.EventType) *model.WebhookEvent {
	return &model.WebhookEvent{
		ID:        id,
		Type:      t,
		CreatedAt: time.Now(),
		Data: model.EnrollmentData{
			ID:       "enr-1",
			UserID:   "user-1",
			CourseID: "course-1",
		},
	}
}

func TestWebhookService_VerifySignature(t *testing.T) {
	s := NewWebhookService(newFakeQueue(), "topsecret")
	payload := []byte(`{"id":"evt-1"}`)

	assert.True(t, s.VerifySignature(payload, sign("topsecret", payload)))
	assert.False(t, s.VerifySignature(payload, sign("wrongsecret", payload)))
	assert.False(t, s.VerifySignature(payload, "not-hex!"))
	assert.False(t, s.VerifySignature(payload, ""))

	// Unconfigured secret disables verification
	open := NewWebhookService(newFakeQueue(), "")
	assert.True(t, open.VerifySignature(payload, ""))
}

func TestWebhookService_AdmitQueuesByPriority(t *testing.T) {
	q := newFakeQueue()
	s := NewWebhookService(q, "")
	ctx := context.Background()

	result, err := s.Admit(ctx, validEvent("evt-completed", model.EventEnrollmentCompleted))
	require.NoError(t, err)
	assert.Equal(t, "evt-completed", result.JobID)
	assert.False(t, result.Duplicate)
	assert.Equal(t, model.PriorityCritical, q.priorities["evt-completed"])

	_, err = s.Admit(ctx, validEvent("evt-progress", model.EventEnrollmentProgress))
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, q.priorities["evt-progress"])

	_, err = s.Admit(ctx, validEvent("evt-created", model.EventEnrollmentCreated))
	require.NoError(t, err)
	assert.Equal(t, model.PriorityDefault, q.priorities["evt-created"])
}

func TestWebhookService_AdmitDeduplicatesReplays(t *testing.T) {
	q := newFakeQueue()
	s := NewWebhookService(q, "")
	ctx := context.Background()

	first, err := s.Admit(ctx, validEvent("evt-1", model.EventEnrollmentProgress))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	replay, err := s.Admit(ctx, validEvent("evt-1", model.EventEnrollmentProgress))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Len(t, q.jobs, 1)
}

func TestWebhookService_AdmitRejectsUnsupportedType(t *testing.T) {
	s := NewWebhookService(newFakeQueue(), "")

	_, err := s.Admit(context.Background(), validEvent("evt-1", "enrollment.deleted"))
	assert.ErrorIs(t, err, ErrUnsupportedEventType)
}

func TestWebhookService_AdmitRejectsInvalidEnvelope(t *testing.T) {
	s := NewWebhookService(newFakeQueue(), "")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.WebhookEvent)
	}{
		{"missing event id", func(e *model.WebhookEvent) { e.ID = "" }},
		{"missing type", func(e *model.WebhookEvent) { e.Type = "" }},
		{"missing enrollment id", func(e *model.WebhookEvent) { e.Data.ID = "" }},
		{"missing course id", func(e *model.WebhookEvent) { e.Data.CourseID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent("evt-1", model.EventEnrollmentProgress)
			tt.mutate(event)
			_, err := s.Admit(ctx, event)
			assert.Error(t, err)
		})
	}
}
