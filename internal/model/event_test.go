package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnrollmentEvent_Variants(t *testing.T) {
	pct := 75.0
	now := time.Now()
	data := EnrollmentData{
		ID:                  "enr-1",
		UserID:              "user-1",
		CourseID:            "course-1",
		PercentageCompleted: &pct,
		CompletedAt:         &now,
	}

	created, err := NewEnrollmentEvent("evt-1", EventEnrollmentCreated, data)
	require.NoError(t, err)
	assert.IsType(t, &CreatedEvent{}, created)
	assert.Equal(t, EventEnrollmentCreated, created.Type())
	assert.Equal(t, "enr-1", created.EnrollmentID())
	assert.Equal(t, "course-1", created.CourseID())

	progress, err := NewEnrollmentEvent("evt-2", EventEnrollmentProgress, data)
	require.NoError(t, err)
	assert.IsType(t, &ProgressEvent{}, progress)
	require.NotNil(t, progress.Patch().PercentageCompleted)
	assert.Equal(t, 75.0, *progress.Patch().PercentageCompleted)

	completed, err := NewEnrollmentEvent("evt-3", EventEnrollmentCompleted, data)
	require.NoError(t, err)
	assert.IsType(t, &CompletedEvent{}, completed)
}

func TestNewEnrollmentEvent_CompletedDefaultsTrue(t *testing.T) {
	// The completed flag is implied by the event type when absent
	event, err := NewEnrollmentEvent("evt-1", EventEnrollmentCompleted, EnrollmentData{
		ID: "enr-1", UserID: "user-1", CourseID: "course-1",
	})
	require.NoError(t, err)

	patch := event.Patch()
	require.NotNil(t, patch.Completed)
	assert.True(t, *patch.Completed)
}

func TestNewEnrollmentEvent_ExplicitCompletedFalsePreserved(t *testing.T) {
	completed := false
	event, err := NewEnrollmentEvent("evt-1", EventEnrollmentCompleted, EnrollmentData{
		ID: "enr-1", UserID: "user-1", CourseID: "course-1", Completed: &completed,
	})
	require.NoError(t, err)

	patch := event.Patch()
	require.NotNil(t, patch.Completed)
	assert.False(t, *patch.Completed)
}

func TestNewEnrollmentEvent_Rejections(t *testing.T) {
	valid := EnrollmentData{ID: "enr-1", UserID: "user-1", CourseID: "course-1"}

	_, err := NewEnrollmentEvent("", EventEnrollmentCreated, valid)
	assert.Error(t, err)

	_, err = NewEnrollmentEvent("evt-1", "enrollment.deleted", valid)
	assert.Error(t, err)

	_, err = NewEnrollmentEvent("evt-1", EventEnrollmentCreated, EnrollmentData{CourseID: "course-1"})
	assert.Error(t, err)

	_, err = NewEnrollmentEvent("evt-1", EventEnrollmentCreated, EnrollmentData{ID: "enr-1"})
	assert.Error(t, err)
}

func TestEnrollmentPatch_AbsentFieldsStayNil(t *testing.T) {
	event, err := NewEnrollmentEvent("evt-1", EventEnrollmentProgress, EnrollmentData{
		ID: "enr-1", CourseID: "course-1",
	})
	require.NoError(t, err)

	patch := event.Patch()
	assert.Nil(t, patch.UserID)
	assert.Nil(t, patch.PercentageCompleted)
	assert.Nil(t, patch.StartedAt)
	assert.Nil(t, patch.Completed)
}

func TestEventPriority(t *testing.T) {
	assert.Equal(t, PriorityCritical, EventPriority(EventEnrollmentCompleted))
	assert.Equal(t, PriorityHigh, EventPriority(EventEnrollmentProgress))
	assert.Equal(t, PriorityDefault, EventPriority(EventEnrollmentCreated))
	assert.Equal(t, PriorityLow, EventPriority("anything.else"))
}

func TestSyncJobID(t *testing.T) {
	assert.Equal(t, "sync-enr-1", SyncJobID("enr-1"))
}

func TestWebhookEvent_Validate(t *testing.T) {
	event := WebhookEvent{
		ID:   "evt-1",
		Type: EventEnrollmentCreated,
		Data: EnrollmentData{ID: "enr-1", CourseID: "course-1"},
	}
	assert.NoError(t, event.Validate())

	missing := event
	missing.Data.ID = ""
	assert.Error(t, missing.Validate())
}
