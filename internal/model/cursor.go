package model

import "time"

// SyncCursor is the reconciliation watermark: how far the pull-based sync
// has progressed through the LMS's enrollment history.
type SyncCursor struct {
	LastProcessedAt  time.Time `json:"lastProcessedAt"`
	LastEnrollmentID string    `json:"lastEnrollmentId,omitempty"`
	TotalProcessed   int64     `json:"totalProcessed"`
}

// DefaultSyncCursor returns the initial cursor: a lookback window ending now.
func DefaultSyncCursor(lookback time.Duration) SyncCursor {
	return SyncCursor{
		LastProcessedAt: time.Now().Add(-lookback),
		TotalProcessed:  0,
	}
}

// Advance moves the watermark forward. LastProcessedAt never moves backward.
func (c *SyncCursor) Advance(processedAt time.Time, enrollmentID string) {
	if processedAt.After(c.LastProcessedAt) {
		c.LastProcessedAt = processedAt
	}
	if enrollmentID != "" {
		c.LastEnrollmentID = enrollmentID
	}
}
