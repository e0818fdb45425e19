// Package queue holds narration jobs for a single playback worker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// NarrationJob is one block of narrative text waiting to be spoken.
type NarrationJob struct {
	ID        string
	Text      string
	Interrupt bool
	DedupeKey string
	TTL       time.Duration
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewNarrationJob creates a job with a fresh ID. A zero ttl never expires.
func NewNarrationJob(text string, interrupt bool, ttl time.Duration, dedupeKey string) *NarrationJob {
	now := time.Now()
	job := &NarrationJob{
		ID:        uuid.NewString(),
		Text:      text,
		Interrupt: interrupt,
		DedupeKey: dedupeKey,
		TTL:       ttl,
		CreatedAt: now,
	}
	if ttl > 0 {
		job.ExpiresAt = now.Add(ttl)
	}
	return job
}

// IsExpired reports whether the job outlived its TTL.
func (j *NarrationJob) IsExpired() bool {
	return !j.ExpiresAt.IsZero() && time.Now().After(j.ExpiresAt)
}
