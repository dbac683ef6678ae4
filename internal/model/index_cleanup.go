package model

import "time"

// IndexCleanupJob asks the cleanup worker to remove a session's on-disk index.
type IndexCleanupJob struct {
	SessionID   string    `json:"session_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
