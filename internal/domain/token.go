package domain

import "time"

// DownloadToken maps an opaque key to a deliverable location.
type DownloadToken struct {
	Token     string
	TargetURL string
	CreatedAt time.Time
	// Expired marks a tombstone kept after the window elapsed so later lookups
	// still report expiry rather than absence.
	Expired bool
}

// ExpiresAt is the instant after which the token no longer redeems.
func (t DownloadToken) ExpiresAt(window time.Duration) time.Time {
	return t.CreatedAt.Add(window)
}
