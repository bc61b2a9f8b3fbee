package upload

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionPrefix is the reserved blob store prefix for upload session data.
// Each session keeps two blobs under it: <id>.bin holds the received bytes
// and <id>.meta holds the JSON session record.
const SessionPrefix = "_uploads/"

const (
	dataSuffix = ".bin"
	metaSuffix = ".meta"
)

// DataPath returns the blob store path of a session's byte blob
func DataPath(sessionID string) string {
	return SessionPrefix + sessionID + dataSuffix
}

// MetaPath returns the blob store path of a session's metadata record
func MetaPath(sessionID string) string {
	return SessionPrefix + sessionID + metaSuffix
}

// SessionIDFromMetaPath derives the session ID from a listed metadata path.
// Returns false for paths that are not session metadata records.
func SessionIDFromMetaPath(path string) (string, bool) {
	if !strings.HasPrefix(path, SessionPrefix) || !strings.HasSuffix(path, metaSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, SessionPrefix), metaSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// SessionRecord is the persisted state of one resumable upload session.
// It is the only authoritative copy: every operation re-reads it from the
// blob store, so any engine instance can serve any session.
type SessionRecord struct {
	ID        string            `json:"id"`
	Length    int64             `json:"length"`
	Offset    int64             `json:"offset"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	OwnerID   uuid.UUID         `json:"owner_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewSessionRecord creates a session record with a fresh ID and zero offset.
// The expiry is absolute: fixed now, never extended by activity.
func NewSessionRecord(ownerID uuid.UUID, length int64, ttl time.Duration, metadata map[string]string) *SessionRecord {
	now := time.Now().UTC()
	return &SessionRecord{
		ID:        uuid.New().String(),
		Length:    length,
		Offset:    0,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		OwnerID:   ownerID,
		Metadata:  metadata,
	}
}

// IsComplete reports whether all declared bytes have been received
func (r *SessionRecord) IsComplete() bool {
	return r.Offset == r.Length
}

// IsExpired reports whether the session's expiry has passed
func (r *SessionRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
