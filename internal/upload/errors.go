package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidUploadLength is returned when a session is created with a
// negative declared length.
var ErrInvalidUploadLength = errors.New("upload length must be non-negative")

// SessionNotFoundError is returned when a session does not exist, was
// canceled, or has been swept.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("upload session not found: %s", e.SessionID)
}

// SessionExpiredError is returned when a session's expiry has passed.
// The client must start a new session.
type SessionExpiredError struct {
	SessionID string
	ExpiredAt time.Time
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("upload session %s expired at %s", e.SessionID, e.ExpiredAt.Format(time.RFC3339))
}

// SessionCompleteError is returned when a chunk is appended to a session
// whose bytes are all received; only finalize or cancel are allowed.
type SessionCompleteError struct {
	SessionID string
}

func (e *SessionCompleteError) Error() string {
	return fmt.Sprintf("upload session %s is complete; finalize or cancel it", e.SessionID)
}

// OffsetMismatchError is returned when the supplied offset does not equal the
// session's recorded offset. The client should inspect the session and resume
// from the current offset.
type OffsetMismatchError struct {
	SessionID string
	Current   int64
	Supplied  int64
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("offset mismatch for session %s: expected %d, got %d", e.SessionID, e.Current, e.Supplied)
}

// IncompleteUploadError is returned when finalize is attempted before all
// bytes have been received.
type IncompleteUploadError struct {
	SessionID string
	Offset    int64
	Length    int64
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload session %s is incomplete: %d of %d bytes received", e.SessionID, e.Offset, e.Length)
}

// ForbiddenError is returned when a caller operates on a session it does not own
type ForbiddenError struct {
	SessionID string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("caller is not the owner of upload session %s", e.SessionID)
}

// FileSizeExceededError is returned when a declared length exceeds the
// per-file quota
type FileSizeExceededError struct {
	Filename string
	Size     int64
	Limit    int64
}

func (e *FileSizeExceededError) Error() string {
	return fmt.Sprintf("file %q of %d bytes exceeds the per-file limit of %d bytes", e.Filename, e.Size, e.Limit)
}

// UserQuotaExceededError is returned when an upload would push a user past
// their storage quota
type UserQuotaExceededError struct {
	OwnerID   uuid.UUID
	Used      int64
	Requested int64
	Limit     int64
}

func (e *UserQuotaExceededError) Error() string {
	return fmt.Sprintf("user %s would exceed storage quota: %d used + %d requested > %d limit",
		e.OwnerID, e.Used, e.Requested, e.Limit)
}

// ParentNotFoundError is returned when the target parent folder does not exist
type ParentNotFoundError struct {
	ParentID uuid.UUID
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("parent folder not found: %s", e.ParentID)
}

// DuplicateNameError is returned when a sibling with the target name already exists
type DuplicateNameError struct {
	Name     string
	ParentID *uuid.UUID
}

func (e *DuplicateNameError) Error() string {
	if e.ParentID != nil {
		return fmt.Sprintf("a document named %q already exists in folder %s", e.Name, e.ParentID)
	}
	return fmt.Sprintf("a document named %q already exists at the root level", e.Name)
}

// StorageError wraps a transient blob store failure. Operations failing with
// a StorageError are safe to retry with the same arguments.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
