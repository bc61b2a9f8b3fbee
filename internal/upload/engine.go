package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/filehold/internal/audit"
	"github.com/lgulliver/filehold/internal/common"
	"github.com/lgulliver/filehold/internal/documents"
	"github.com/lgulliver/filehold/internal/storage"
	"github.com/lgulliver/filehold/pkg/types"
	"github.com/lgulliver/filehold/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Engine owns the resumable upload session lifecycle: create, inspect,
// append, finalize, cancel and the expiry sweep. It keeps no session state in
// memory; every operation re-reads the session record from the blob store, so
// any number of engine instances can serve the same session over time.
type Engine struct {
	db         *common.Database
	storage    storage.BlobStorage
	documents  *documents.Repository
	audit      *audit.Service
	validator  *AdmissionValidator
	expiration time.Duration
	locks      *sessionLocks
	postproc   *PostProcessor
}

// NewEngine creates a new upload session engine
func NewEngine(db *common.Database, blobs storage.BlobStorage, docs *documents.Repository, auditLog *audit.Service, validator *AdmissionValidator, expiration time.Duration, postproc *PostProcessor) *Engine {
	return &Engine{
		db:         db,
		storage:    blobs,
		documents:  docs,
		audit:      auditLog,
		validator:  validator,
		expiration: expiration,
		locks:      newSessionLocks(),
		postproc:   postproc,
	}
}

// Create allocates a new upload session: admission checks, an empty backing
// blob, and a persisted session record. If either blob write fails the
// session does not exist.
func (e *Engine) Create(ctx context.Context, ownerID uuid.UUID, totalLength int64, metadataHeader string, allowDuplicates bool) (*SessionRecord, error) {
	if totalLength < 0 {
		return nil, ErrInvalidUploadLength
	}

	metadata, warnings := ParseMetadataHeader(metadataHeader)
	for _, warning := range warnings {
		log.Warn().Str("warning", warning).Msg("dropped malformed upload metadata pair")
	}

	filename := metadata[MetadataKeyFilename]
	if filename == "" {
		filename = "upload"
	}

	var parentID *uuid.UUID
	if raw := metadata[MetadataKeyParentID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			parentID = &id
		} else {
			log.Warn().Str("parent_id", raw).Msg("ignoring unparseable parent folder ID in upload metadata")
		}
	}

	if err := e.validator.Validate(ctx, ownerID, totalLength, filename, parentID, allowDuplicates); err != nil {
		return nil, err
	}

	record := NewSessionRecord(ownerID, totalLength, e.expiration, metadata)

	if err := e.storage.CreateEmpty(ctx, DataPath(record.ID)); err != nil {
		return nil, &StorageError{Op: "create session blob", Err: err}
	}

	if err := e.saveRecord(ctx, record); err != nil {
		// No partial sessions: take the data blob back out
		if delErr := e.storage.Delete(ctx, DataPath(record.ID)); delErr != nil {
			log.Warn().Err(delErr).Str("session_id", record.ID).Msg("failed to clean up data blob after create failure")
		}
		return nil, err
	}

	log.Info().
		Str("session_id", record.ID).
		Int64("length", totalLength).
		Str("owner_id", ownerID.String()).
		Time("expires_at", record.ExpiresAt).
		Msg("upload session created")

	return record, nil
}

// Inspect returns the session's progress so a client can resume after a
// disconnect. Expired sessions report not-found.
func (e *Engine) Inspect(ctx context.Context, sessionID string, callerID uuid.UUID) (*types.UploadStatus, error) {
	record, err := e.loadRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != callerID {
		return nil, &ForbiddenError{SessionID: sessionID}
	}
	if record.IsExpired(time.Now().UTC()) {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	return &types.UploadStatus{
		SessionID: record.ID,
		Offset:    record.Offset,
		Length:    record.Length,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// AppendChunk writes a chunk at the session's current offset. The supplied
// expectedOffset must equal the recorded offset exactly; a mismatch rejects
// the chunk without writing, and the client resynchronizes via Inspect. The
// per-session lock serializes concurrent appends so two chunks carrying the
// same offset cannot both commit.
func (e *Engine) AppendChunk(ctx context.Context, sessionID string, callerID uuid.UUID, expectedOffset int64, chunk io.Reader) (int64, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	record, err := e.loadRecord(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if record.OwnerID != callerID {
		return 0, &ForbiddenError{SessionID: sessionID}
	}
	if record.IsExpired(time.Now().UTC()) {
		return 0, &SessionExpiredError{SessionID: sessionID, ExpiredAt: record.ExpiresAt}
	}
	if record.IsComplete() {
		return 0, &SessionCompleteError{SessionID: sessionID}
	}
	if record.Offset != expectedOffset {
		return 0, &OffsetMismatchError{SessionID: sessionID, Current: record.Offset, Supplied: expectedOffset}
	}

	// The offset may never pass the declared length
	remaining := record.Length - record.Offset
	newSize, err := e.storage.Append(ctx, DataPath(sessionID), io.LimitReader(chunk, remaining), record.Offset)
	if err != nil {
		// Nothing recorded; the same offset is safe to retry
		return 0, &StorageError{Op: "append chunk", Err: err}
	}

	record.Offset = newSize
	if err := e.saveRecord(ctx, record); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Int64("offset", newSize).Msg("chunk written but offset not persisted")
		return 0, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Int64("offset", record.Offset).
		Int64("length", record.Length).
		Msg("chunk appended")

	return record.Offset, nil
}

// Finalize converts a complete session into a permanent document. Admission
// checks run again because the world may have changed since the session was
// created. The blob move happens first; the document record and its audit
// entry then commit in one transaction, and on failure the blob is moved back
// so the session stays intact for a retry.
func (e *Engine) Finalize(ctx context.Context, sessionID string, callerID uuid.UUID, req *types.FinalizeUploadRequest) (*types.Document, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	record, err := e.loadRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != callerID {
		return nil, &ForbiddenError{SessionID: sessionID}
	}
	if !record.IsComplete() {
		return nil, &IncompleteUploadError{SessionID: sessionID, Offset: record.Offset, Length: record.Length}
	}

	if err := e.validator.Validate(ctx, record.OwnerID, record.Length, req.Filename, req.ParentFolderID, req.AllowDuplicateNames); err != nil {
		return nil, err
	}

	storagePath := utils.UniqueStorageName(req.Filename)
	if err := e.storage.Move(ctx, DataPath(sessionID), storagePath); err != nil {
		return nil, &StorageError{Op: "move session blob", Err: err}
	}

	doc := &types.Document{
		Name:        req.Filename,
		Type:        types.DocumentTypeFile,
		ParentID:    req.ParentFolderID,
		ContentType: utils.ContentTypeForFilename(req.Filename),
		Size:        record.Length,
		StoragePath: storagePath,
		Metadata:    types.JSONMap(req.Metadata),
		OwnerID:     record.OwnerID,
	}

	txErr := e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.documents.CreateTx(tx, doc); err != nil {
			return err
		}
		details := types.JSONMap{
			"name": doc.Name,
			"size": doc.Size,
		}
		if req.ParentFolderID != nil {
			details["parent_folder_id"] = req.ParentFolderID.String()
		}
		return e.audit.RecordTx(tx, audit.ActionUploadDocument, "document", doc.ID, record.OwnerID, details)
	})
	if txErr != nil {
		// Put the blob back so the client can retry finalize
		if moveErr := e.storage.Move(ctx, storagePath, DataPath(sessionID)); moveErr != nil {
			log.Error().Err(moveErr).Str("session_id", sessionID).Str("storage_path", storagePath).Msg("failed to restore session blob after finalize rollback")
		}
		return nil, fmt.Errorf("failed to finalize upload: %w", txErr)
	}

	e.postproc.Dispatch(doc)

	// Session cleanup is best-effort; the sweep picks up leftovers
	if err := e.storage.Delete(ctx, MetaPath(sessionID)); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clean up session metadata after finalize")
	}

	log.Info().
		Str("session_id", sessionID).
		Str("document_id", doc.ID.String()).
		Str("name", doc.Name).
		Int64("size", doc.Size).
		Msg("upload finalized")

	return doc, nil
}

// Cancel discards a session and its received bytes. Canceling a session that
// does not exist succeeds silently.
func (e *Engine) Cancel(ctx context.Context, sessionID string, callerID uuid.UUID) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	record, err := e.loadRecord(ctx, sessionID)
	if err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if record.OwnerID != callerID {
		return &ForbiddenError{SessionID: sessionID}
	}

	if err := e.removeSession(ctx, sessionID); err != nil {
		return err
	}

	log.Info().Str("session_id", sessionID).Msg("upload session canceled")
	return nil
}

// SweepExpired removes every session whose expiry has passed and returns the
// number removed. A failure on one session is logged and does not stop the
// sweep of the others.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	paths, err := e.storage.List(ctx, SessionPrefix)
	if err != nil {
		return 0, &StorageError{Op: "list sessions", Err: err}
	}

	now := time.Now().UTC()
	removed := 0

	for _, path := range paths {
		sessionID, ok := SessionIDFromMetaPath(path)
		if !ok {
			continue
		}

		record, err := e.loadRecord(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to load session during expiry sweep")
			continue
		}
		if !record.IsExpired(now) {
			continue
		}

		e.locks.Lock(sessionID)
		err = e.removeSession(ctx, sessionID)
		e.locks.Unlock(sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to remove expired session")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("count", removed).Msg("removed expired upload sessions")
	}

	return removed, nil
}

// removeSession deletes a session's blobs; shared by cancel and the sweep
func (e *Engine) removeSession(ctx context.Context, sessionID string) error {
	if err := e.storage.Delete(ctx, DataPath(sessionID)); err != nil {
		return &StorageError{Op: "delete session blob", Err: err}
	}
	if err := e.storage.Delete(ctx, MetaPath(sessionID)); err != nil {
		return &StorageError{Op: "delete session metadata", Err: err}
	}
	return nil
}

// loadRecord reads and decodes a session record from the blob store
func (e *Engine) loadRecord(ctx context.Context, sessionID string) (*SessionRecord, error) {
	reader, err := e.storage.Retrieve(ctx, MetaPath(sessionID))
	if err != nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	defer reader.Close()

	var record SessionRecord
	if err := json.NewDecoder(reader).Decode(&record); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to decode session record")
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	return &record, nil
}

// saveRecord persists a session record to the blob store
func (e *Engine) saveRecord(ctx context.Context, record *SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	if err := e.storage.Store(ctx, MetaPath(record.ID), bytes.NewReader(data), "application/json"); err != nil {
		return &StorageError{Op: "save session record", Err: err}
	}
	return nil
}
