package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lgulliver/filehold/internal/common"
	"github.com/lgulliver/filehold/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Actions recorded against documents
const (
	ActionUploadDocument = "UPLOAD_DOCUMENT"
	ActionCreateFolder   = "CREATE_FOLDER"
	ActionDeleteDocument = "DELETE_DOCUMENT"
)

// Service writes audit entries for mutating operations
type Service struct {
	db *common.Database
}

// NewService creates a new audit service
func NewService(db *common.Database) *Service {
	return &Service{db: db}
}

// Record writes an audit entry
func (s *Service) Record(ctx context.Context, action, resourceType string, resourceID, actorID uuid.UUID, details types.JSONMap) error {
	return s.RecordTx(s.db.WithContext(ctx), action, resourceType, resourceID, actorID, details)
}

// RecordTx writes an audit entry using the given transaction handle, so the
// entry commits or rolls back together with the operation it describes
func (s *Service) RecordTx(tx *gorm.DB, action, resourceType string, resourceID, actorID uuid.UUID, details types.JSONMap) error {
	entry := &types.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Details:      details,
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	log.Debug().
		Str("action", action).
		Str("resource_type", resourceType).
		Str("resource_id", resourceID.String()).
		Msg("audit entry recorded")

	return nil
}

// ForResource returns the audit trail of a resource, newest first
func (s *Service) ForResource(ctx context.Context, resourceID uuid.UUID) ([]types.AuditEntry, error) {
	var entries []types.AuditEntry
	err := s.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}
	return entries, nil
}
