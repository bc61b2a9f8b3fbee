package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lgulliver/filehold/internal/common"
	"github.com/lgulliver/filehold/pkg/types"
	"gorm.io/gorm"
)

// Repository persists document and folder records
type Repository struct {
	db *common.Database
}

// NewRepository creates a new document repository
func NewRepository(db *common.Database) *Repository {
	return &Repository{db: db}
}

// Create inserts a new document record
func (r *Repository) Create(ctx context.Context, doc *types.Document) error {
	return r.CreateTx(r.db.WithContext(ctx), doc)
}

// CreateTx inserts a new document record using the given transaction handle,
// so callers can commit it together with other writes
func (r *Repository) CreateTx(tx *gorm.DB, doc *types.Document) error {
	if err := tx.Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID returns a document by its ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	var doc types.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// FolderExists reports whether a folder with the given ID exists and is
// writable by the given owner. A folder owned by someone else is reported the
// same as an absent one.
func (r *Repository) FolderExists(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&types.Document{}).
		Where("id = ? AND type = ? AND owner_id = ?", id, types.DocumentTypeFolder, ownerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check folder existence: %w", err)
	}
	return count > 0, nil
}

// ExistsByNameAndParent reports whether a sibling with the given name already
// exists under the parent folder. A nil parent means the root level.
func (r *Repository) ExistsByNameAndParent(ctx context.Context, name string, parentID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&types.Document{}).Where("name = ?", name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check duplicate name: %w", err)
	}
	return count > 0, nil
}

// StorageUsedBy returns the total bytes of file documents owned by a user
func (r *Repository) StorageUsedBy(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&types.Document{}).
		Where("owner_id = ? AND type = ?", ownerID, types.DocumentTypeFile).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute storage usage: %w", err)
	}
	return total, nil
}

// CreateFolder inserts a new folder record
func (r *Repository) CreateFolder(ctx context.Context, name string, parentID *uuid.UUID, ownerID uuid.UUID) (*types.Document, error) {
	folder := &types.Document{
		Name:     name,
		Type:     types.DocumentTypeFolder,
		ParentID: parentID,
		OwnerID:  ownerID,
	}
	if err := r.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return folder, nil
}

// Delete removes a document record
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&types.Document{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
