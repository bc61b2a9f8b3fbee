package upload

import (
	"context"

	"github.com/google/uuid"
	"github.com/lgulliver/filehold/internal/documents"
	"github.com/lgulliver/filehold/pkg/config"
)

// AdmissionValidator runs the precondition pipeline shared by session
// creation and finalization. An upload can span hours, so finalize must
// re-run every check: the parent folder may be gone, the quota consumed, or
// the name taken since the session was created. Checks short-circuit on the
// first failure, cheapest first.
type AdmissionValidator struct {
	quota     *config.QuotaConfig
	documents *documents.Repository
}

// NewAdmissionValidator creates a new admission validator
func NewAdmissionValidator(quota *config.QuotaConfig, docs *documents.Repository) *AdmissionValidator {
	return &AdmissionValidator{
		quota:     quota,
		documents: docs,
	}
}

// Validate runs all admission checks for an upload of the given length and target
func (v *AdmissionValidator) Validate(ctx context.Context, ownerID uuid.UUID, length int64, filename string, parentID *uuid.UUID, allowDuplicates bool) error {
	if err := v.validateFileSize(length, filename); err != nil {
		return err
	}
	if err := v.validateUserQuota(ctx, ownerID, length); err != nil {
		return err
	}
	if err := v.validateParentFolder(ctx, ownerID, parentID); err != nil {
		return err
	}
	return v.validateDuplicateName(ctx, filename, parentID, allowDuplicates)
}

func (v *AdmissionValidator) validateFileSize(length int64, filename string) error {
	if !v.quota.FileQuotaEnabled() {
		return nil
	}
	if length > v.quota.MaxFileSize {
		return &FileSizeExceededError{Filename: filename, Size: length, Limit: v.quota.MaxFileSize}
	}
	return nil
}

func (v *AdmissionValidator) validateUserQuota(ctx context.Context, ownerID uuid.UUID, length int64) error {
	if !v.quota.UserQuotaEnabled() {
		return nil
	}
	used, err := v.documents.StorageUsedBy(ctx, ownerID)
	if err != nil {
		return err
	}
	if used+length > v.quota.MaxUserStorage {
		return &UserQuotaExceededError{OwnerID: ownerID, Used: used, Requested: length, Limit: v.quota.MaxUserStorage}
	}
	return nil
}

// validateParentFolder requires the target folder to exist and be writable by
// the uploader; a folder belonging to another user rejects like a missing one
func (v *AdmissionValidator) validateParentFolder(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}
	exists, err := v.documents.FolderExists(ctx, *parentID, ownerID)
	if err != nil {
		return err
	}
	if !exists {
		return &ParentNotFoundError{ParentID: *parentID}
	}
	return nil
}

func (v *AdmissionValidator) validateDuplicateName(ctx context.Context, filename string, parentID *uuid.UUID, allowDuplicates bool) error {
	if allowDuplicates {
		return nil
	}
	exists, err := v.documents.ExistsByNameAndParent(ctx, filename, parentID)
	if err != nil {
		return err
	}
	if exists {
		return &DuplicateNameError{Name: filename, ParentID: parentID}
	}
	return nil
}
