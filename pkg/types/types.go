package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom type that can handle JSON serialization for both PostgreSQL and SQLite
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for GORM
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for GORM
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	IsAdmin   bool      `json:"is_admin" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DocumentType distinguishes files from folders in the document tree
type DocumentType string

const (
	DocumentTypeFile   DocumentType = "file"
	DocumentTypeFolder DocumentType = "folder"
)

// Document represents a stored file or folder
type Document struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"not null;index:idx_documents_parent_name"`
	Type        DocumentType `json:"type" gorm:"not null"`
	ParentID    *uuid.UUID   `json:"parent_id" gorm:"index:idx_documents_parent_name"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	StoragePath string       `json:"-"`
	Metadata    JSONMap      `json:"metadata" gorm:"serializer:json"`
	OwnerID     uuid.UUID    `json:"owner_id" gorm:"index;not null"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Owner       User         `json:"owner" gorm:"foreignKey:OwnerID"`
}

// BeforeCreate generates a UUID for the document ID
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// AuditEntry records a mutating action against a resource
type AuditEntry struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey"`
	Action       string    `json:"action" gorm:"not null;index"`
	ResourceType string    `json:"resource_type" gorm:"not null"`
	ResourceID   uuid.UUID `json:"resource_id" gorm:"index"`
	ActorID      uuid.UUID `json:"actor_id" gorm:"index"`
	Details      JSONMap   `json:"details" gorm:"serializer:json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID for the audit entry ID
func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AuthToken represents a JWT token
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// CreateFolderRequest represents a folder creation request
type CreateFolderRequest struct {
	Name     string     `json:"name" binding:"required"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// FinalizeUploadRequest names the target of a completed upload session
type FinalizeUploadRequest struct {
	Filename            string                 `json:"filename" binding:"required"`
	ParentFolderID      *uuid.UUID             `json:"parent_folder_id"`
	AllowDuplicateNames bool                   `json:"allow_duplicate_names"`
	Metadata            map[string]interface{} `json:"metadata"`
}

// UploadStatus is the client-facing view of an upload session, used to resume
type UploadStatus struct {
	SessionID string    `json:"session_id"`
	Offset    int64     `json:"offset"`
	Length    int64     `json:"length"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
