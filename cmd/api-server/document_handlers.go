package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lgulliver/filehold/internal/audit"
	"github.com/lgulliver/filehold/internal/documents"
	"github.com/lgulliver/filehold/internal/storage"
	"github.com/lgulliver/filehold/pkg/types"
	"github.com/rs/zerolog/log"
)

func handleCreateFolder(documentRepo *documents.Repository, auditService *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req types.CreateFolderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		if req.ParentID != nil {
			exists, err := documentRepo.FolderExists(c.Request.Context(), *req.ParentID, user.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, types.APIResponse{
					Success: false,
					Error:   err.Error(),
				})
				return
			}
			if !exists {
				c.JSON(http.StatusNotFound, types.APIResponse{
					Success: false,
					Error:   fmt.Sprintf("parent folder not found: %s", req.ParentID),
				})
				return
			}
		}

		taken, err := documentRepo.ExistsByNameAndParent(c.Request.Context(), req.Name, req.ParentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
		if taken {
			c.JSON(http.StatusConflict, types.APIResponse{
				Success: false,
				Error:   fmt.Sprintf("a document named %q already exists at the target location", req.Name),
			})
			return
		}

		folder, err := documentRepo.CreateFolder(c.Request.Context(), req.Name, req.ParentID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		if err := auditService.Record(c.Request.Context(), audit.ActionCreateFolder, "document", folder.ID, user.ID, types.JSONMap{"name": folder.Name}); err != nil {
			log.Warn().Err(err).Str("folder_id", folder.ID.String()).Msg("failed to record folder creation audit entry")
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Folder created successfully",
			Data:    folder,
		})
	}
}

func handleGetDocument(documentRepo *documents.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		doc, ok := loadOwnedDocument(c, documentRepo, user)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    doc,
		})
	}
}

func handleDownloadDocument(documentRepo *documents.Repository, blobStorage storage.BlobStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		doc, ok := loadOwnedDocument(c, documentRepo, user)
		if !ok {
			return
		}

		if doc.Type != types.DocumentTypeFile {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "folders cannot be downloaded",
			})
			return
		}

		reader, err := blobStorage.Retrieve(c.Request.Context(), doc.StoragePath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to retrieve document content",
			})
			return
		}
		defer reader.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
		c.Header("Content-Type", doc.ContentType)
		c.Header("Content-Length", fmt.Sprintf("%d", doc.Size))
		c.Status(http.StatusOK)

		if _, err := io.Copy(c.Writer, reader); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("download interrupted")
		}
	}
}

func handleDocumentAudit(documentRepo *documents.Repository, auditService *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		doc, ok := loadOwnedDocument(c, documentRepo, user)
		if !ok {
			return
		}

		entries, err := auditService.ForResource(c.Request.Context(), doc.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    entries,
		})
	}
}

func handleDeleteDocument(documentRepo *documents.Repository, auditService *audit.Service, blobStorage storage.BlobStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		doc, ok := loadOwnedDocument(c, documentRepo, user)
		if !ok {
			return
		}

		if err := documentRepo.Delete(c.Request.Context(), doc.ID); err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		// The record is gone; blob removal failures only leak storage
		if doc.Type == types.DocumentTypeFile && doc.StoragePath != "" {
			if err := blobStorage.Delete(c.Request.Context(), doc.StoragePath); err != nil {
				log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("failed to delete document blob")
			}
		}

		if err := auditService.Record(c.Request.Context(), audit.ActionDeleteDocument, "document", doc.ID, user.ID, types.JSONMap{"name": doc.Name}); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("failed to record document deletion audit entry")
		}

		c.Status(http.StatusNoContent)
	}
}

// loadOwnedDocument parses the :id parameter, loads the document and enforces
// ownership. On failure it writes the error response and returns ok=false.
func loadOwnedDocument(c *gin.Context, documentRepo *documents.Repository, user *types.User) (*types.Document, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "Invalid document ID",
		})
		return nil, false
	}

	doc, err := documentRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, types.APIResponse{
			Success: false,
			Error:   err.Error(),
		})
		return nil, false
	}

	if doc.OwnerID != user.ID && !user.IsAdmin {
		c.JSON(http.StatusForbidden, types.APIResponse{
			Success: false,
			Error:   "you do not have access to this document",
		})
		return nil, false
	}

	return doc, true
}
