package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/filehold/internal/upload"
	"github.com/lgulliver/filehold/pkg/types"
)

// Upload session handlers. Chunk sequencing follows the tus convention:
// Upload-Length declares the total size at creation, PATCH requests carry
// Upload-Offset, and the server answers with the committed offset.

func handleCreateUpload(engine *upload.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		lengthHeader := c.GetHeader("Upload-Length")
		if lengthHeader == "" {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Missing Upload-Length header",
			})
			return
		}
		totalLength, err := strconv.ParseInt(lengthHeader, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid Upload-Length header",
			})
			return
		}

		allowDuplicates := c.Query("allow_duplicates") == "true"

		record, err := engine.Create(c.Request.Context(), user.ID, totalLength, c.GetHeader("Upload-Metadata"), allowDuplicates)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.Header("Location", fmt.Sprintf("/api/v1/uploads/%s", record.ID))
		c.Header("Upload-Offset", strconv.FormatInt(record.Offset, 10))
		c.Header("Upload-Expires", record.ExpiresAt.Format(http.TimeFormat))
		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Upload session created",
			Data: types.UploadStatus{
				SessionID: record.ID,
				Offset:    record.Offset,
				Length:    record.Length,
				ExpiresAt: record.ExpiresAt,
			},
		})
	}
}

// handleUploadHead reports session progress in headers only, for clients
// resuming after a disconnect
func handleUploadHead(engine *upload.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		status, err := engine.Inspect(c.Request.Context(), c.Param("id"), user.ID)
		if err != nil {
			c.Status(uploadErrorStatus(err))
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Header("Upload-Offset", strconv.FormatInt(status.Offset, 10))
		c.Header("Upload-Length", strconv.FormatInt(status.Length, 10))
		c.Header("Upload-Expires", status.ExpiresAt.Format(http.TimeFormat))
		c.Status(http.StatusOK)
	}
}

func handleUploadStatus(engine *upload.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		status, err := engine.Inspect(c.Request.Context(), c.Param("id"), user.ID)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    status,
		})
	}
}

// handleAppendChunk streams a chunk into the session. Chunks larger than
// maxChunkSize are rejected so a single PATCH cannot tie up the server for an
// unbounded stretch; clients split the file and retry per chunk anyway.
func handleAppendChunk(engine *upload.Engine, maxChunkSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		if c.Request.ContentLength > maxChunkSize {
			c.JSON(http.StatusRequestEntityTooLarge, types.APIResponse{
				Success: false,
				Error:   fmt.Sprintf("chunk of %d bytes exceeds the %d byte limit", c.Request.ContentLength, maxChunkSize),
			})
			return
		}

		offsetHeader := c.GetHeader("Upload-Offset")
		if offsetHeader == "" {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Missing Upload-Offset header",
			})
			return
		}
		offset, err := strconv.ParseInt(offsetHeader, 10, 64)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid Upload-Offset header",
			})
			return
		}

		// Backstop for chunked transfers that carry no Content-Length
		body := http.MaxBytesReader(c.Writer, c.Request.Body, maxChunkSize)

		newOffset, err := engine.AppendChunk(c.Request.Context(), c.Param("id"), user.ID, offset, body)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.Header("Upload-Offset", strconv.FormatInt(newOffset, 10))
		c.Status(http.StatusNoContent)
	}
}

func handleFinalizeUpload(engine *upload.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req types.FinalizeUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		doc, err := engine.Finalize(c.Request.Context(), c.Param("id"), user.ID, &req)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Upload finalized",
			Data:    doc,
		})
	}
}

func handleCancelUpload(engine *upload.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		if err := engine.Cancel(c.Request.Context(), c.Param("id"), user.ID); err != nil {
			respondUploadError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// uploadErrorStatus maps engine errors to HTTP status codes
func uploadErrorStatus(err error) int {
	var (
		notFound   *upload.SessionNotFoundError
		expired    *upload.SessionExpiredError
		complete   *upload.SessionCompleteError
		mismatch   *upload.OffsetMismatchError
		incomplete *upload.IncompleteUploadError
		forbidden  *upload.ForbiddenError
		fileSize   *upload.FileSizeExceededError
		userQuota  *upload.UserQuotaExceededError
		parent     *upload.ParentNotFoundError
		duplicate  *upload.DuplicateNameError
		storageErr *upload.StorageError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &expired):
		return http.StatusGone
	case errors.As(err, &complete), errors.As(err, &mismatch), errors.As(err, &incomplete), errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &fileSize), errors.As(err, &userQuota):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &parent):
		return http.StatusNotFound
	case errors.As(err, &storageErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, upload.ErrInvalidUploadLength):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondUploadError(c *gin.Context, err error) {
	c.JSON(uploadErrorStatus(err), types.APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}
