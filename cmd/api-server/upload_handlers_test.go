package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/filehold/internal/audit"
	"github.com/lgulliver/filehold/internal/common"
	"github.com/lgulliver/filehold/internal/documents"
	"github.com/lgulliver/filehold/internal/storage"
	"github.com/lgulliver/filehold/internal/upload"
	"github.com/lgulliver/filehold/pkg/config"
	"github.com/lgulliver/filehold/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type uploadHandlerFixture struct {
	router *gin.Engine
	engine *upload.Engine
	owner  *types.User
}

func setupUploadHandlers(t *testing.T, maxChunkSize int64) *uploadHandlerFixture {
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&types.User{}, &types.Document{}, &types.AuditEntry{}))
	db := &common.Database{DB: gormDB}

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	owner := &types.User{
		Username: "uploader",
		Email:    "uploader@example.com",
		Password: "hashedpassword",
		IsActive: true,
	}
	require.NoError(t, db.Create(owner).Error)

	repo := documents.NewRepository(db)
	validator := upload.NewAdmissionValidator(&config.QuotaConfig{}, repo)
	engine := upload.NewEngine(db, blobs, repo, audit.NewService(db), validator, time.Hour, upload.NewPostProcessor())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user", owner)
	})
	router.PATCH("/uploads/:id", handleAppendChunk(engine, maxChunkSize))

	return &uploadHandlerFixture{router: router, engine: engine, owner: owner}
}

func (f *uploadHandlerFixture) patch(t *testing.T, sessionID, offset, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/uploads/"+sessionID, strings.NewReader(body))
	req.Header.Set("Upload-Offset", offset)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleAppendChunk_CommitsChunk(t *testing.T) {
	f := setupUploadHandlers(t, 1024)
	record, err := f.engine.Create(context.Background(), f.owner.ID, 10, "", false)
	require.NoError(t, err)

	w := f.patch(t, record.ID, "0", "01234")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "5", w.Header().Get("Upload-Offset"))
}

func TestHandleAppendChunk_ChunkOverLimitRejected(t *testing.T) {
	f := setupUploadHandlers(t, 4)
	ctx := context.Background()
	record, err := f.engine.Create(ctx, f.owner.ID, 10, "", false)
	require.NoError(t, err)

	w := f.patch(t, record.ID, "0", "01234")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Nothing was written
	status, err := f.engine.Inspect(ctx, record.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Offset)
}

func TestHandleAppendChunk_LimitCapsBodyWithoutContentLength(t *testing.T) {
	f := setupUploadHandlers(t, 4)
	ctx := context.Background()
	record, err := f.engine.Create(ctx, f.owner.ID, 10, "", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/uploads/"+record.ID, strings.NewReader("01234"))
	req.Header.Set("Upload-Offset", "0")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNoContent, w.Code)

	// The oversized body never advanced the session
	status, err := f.engine.Inspect(ctx, record.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Offset)
}

func TestHandleAppendChunk_MissingOffsetHeader(t *testing.T) {
	f := setupUploadHandlers(t, 1024)
	record, err := f.engine.Create(context.Background(), f.owner.ID, 10, "", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/uploads/"+record.ID, strings.NewReader("01234"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAppendChunk_StaleOffsetConflicts(t *testing.T) {
	f := setupUploadHandlers(t, 1024)
	ctx := context.Background()
	record, err := f.engine.Create(ctx, f.owner.ID, 10, "", false)
	require.NoError(t, err)

	w := f.patch(t, record.ID, "0", "01234")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.patch(t, record.ID, "0", "01234")

	assert.Equal(t, http.StatusConflict, w.Code)

	status, err := f.engine.Inspect(ctx, record.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), status.Offset)
}
