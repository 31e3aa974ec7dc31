package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"formforge/internal/database"
)

const maxUploadBytes = 20 << 20

// UploadHandler stores photo-field attachments for a submission.
type UploadHandler struct {
	db        *gorm.DB
	storage   ObjectStore
	clamdAddr string
	logger    *slog.Logger
}

func NewUploadHandler(db *gorm.DB, store ObjectStore, clamdAddr string, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		db:        db,
		storage:   store,
		clamdAddr: clamdAddr,
		logger:    logger,
	}
}

// UploadAttachment accepts one multipart file for a field of a pending
// submission, scans it when clamd is configured, and records the object key.
func (h *UploadHandler) UploadAttachment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	submissionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || submissionID == 0 {
		BadRequest(c, "invalid submission id")
		return
	}

	fieldID := strings.TrimSpace(c.PostForm("field_id"))
	if fieldID == "" {
		BadRequest(c, "missing field_id")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxUploadBytes {
		BadRequest(c, "file too large")
		return
	}

	ctx := c.Request.Context()

	var submission database.Submission
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(submissionID), userID).
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "submission not found")
			return
		}
		Internal(c, "failed to query submission")
		return
	}
	if submission.Status != database.SubmissionPending {
		Conflict(c, "submission already rendered")
		return
	}

	if h.clamdAddr != "" {
		clean, err := h.scanFile(file)
		if err != nil {
			h.logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer fileReader.Close()

	ext := filepath.Ext(file.Filename)
	objectKey := fmt.Sprintf("submission-uploads/%d/%s%s", submission.ID, uuid.NewString(), ext)
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := h.storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		h.logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	upload := database.Upload{
		SubmissionID: submission.ID,
		FieldID:      fieldID,
		FileName:     filepath.Base(file.Filename),
		ObjectKey:    objectKey,
		Size:         file.Size,
		ContentType:  contentType,
	}
	if err := h.db.WithContext(ctx).Create(&upload).Error; err != nil {
		Internal(c, "failed to record upload")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         upload.ID,
		"field_id":   upload.FieldID,
		"file_name":  upload.FileName,
		"object_key": upload.ObjectKey,
	})
}

func (h *UploadHandler) scanFile(file *multipart.FileHeader) (bool, error) {
	fileReader, err := file.Open()
	if err != nil {
		return false, err
	}
	defer fileReader.Close()

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	if err != nil {
		return false, err
	}

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return false, nil
		}
	}
	return true, nil
}
