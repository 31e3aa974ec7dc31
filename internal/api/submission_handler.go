package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"formforge/internal/api/middleware"
	"formforge/internal/database"
	"formforge/internal/tasks"
)

// TaskQueue is the slice of asynq.Client the handlers need.
type TaskQueue interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ObjectStore is the slice of storage.Client the handlers need.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// SubmissionHandler accepts filled-in forms and hands them to the render
// queue.
type SubmissionHandler struct {
	db      *gorm.DB
	queue   TaskQueue
	storage ObjectStore
}

func NewSubmissionHandler(db *gorm.DB, queue TaskQueue, store ObjectStore) *SubmissionHandler {
	return &SubmissionHandler{db: db, queue: queue, storage: store}
}

var errInvalidSubmissionID = errors.New("invalid submission id")

type createSubmissionRequest struct {
	TemplateID uint           `json:"template_id" binding:"required"`
	Values     datatypes.JSON `json:"values" binding:"required"`
	Signatures datatypes.JSON `json:"signatures"`
}

type submissionResponse struct {
	ID         uint      `json:"id"`
	TemplateID uint      `json:"template_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newSubmissionResponse(s database.Submission) submissionResponse {
	return submissionResponse{
		ID:         s.ID,
		TemplateID: s.TemplateID,
		Status:     s.Status,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// CreateSubmission stores the answers and enqueues the PDF render task.
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var values map[string]any
	if err := json.Unmarshal(req.Values, &values); err != nil {
		BadRequest(c, "values must be a JSON object")
		return
	}
	if len(req.Signatures) > 0 {
		var signatures map[string]any
		if err := json.Unmarshal(req.Signatures, &signatures); err != nil {
			BadRequest(c, "signatures must be a JSON object")
			return
		}
	}

	ctx := c.Request.Context()

	var template database.Template
	if err := h.db.WithContext(ctx).
		Where("id = ?", req.TemplateID).
		Where("user_id = ? OR is_public = ?", userID, true).
		First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to query template")
		return
	}

	submission := database.Submission{
		TemplateID: template.ID,
		UserID:     userID,
		Values:     req.Values,
		Signatures: req.Signatures,
		Status:     database.SubmissionPending,
	}

	if err := h.db.WithContext(ctx).Create(&submission).Error; err != nil {
		Internal(c, "failed to create submission")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewRenderSubmissionTask(submission.ID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.queue.Enqueue(task, asynq.MaxRetry(5))
	if err != nil {
		Internal(c, "failed to enqueue render")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"submission": newSubmissionResponse(submission),
		"task_id":    info.ID,
	})
}

// GetSubmission reports the render status of one submission.
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	submission, err := h.getSubmissionForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondSubmissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSubmissionResponse(*submission))
}

// GetDownloadLink returns a presigned URL for the rendered PDF.
func (h *SubmissionHandler) GetDownloadLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	submission, err := h.getSubmissionForUser(ctx, c.Param("id"), userID)
	if err != nil {
		respondSubmissionError(c, err)
		return
	}

	if submission.Status != database.SubmissionCompleted || submission.PdfObjectKey == "" {
		Conflict(c, "pdf not ready")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(ctx, submission.PdfObjectKey, 5*time.Minute)
	if err != nil {
		Internal(c, "failed to sign download url")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        signedURL,
		"expires_in": int((5 * time.Minute).Seconds()),
	})
}

// DeleteSubmission removes a submission together with its rendered PDF
// and staged upload objects.
func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	submission, err := h.getSubmissionForUser(ctx, c.Param("id"), userID)
	if err != nil {
		respondSubmissionError(c, err)
		return
	}

	var uploads []database.Upload
	if err := h.db.WithContext(ctx).
		Where("submission_id = ?", submission.ID).
		Find(&uploads).Error; err != nil {
		Internal(c, "failed to query uploads")
		return
	}

	if submission.PdfObjectKey != "" {
		if err := h.storage.DeleteObject(ctx, submission.PdfObjectKey); err != nil {
			Internal(c, "failed to delete pdf object")
			return
		}
	}
	for _, u := range uploads {
		if err := h.storage.DeleteObject(ctx, u.ObjectKey); err != nil {
			Internal(c, "failed to delete upload object")
			return
		}
	}

	if err := h.db.WithContext(ctx).
		Where("submission_id = ?", submission.ID).
		Delete(&database.Upload{}).Error; err != nil {
		Internal(c, "failed to delete uploads")
		return
	}
	if err := h.db.WithContext(ctx).Delete(submission).Error; err != nil {
		Internal(c, "failed to delete submission")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *SubmissionHandler) getSubmissionForUser(ctx context.Context, rawID string, userID uint) (*database.Submission, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return nil, errInvalidSubmissionID
	}

	var submission database.Submission
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(id), userID).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func respondSubmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidSubmissionID):
		BadRequest(c, "invalid submission id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "submission not found")
	default:
		Internal(c, "failed to query submission")
	}
}
