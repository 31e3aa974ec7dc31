package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"formforge/internal/database"
	"formforge/internal/errcode"
	"formforge/internal/form"
	"formforge/internal/pdf"
	"formforge/internal/tasks"
)

// ObjectStore is the storage surface the render worker needs.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	Open(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

// RenderTaskHandler consumes submission render tasks.
type RenderTaskHandler struct {
	db          *gorm.DB
	storage     ObjectStore
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewRenderTaskHandler builds the task handler.
func NewRenderTaskHandler(db *gorm.DB, storage ObjectStore, redisClient *redis.Client, logger *slog.Logger) *RenderTaskHandler {
	return &RenderTaskHandler{
		db:          db,
		storage:     storage,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask implements asynq.Handler.
func (h *RenderTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.RenderSubmissionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("submission_id", uint64(payload.SubmissionID)),
	)
	log.Info("starting submission render task")

	var submission database.Submission
	if err := h.db.WithContext(ctx).First(&submission, payload.SubmissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("submission not found, skipping task")
			return nil
		}
		log.Error("query submission failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := RenderNotifyMessage{
			Status:        "error",
			SubmissionID:  submission.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishRenderNotify(ctx, submission.UserID, notify); err != nil {
			log.Error("publish render error notification failed", slog.Any("error", err))
		}
		if err := h.db.WithContext(ctx).Model(&submission).
			Update("status", database.SubmissionFailed).Error; err != nil {
			log.Error("mark submission failed", slog.Any("error", err))
		}
	}()

	var template database.Template
	if err := h.db.WithContext(ctx).First(&template, submission.TemplateID).Error; err != nil {
		log.Error("query template failed", slog.Any("error", err))
		return err
	}

	var uploads []database.Upload
	if err := h.db.WithContext(ctx).
		Where("submission_id = ?", submission.ID).
		Order("id ASC").
		Find(&uploads).Error; err != nil {
		log.Error("query uploads failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&submission).
		Update("status", database.SubmissionRendering).Error; err != nil {
		log.Error("mark submission rendering", slog.Any("error", err))
		return err
	}

	parsed, err := form.ParseTemplate(template.Fields)
	if err != nil {
		log.Error("template fields are corrupt", slog.Any("error", err))
		return err
	}

	values, signatures, err := decodeSubmissionData(submission)
	if err != nil {
		log.Error("submission data is corrupt", slog.Any("error", err))
		return err
	}

	workDir, err := os.MkdirTemp("", "formforge-render-*")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("clean work directory failed", slog.Any("error", err))
		}
	}()

	values["files"] = h.stageUploads(ctx, log, workDir, uploads)

	outputPath := filepath.Join(workDir, fmt.Sprintf("submission-%d-%s.pdf", submission.ID, uuid.NewString()))
	path, report, err := pdf.GenerateWithReport(values, signatures, pdf.Options{
		OutputPath: outputPath,
		Template:   parsed.Fields,
		Meta: form.Meta{
			TemplateName:        template.Name,
			TemplateDescription: template.Description,
		},
		Logger: log,
	})
	if err != nil {
		log.Error("render submission pdf failed", slog.Any("error", err))
		return err
	}
	if !pdf.Validate(path) {
		return fmt.Errorf("rendered pdf %s failed validation", path)
	}

	pdfBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rendered pdf: %w", err)
	}

	objectName := fmt.Sprintf("generated-forms/%d/%s.pdf", submission.UserID, uuid.NewString())
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"pdf_object_key": objectName,
		"status":         database.SubmissionCompleted,
	}
	if err := h.db.WithContext(ctx).Model(&submission).Updates(update).Error; err != nil {
		log.Error("update submission failed", slog.Any("error", err))
		return err
	}

	notify := RenderNotifyMessage{
		Status:        "completed",
		SubmissionID:  submission.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if report.HasFallback() {
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "some images were missing or invalid and were skipped"
		for _, id := range report.Fallbacks {
			notify.MissingFields = append(notify.MissingFields, string(id))
		}
		log.Warn("pdf rendered with fallbacks",
			slog.Int("fallback_count", len(report.Fallbacks)),
			slog.Any("fields", notify.MissingFields),
		)
	}
	if err := h.publishRenderNotify(ctx, submission.UserID, notify); err != nil {
		log.Error("publish render notification failed", slog.Any("error", err))
		return err
	}

	log.Info("submission render task completed")
	return nil
}

// stageUploads copies the submission's stored attachments into the
// work directory and returns the raw files array the normalizer
// expects. Objects that cannot be staged are left out; the renderer
// shows a placeholder cell for them.
func (h *RenderTaskHandler) stageUploads(ctx context.Context, log *slog.Logger, workDir string, uploads []database.Upload) []any {
	files := make([]any, 0, len(uploads))
	for _, u := range uploads {
		staged, err := h.stageOne(ctx, workDir, u)
		entry := map[string]any{
			"fieldId": u.FieldID,
			"name":    u.FileName,
		}
		if err != nil {
			log.Warn("stage upload failed",
				slog.String("object_key", u.ObjectKey),
				slog.Any("error", err),
			)
			// Keep the entry without a path so the field still lists
			// the file name.
		} else {
			entry["path"] = staged
		}
		files = append(files, entry)
	}
	return files
}

func (h *RenderTaskHandler) stageOne(ctx context.Context, workDir string, u database.Upload) (string, error) {
	reader, err := h.storage.Open(ctx, u.ObjectKey)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	target := filepath.Join(workDir, fmt.Sprintf("upload-%d%s", u.ID, filepath.Ext(u.FileName)))
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return "", fmt.Errorf("copy object %q: %w", u.ObjectKey, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("flush staged file: %w", err)
	}
	return target, nil
}

func decodeSubmissionData(s database.Submission) (map[string]any, map[string]string, error) {
	values := make(map[string]any)
	if len(s.Values) > 0 {
		if err := json.Unmarshal(s.Values, &values); err != nil {
			return nil, nil, fmt.Errorf("decode submission values: %w", err)
		}
	}
	signatures := make(map[string]string)
	if len(s.Signatures) > 0 {
		if err := json.Unmarshal(s.Signatures, &signatures); err != nil {
			return nil, nil, fmt.Errorf("decode submission signatures: %w", err)
		}
	}
	return values, signatures, nil
}

func (h *RenderTaskHandler) publishRenderNotify(ctx context.Context, userID uint, notify RenderNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
