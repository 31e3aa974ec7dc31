package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"formforge/internal/database"
)

type fakeStorage struct {
	uploaded map[string][]byte
	deleted  []string
	presign  map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		uploaded: map[string][]byte{},
		presign:  map[string]string{},
	}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	if v, ok := s.presign[objectKey]; ok {
		return v, nil
	}
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type fakeQueue struct {
	enqueued []*asynq.Task
}

func (q *fakeQueue) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.enqueued = append(q.enqueued, task)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newSubmissionRouter wires the handler behind a stub auth middleware
// that pins the user id.
func newSubmissionRouter(h *SubmissionHandler, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/v1/submissions")
	group.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	group.POST("", h.CreateSubmission)
	group.GET("/:id", h.GetSubmission)
	group.GET("/:id/download-link", h.GetDownloadLink)
	group.DELETE("/:id", h.DeleteSubmission)
	return router
}

func seedTemplate(t *testing.T, db *gorm.DB, userID uint) database.Template {
	t.Helper()
	template := database.Template{
		Name:   "Roof inspection",
		Fields: []byte(`{"fields":[{"id":1,"kind":"text","label":"Inspector","position":{"x":40,"y":40},"size":{"width":320,"height":60}}]}`),
		UserID: userID,
	}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return template
}

func TestCreateSubmissionEnqueuesRender(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeQueue{}
	h := NewSubmissionHandler(db, queue, newFakeStorage())
	router := newSubmissionRouter(h, 1)

	template := seedTemplate(t, db, 1)

	body := map[string]any{
		"template_id": template.ID,
		"values":      map[string]any{"1": "R. Ortega"},
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/submissions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("enqueued %d tasks", len(queue.enqueued))
	}

	var stored database.Submission
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("load submission: %v", err)
	}
	if stored.Status != database.SubmissionPending || stored.TemplateID != template.ID {
		t.Fatalf("stored submission: %+v", stored)
	}
}

func TestCreateSubmissionRejectsForeignTemplate(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeQueue{}
	h := NewSubmissionHandler(db, queue, newFakeStorage())
	router := newSubmissionRouter(h, 1)

	// Private template owned by another user.
	template := seedTemplate(t, db, 2)

	body := map[string]any{
		"template_id": template.ID,
		"values":      map[string]any{"1": "x"},
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/submissions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("enqueued %d tasks for a rejected submission", len(queue.enqueued))
	}
}

func TestCreateSubmissionRejectsNonObjectValues(t *testing.T) {
	db := newTestDB(t)
	h := NewSubmissionHandler(db, &fakeQueue{}, newFakeStorage())
	router := newSubmissionRouter(h, 1)

	req := httptest.NewRequest(http.MethodPost, "/v1/submissions",
		strings.NewReader(`{"template_id":1,"values":[1,2,3]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGetDownloadLink(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStorage()
	h := NewSubmissionHandler(db, &fakeQueue{}, store)
	router := newSubmissionRouter(h, 1)

	template := seedTemplate(t, db, 1)

	pending := database.Submission{TemplateID: template.ID, UserID: 1, Status: database.SubmissionPending}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	done := database.Submission{
		TemplateID:   template.ID,
		UserID:       1,
		Status:       database.SubmissionCompleted,
		PdfObjectKey: "generated-forms/1/done.pdf",
	}
	if err := db.Create(&done).Error; err != nil {
		t.Fatalf("seed completed: %v", err)
	}
	store.presign[done.PdfObjectKey] = "https://signed.example/done.pdf"

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/submissions/1/download-link", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("pending status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/submissions/2/download-link", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("completed status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["url"] != "https://signed.example/done.pdf" {
		t.Fatalf("url = %v", resp["url"])
	}

	// Another user's submission stays hidden.
	otherRouter := newSubmissionRouter(h, 9)
	rec = httptest.NewRecorder()
	otherRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/submissions/2/download-link", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign status = %d", rec.Code)
	}
}

func TestDeleteSubmissionRemovesObjects(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStorage()
	h := NewSubmissionHandler(db, &fakeQueue{}, store)
	router := newSubmissionRouter(h, 1)

	template := seedTemplate(t, db, 1)
	submission := database.Submission{
		TemplateID:   template.ID,
		UserID:       1,
		Status:       database.SubmissionCompleted,
		PdfObjectKey: "generated-forms/1/done.pdf",
	}
	if err := db.Create(&submission).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	upload := database.Upload{
		SubmissionID: submission.ID,
		FieldID:      "5",
		FileName:     "roof.png",
		ObjectKey:    "submission-uploads/1/roof.png",
	}
	if err := db.Create(&upload).Error; err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/submissions/1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if len(store.deleted) != 2 {
		t.Fatalf("deleted objects = %v", store.deleted)
	}
	var count int64
	if err := db.Model(&database.Submission{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("submission rows left: %d", count)
	}
}
