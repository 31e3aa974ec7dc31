package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"formforge/internal/database"
	"formforge/internal/form"
)

// TemplateHandler serves CRUD for form templates.
type TemplateHandler struct {
	db *gorm.DB
}

func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

var errInvalidTemplateID = errors.New("invalid template id")

type templateRequest struct {
	Name        string         `json:"name" binding:"required,max=255"`
	Description string         `json:"description"`
	Fields      datatypes.JSON `json:"fields" binding:"required"`
	IsPublic    bool           `json:"is_public"`
}

type templateListItem struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
}

type templateResponse struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Fields      datatypes.JSON `json:"fields"`
	IsPublic    bool           `json:"is_public"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func newTemplateResponse(t database.Template) templateResponse {
	return templateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Fields:      t.Fields,
		IsPublic:    t.IsPublic,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// CreateTemplate stores a new template after checking the field definitions
// parse.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if _, err := form.ParseTemplate(req.Fields); err != nil {
		BadRequest(c, "invalid field definitions: "+err.Error())
		return
	}

	template := database.Template{
		Name:        req.Name,
		Description: req.Description,
		Fields:      req.Fields,
		IsPublic:    req.IsPublic,
		UserID:      userID,
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&template).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}

	c.JSON(http.StatusCreated, newTemplateResponse(template))
}

// ListTemplates returns the caller's templates plus any public ones.
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var templates []database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? OR is_public = ?", userID, true).
		Order("created_at DESC").
		Find(&templates).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}

	items := make([]templateListItem, 0, len(templates))
	for _, t := range templates {
		items = append(items, templateListItem{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			IsPublic:    t.IsPublic,
			CreatedAt:   t.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, items)
}

// GetTemplate returns one template the caller may read.
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	template, err := h.getTemplateForUser(c.Request.Context(), c.Param("id"), userID, true)
	if err != nil {
		respondTemplateError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(*template))
}

// UpdateTemplate replaces a template the caller owns.
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if _, err := form.ParseTemplate(req.Fields); err != nil {
		BadRequest(c, "invalid field definitions: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	template, err := h.getTemplateForUser(ctx, c.Param("id"), userID, false)
	if err != nil {
		respondTemplateError(c, err)
		return
	}

	template.Name = req.Name
	template.Description = req.Description
	template.Fields = req.Fields
	template.IsPublic = req.IsPublic

	if err := h.db.WithContext(ctx).Save(template).Error; err != nil {
		Internal(c, "failed to update template")
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(*template))
}

// DeleteTemplate removes a template the caller owns.
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	template, err := h.getTemplateForUser(ctx, c.Param("id"), userID, false)
	if err != nil {
		respondTemplateError(c, err)
		return
	}

	if err := h.db.WithContext(ctx).Delete(template).Error; err != nil {
		Internal(c, "failed to delete template")
		return
	}

	c.Status(http.StatusNoContent)
}

// getTemplateForUser loads a template by path id. When includePublic is set,
// public templates owned by other users are readable too.
func (h *TemplateHandler) getTemplateForUser(ctx context.Context, rawID string, userID uint, includePublic bool) (*database.Template, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return nil, errInvalidTemplateID
	}

	query := h.db.WithContext(ctx).Where("id = ?", uint(id))
	if includePublic {
		query = query.Where("user_id = ? OR is_public = ?", userID, true)
	} else {
		query = query.Where("user_id = ?", userID)
	}

	var template database.Template
	if err := query.First(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func respondTemplateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidTemplateID):
		BadRequest(c, "invalid template id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "template not found")
	default:
		Internal(c, "failed to query template")
	}
}
