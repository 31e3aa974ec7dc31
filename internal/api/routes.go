package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"formforge/internal/api/middleware"
	"formforge/internal/auth"
	"formforge/internal/storage"
)

// RegisterRoutes wires the v1 API surface onto the router.
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.Service,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
	clamdAddr string,
) {
	templateHandler := NewTemplateHandler(db)
	submissionHandler := NewSubmissionHandler(db, asynqClient, storageClient)
	uploadHandler := NewUploadHandler(db, storageClient, clamdAddr, logger)
	authHandler := NewAuthHandler(db, authService, logger)
	wsHandler := NewWsHandler(redisClient, authService, logger)
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.PUT("/:id", templateHandler.UpdateTemplate)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
		}

		submissionGroup := v1.Group("/submissions")
		submissionGroup.Use(authMiddleware)
		{
			submissionGroup.POST("", submissionHandler.CreateSubmission)
			submissionGroup.GET("/:id", submissionHandler.GetSubmission)
			submissionGroup.GET("/:id/download-link", submissionHandler.GetDownloadLink)
			submissionGroup.DELETE("/:id", submissionHandler.DeleteSubmission)
			submissionGroup.POST("/:id/uploads", uploadHandler.UploadAttachment)
		}
	}
}
