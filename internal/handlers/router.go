package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhangwb/kaohe/internal/auth"
	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/models"
)

// RegisterRoutes mounts the full API surface on the router. Scoring routes
// require a scorer role, admin routes the admin role.
func RegisterRoutes(
	router *gin.Engine,
	tokens *auth.TokenManager,
	authHandler *AuthHandler,
	taskHandler *TaskHandler,
	scoreHandler *ScoreHandler,
	draftHandler *DraftHandler,
	adminHandler *AdminHandler,
) {
	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "kaohe",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	authGroup := api.Group("/auth")
	{
		authGroup.GET("/captcha", authHandler.Captcha)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)

		authed := authGroup.Group("", middleware.RequireAuth(tokens))
		authed.GET("/me", authHandler.Me)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.POST("/first-change-password", authHandler.FirstChangePassword)
	}

	authed := api.Group("", middleware.RequireAuth(tokens))

	tasks := authed.Group("/tasks")
	{
		tasks.GET("", middleware.RequireRole(models.RoleAdmin), taskHandler.List)
		tasks.POST("", middleware.RequireRole(models.RoleAdmin), taskHandler.Create)
		tasks.PATCH("/:id/status", middleware.RequireRole(models.RoleAdmin), taskHandler.UpdateStatus)
		tasks.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), taskHandler.Delete)
		tasks.GET("/my-tasks", middleware.RequireRole(models.RoleLeader, models.RoleManager), taskHandler.MyTasks)
	}

	scores := authed.Group("/scores", middleware.RequireRole(models.RoleLeader, models.RoleManager))
	{
		scores.GET("/task/:taskId", scoreHandler.Form)
		scores.POST("/submit", scoreHandler.Submit)
	}

	drafts := authed.Group("/drafts", middleware.RequireRole(models.RoleLeader, models.RoleManager))
	{
		drafts.POST("/draft", draftHandler.Save)
		drafts.GET("/draft/:taskId", draftHandler.Get)
		drafts.DELETE("/draft/:taskId", draftHandler.Delete)
	}

	admin := authed.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.POST("/users", adminHandler.CreateUser)
		// The static route wins over /users/:id for the literal "all".
		admin.DELETE("/users/all", adminHandler.DeleteAllUsers)
		admin.PUT("/users/:id", adminHandler.UpdateUser)
		admin.POST("/users/:id/reset-password", adminHandler.ResetPassword)
		admin.DELETE("/users/:id", adminHandler.DeleteUser)

		admin.GET("/progress/:taskId", adminHandler.Progress)
		admin.GET("/statistics/:taskId", adminHandler.Statistics)
		admin.GET("/scores/:taskId/:targetId", adminHandler.TargetScores)
		admin.GET("/export-scores/:taskId", adminHandler.ExportScores)
		admin.GET("/export-scores/:taskId/xlsx", adminHandler.ExportScoresXLSX)
		admin.GET("/audit-logs", adminHandler.AuditLogs)
	}
}
