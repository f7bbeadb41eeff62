package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mhp-survey-api/internal/middleware"
	"github.com/noah-isme/mhp-survey-api/internal/models"
	"github.com/noah-isme/mhp-survey-api/internal/service"
)

// Handlers aggregates the route handlers for registration.
type Handlers struct {
	Auth         *AuthHandler
	Surveys      *SurveyHandler
	Dashboard    *DashboardHandler
	Institutions *InstitutionHandler
}

// RegisterRoutes wires the API surface onto the router group.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, auth *service.AuthService) {
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
	}

	surveys := api.Group("/surveys")
	{
		surveys.GET("/link/:hash", h.Surveys.ResolveLink)
		surveys.POST("/:templateId/responses", middleware.OptionalJWT(auth), h.Surveys.Submit)
	}

	templates := api.Group("/templates", middleware.JWT(auth), middleware.RBAC(models.RoleAdmin))
	{
		templates.GET("", h.Surveys.ListTemplates)
		templates.GET("/:id", h.Surveys.GetTemplate)
		templates.POST("", h.Surveys.CreateTemplate)
	}

	dashboard := api.Group("/dashboard", middleware.JWT(auth), middleware.RBAC(models.RoleAdmin))
	{
		dashboard.GET("/flagged", h.Dashboard.FlaggedStudents)
		dashboard.GET("/flagged/export", h.Dashboard.ExportFlaggedStudents)
	}

	students := api.Group("/students", middleware.JWT(auth), middleware.RBAC(models.RoleAdmin))
	{
		students.GET("/:id/flag", h.Dashboard.StudentFlag)
	}

	institutions := api.Group("/institutions")
	{
		institutions.GET("", h.Institutions.List)
		institutions.GET("/:id", h.Institutions.Get)
		institutions.POST("", middleware.JWT(auth), middleware.RBAC(models.RoleAdmin), h.Institutions.Create)
	}
}
