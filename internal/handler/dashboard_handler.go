package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mhp-survey-api/internal/middleware"
	"github.com/noah-isme/mhp-survey-api/internal/models"
	"github.com/noah-isme/mhp-survey-api/internal/service"
	appErrors "github.com/noah-isme/mhp-survey-api/pkg/errors"
	"github.com/noah-isme/mhp-survey-api/pkg/response"
)

// DashboardHandler exposes the flagged-student views for administrators.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// StudentFlag reports whether one student is currently flagged.
func (h *DashboardHandler) StudentFlag(c *gin.Context) {
	kind := models.StudentKind(c.DefaultQuery("kind", string(models.StudentKindRegistered)))
	if kind != models.StudentKindRegistered && kind != models.StudentKindAnonymous {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kind must be registered or anonymous"))
		return
	}

	status, err := h.dashboard.IsStudentFlagged(c.Request.Context(), models.StudentIdentity{Kind: kind, ID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// FlaggedStudents lists the currently-flagged roster for the admin's institution.
func (h *DashboardHandler) FlaggedStudents(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	population := models.Population(c.DefaultQuery("population", string(models.PopulationAll)))
	roster, err := h.dashboard.FlaggedRoster(c.Request.Context(), claims.InstitutionID, population)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportFlaggedStudents downloads the roster as CSV or PDF.
func (h *DashboardHandler) ExportFlaggedStudents(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	population := models.Population(c.DefaultQuery("population", string(models.PopulationAll)))
	payload, filename, contentType, err := h.dashboard.ExportRoster(c.Request.Context(), claims.InstitutionID, population, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}
