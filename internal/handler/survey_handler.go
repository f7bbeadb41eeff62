package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mhp-survey-api/internal/dto"
	"github.com/noah-isme/mhp-survey-api/internal/middleware"
	"github.com/noah-isme/mhp-survey-api/internal/service"
	appErrors "github.com/noah-isme/mhp-survey-api/pkg/errors"
	"github.com/noah-isme/mhp-survey-api/pkg/response"
)

// SurveyHandler exposes template and submission endpoints.
type SurveyHandler struct {
	surveys *service.SurveyService
}

// NewSurveyHandler constructs SurveyHandler.
func NewSurveyHandler(surveys *service.SurveyService) *SurveyHandler {
	return &SurveyHandler{surveys: surveys}
}

// ResolveLink returns the template behind an unauthenticated survey link.
func (h *SurveyHandler) ResolveLink(c *gin.Context) {
	template, err := h.surveys.ResolveHashLink(c.Request.Context(), c.Param("hash"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Submit stores one survey response. Works both for authenticated students
// and for anonymous visitors following a survey link.
func (h *SurveyHandler) Submit(c *gin.Context) {
	var req dto.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.surveys.Submit(c.Request.Context(), c.Param("templateId"), middleware.Claims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CreateTemplate stores a new survey template for the admin's institution.
func (h *SurveyHandler) CreateTemplate(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	template, err := h.surveys.CreateTemplate(c.Request.Context(), claims.InstitutionID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// GetTemplate returns one of the admin's institution templates.
func (h *SurveyHandler) GetTemplate(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	template, err := h.surveys.GetTemplate(c.Request.Context(), claims.InstitutionID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// ListTemplates lists the admin's institution templates.
func (h *SurveyHandler) ListTemplates(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	templates, err := h.surveys.ListTemplates(c.Request.Context(), claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}
