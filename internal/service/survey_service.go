package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/dto"
	"github.com/noah-isme/mhp-survey-api/internal/models"
	appErrors "github.com/noah-isme/mhp-survey-api/pkg/errors"
)

type templateStore interface {
	Create(ctx context.Context, template *models.SurveyTemplate) error
	GetByID(ctx context.Context, id string) (*models.SurveyTemplate, error)
	GetByHashLink(ctx context.Context, hashLink string) (*models.SurveyTemplate, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.SurveyTemplate, error)
}

type responseStore interface {
	CreateWithAnswers(ctx context.Context, resp *models.SurveyResponse) error
}

type anonymousStudentStore interface {
	GetOrCreate(ctx context.Context, email, templateID string) (*models.AnonymousStudent, error)
}

type submissionScreener interface {
	ScreenNumeric(answers []models.QuestionResponse) bool
	Schedule(responseID string, questionIDs []string) error
}

// SurveyService owns template management and response submission. Submission
// runs the rule screener inline, persists atomically, then hands the
// response to the async text-screening path. Screening problems never fail
// a submission.
type SurveyService struct {
	templates templateStore
	responses responseStore
	students  anonymousStudentStore
	screening submissionScreener
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewSurveyService constructs the survey service.
func NewSurveyService(templates templateStore, responses responseStore, students anonymousStudentStore, screening submissionScreener, cache *CacheService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *SurveyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurveyService{
		templates: templates,
		responses: responses,
		students:  students,
		screening: screening,
		cache:     cache,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit validates and stores one survey response for the template. Actor is
// nil for unauthenticated link submissions, in which case the email from the
// payload identifies (or creates) the anonymous student.
func (s *SurveyService) Submit(ctx context.Context, templateID string, actor *models.JWTClaims, req dto.SubmitResponseRequest) (*dto.SubmitResponseResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	answers, err := buildAnswers(template.Questions, req.Answers)
	if err != nil {
		return nil, err
	}

	response := &models.SurveyResponse{
		TemplateID: template.ID,
		Answers:    answers,
	}

	if actor != nil && actor.Role == models.RoleStudent {
		userID := actor.UserID
		response.UserID = &userID
	} else {
		if strings.TrimSpace(req.Email) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "email is required for anonymous submissions")
		}
		student, err := s.students.GetOrCreate(ctx, req.Email, template.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve anonymous student")
		}
		response.AnonymousStudentID = &student.ID
	}

	response.Flagged = s.screening.ScreenNumeric(answers)

	if err := s.responses.CreateWithAnswers(ctx, response); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store response")
	}

	if response.Flagged && s.metrics != nil {
		s.metrics.RecordResponseFlagged("rule")
	}

	if err := s.screening.Schedule(response.ID, textQuestionIDs(template.Questions)); err != nil {
		// Fire-and-forget: the student's submission already succeeded.
		s.logger.Warn("failed to schedule text screening", zap.String("response_id", response.ID), zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("dashboard:flagged:%s:*", template.InstitutionID)); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}

	return &dto.SubmitResponseResult{
		ResponseID:  response.ID,
		Flagged:     response.Flagged,
		SubmittedAt: response.CreatedAt,
	}, nil
}

// buildAnswers maps submitted answers onto template questions, enforcing
// exactly one answer per question and the likert/text shape invariant.
func buildAnswers(questions []models.SurveyQuestion, inputs []dto.AnswerInput) ([]models.QuestionResponse, error) {
	byID := make(map[string]models.SurveyQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	answered := make(map[string]bool, len(inputs))
	answers := make([]models.QuestionResponse, 0, len(inputs))
	for _, input := range inputs {
		question, ok := byID[input.QuestionID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s does not belong to this template", input.QuestionID))
		}
		if answered[input.QuestionID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s answered more than once", input.QuestionID))
		}
		answered[input.QuestionID] = true

		answer := models.QuestionResponse{QuestionID: question.ID}
		switch question.QuestionType {
		case models.QuestionTypeLikert:
			if input.LikertValue == nil || input.Text != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s expects a likert value", question.ID))
			}
			if *input.LikertValue < models.LikertMin || *input.LikertValue > models.LikertMax {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("likert value for question %s must be between %d and %d", question.ID, models.LikertMin, models.LikertMax))
			}
			answer.LikertValue = input.LikertValue
		case models.QuestionTypeText:
			if input.Text == nil || input.LikertValue != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s expects a text answer", question.ID))
			}
			answer.TextResponse = input.Text
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s has unsupported type", question.ID))
		}
		answers = append(answers, answer)
	}

	if len(answered) != len(questions) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "every template question must be answered exactly once")
	}

	return answers, nil
}

func textQuestionIDs(questions []models.SurveyQuestion) []string {
	sorted := make([]models.SurveyQuestion, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	var ids []string
	for _, q := range sorted {
		if q.QuestionType == models.QuestionTypeText {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// ResolveHashLink loads the template behind an unauthenticated survey link.
func (s *SurveyService) ResolveHashLink(ctx context.Context, hashLink string) (*models.SurveyTemplate, error) {
	template, err := s.templates.GetByHashLink(ctx, hashLink)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey link not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve survey link")
	}
	return template, nil
}

// CreateTemplate stores a new template for the institution, generating the
// unauthenticated link token.
func (s *SurveyService) CreateTemplate(ctx context.Context, institutionID string, req dto.CreateTemplateRequest) (*models.SurveyTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	template := &models.SurveyTemplate{
		InstitutionID: institutionID,
		Name:          req.Name,
		HashLink:      generateHashLink(),
	}
	for _, q := range req.Questions {
		template.Questions = append(template.Questions, models.SurveyQuestion{
			QuestionText: q.Text,
			QuestionType: models.QuestionType(q.Type),
			Category:     q.Category,
			Position:     q.Position,
		})
	}

	if err := s.templates.Create(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return template, nil
}

// GetTemplate loads one template with its questions, scoped to the
// institution so admins cannot read across tenants.
func (s *SurveyService) GetTemplate(ctx context.Context, institutionID, templateID string) (*models.SurveyTemplate, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	if template.InstitutionID != institutionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "survey template not found")
	}
	return template, nil
}

// ListTemplates returns the institution's templates.
func (s *SurveyService) ListTemplates(ctx context.Context, institutionID string) ([]models.SurveyTemplate, error) {
	templates, err := s.templates.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

func generateHashLink() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
