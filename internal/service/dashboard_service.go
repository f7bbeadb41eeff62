package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/dto"
	"github.com/noah-isme/mhp-survey-api/internal/models"
	appErrors "github.com/noah-isme/mhp-survey-api/pkg/errors"
	"github.com/noah-isme/mhp-survey-api/pkg/export"
)

type flagStore interface {
	LatestFlag(ctx context.Context, student models.StudentIdentity) (bool, error)
	ListFlaggedStudents(ctx context.Context, institutionID string, population models.Population) ([]models.FlaggedStudent, error)
}

// DashboardService derives the administrator views of currently-flagged
// students. Flag status is always re-derived from the latest response rows;
// only the composed roster payload is cached, with a short TTL, and the
// cache is invalidated on submission.
type DashboardService struct {
	responses flagStore
	cache     *CacheService
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(responses flagStore, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{responses: responses, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// IsStudentFlagged reports whether the student's most recent response is
// flagged. Never cached: the answer must track the underlying rows exactly.
func (s *DashboardService) IsStudentFlagged(ctx context.Context, student models.StudentIdentity) (*dto.StudentFlagStatus, error) {
	if student.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student identity is required")
	}
	flagged, err := s.responses.LatestFlag(ctx, student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive student flag")
	}
	return &dto.StudentFlagStatus{Student: student, Flagged: flagged}, nil
}

// FlaggedRoster lists the institution's currently-flagged students for the
// requested population.
func (s *DashboardService) FlaggedRoster(ctx context.Context, institutionID string, population models.Population) (*dto.FlaggedRoster, error) {
	if population == "" {
		population = models.PopulationAll
	}
	switch population {
	case models.PopulationRegistered, models.PopulationAnonymous, models.PopulationAll:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "population must be registered, anonymous or all")
	}

	cacheKey := fmt.Sprintf("dashboard:flagged:%s:%s", institutionID, population)
	var cached dto.FlaggedRoster
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	students, err := s.responses.ListFlaggedStudents(ctx, institutionID, population)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list flagged students")
	}

	roster := &dto.FlaggedRoster{
		InstitutionID: institutionID,
		Population:    population,
		Students:      students,
		Total:         len(students),
	}
	s.cache.Set(ctx, cacheKey, roster, s.cacheTTL)
	return roster, nil
}

// ExportRoster renders the flagged roster as CSV or PDF for download.
func (s *DashboardService) ExportRoster(ctx context.Context, institutionID string, population models.Population, format string) ([]byte, string, string, error) {
	roster, err := s.FlaggedRoster(ctx, institutionID, population)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Population", "Last Response", "Submitted At"},
	}
	for _, student := range roster.Students {
		name := student.Name
		if name == "" {
			name = student.Email
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":       name,
			"Email":         student.Email,
			"Population":    string(student.Kind),
			"Last Response": student.ResponseID,
			"Submitted At":  student.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case "csv", "":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "flagged-students.csv", "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Flagged Students")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "flagged-students.pdf", "application/pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
