package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/models"
	appErrors "github.com/noah-isme/mhp-survey-api/pkg/errors"
)

type mockFlagStore struct {
	flagged     bool
	flaggedErr  error
	students    []models.FlaggedStudent
	studentsErr error
	latestCalls int
	listCalls   int
	lastStudent models.StudentIdentity
}

func (m *mockFlagStore) LatestFlag(_ context.Context, student models.StudentIdentity) (bool, error) {
	m.latestCalls++
	m.lastStudent = student
	if m.flaggedErr != nil {
		return false, m.flaggedErr
	}
	return m.flagged, nil
}

func (m *mockFlagStore) ListFlaggedStudents(_ context.Context, _ string, _ models.Population) ([]models.FlaggedStudent, error) {
	m.listCalls++
	if m.studentsErr != nil {
		return nil, m.studentsErr
	}
	return m.students, nil
}

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

func sampleFlaggedStudents() []models.FlaggedStudent {
	return []models.FlaggedStudent{
		{
			StudentID:   "user-1",
			Kind:        models.StudentKindRegistered,
			Name:        "Alex Kim",
			Email:       "alex@school.edu",
			ResponseID:  "resp-9",
			SubmittedAt: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			StudentID:   "anon-2",
			Kind:        models.StudentKindAnonymous,
			Email:       "sam@school.edu",
			ResponseID:  "resp-12",
			SubmittedAt: time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC),
		},
	}
}

func TestIsStudentFlagged(t *testing.T) {
	store := &mockFlagStore{flagged: true}
	svc := NewDashboardService(store, nil, time.Minute, zap.NewNop())

	status, err := svc.IsStudentFlagged(context.Background(), models.StudentIdentity{Kind: models.StudentKindRegistered, ID: "user-1"})
	require.NoError(t, err)

	assert.True(t, status.Flagged)
	assert.Equal(t, models.StudentKindRegistered, store.lastStudent.Kind)
	assert.Equal(t, "user-1", store.lastStudent.ID)
}

func TestIsStudentFlaggedRequiresIdentity(t *testing.T) {
	svc := NewDashboardService(&mockFlagStore{}, nil, time.Minute, zap.NewNop())

	_, err := svc.IsStudentFlagged(context.Background(), models.StudentIdentity{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestIsStudentFlaggedNeverCached(t *testing.T) {
	store := &mockFlagStore{flagged: false}
	cache := NewCacheService(&stubCacheRepo{}, time.Minute, zap.NewNop())
	svc := NewDashboardService(store, cache, time.Minute, zap.NewNop())

	student := models.StudentIdentity{Kind: models.StudentKindAnonymous, ID: "anon-1"}
	_, err := svc.IsStudentFlagged(context.Background(), student)
	require.NoError(t, err)

	store.flagged = true
	status, err := svc.IsStudentFlagged(context.Background(), student)
	require.NoError(t, err)

	// Every call re-derives from the store.
	assert.True(t, status.Flagged)
	assert.Equal(t, 2, store.latestCalls)
}

func TestFlaggedRosterDefaultsToAllPopulation(t *testing.T) {
	store := &mockFlagStore{students: sampleFlaggedStudents()}
	svc := NewDashboardService(store, nil, time.Minute, zap.NewNop())

	roster, err := svc.FlaggedRoster(context.Background(), "inst-1", "")
	require.NoError(t, err)

	assert.Equal(t, models.PopulationAll, roster.Population)
	assert.Equal(t, 2, roster.Total)
	assert.Len(t, roster.Students, 2)
}

func TestFlaggedRosterRejectsUnknownPopulation(t *testing.T) {
	svc := NewDashboardService(&mockFlagStore{}, nil, time.Minute, zap.NewNop())

	_, err := svc.FlaggedRoster(context.Background(), "inst-1", "staff")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFlaggedRosterUsesCache(t *testing.T) {
	store := &mockFlagStore{students: sampleFlaggedStudents()}
	repo := &stubCacheRepo{}
	cache := NewCacheService(repo, time.Minute, zap.NewNop())
	svc := NewDashboardService(store, cache, time.Minute, zap.NewNop())

	first, err := svc.FlaggedRoster(context.Background(), "inst-1", models.PopulationRegistered)
	require.NoError(t, err)
	second, err := svc.FlaggedRoster(context.Background(), "inst-1", models.PopulationRegistered)
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 1, store.listCalls)

	// Invalidation forces a re-read.
	require.NoError(t, cache.Invalidate(context.Background(), "dashboard:flagged:inst-1:*"))
	_, err = svc.FlaggedRoster(context.Background(), "inst-1", models.PopulationRegistered)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestFlaggedRosterStoreError(t *testing.T) {
	store := &mockFlagStore{studentsErr: errors.New("db down")}
	svc := NewDashboardService(store, nil, time.Minute, zap.NewNop())

	_, err := svc.FlaggedRoster(context.Background(), "inst-1", models.PopulationAll)
	assert.Error(t, err)
}

func TestExportRosterCSV(t *testing.T) {
	store := &mockFlagStore{students: sampleFlaggedStudents()}
	svc := NewDashboardService(store, nil, time.Minute, zap.NewNop())

	payload, filename, contentType, err := svc.ExportRoster(context.Background(), "inst-1", models.PopulationAll, "csv")
	require.NoError(t, err)

	assert.Equal(t, "flagged-students.csv", filename)
	assert.Equal(t, "text/csv", contentType)

	body := string(payload)
	assert.Contains(t, body, "Student,Email,Population,Last Response,Submitted At")
	assert.Contains(t, body, "Alex Kim")
	// Anonymous students fall back to their email in the name column.
	assert.Contains(t, body, "sam@school.edu")
}

func TestExportRosterPDF(t *testing.T) {
	store := &mockFlagStore{students: sampleFlaggedStudents()}
	svc := NewDashboardService(store, nil, time.Minute, zap.NewNop())

	payload, filename, contentType, err := svc.ExportRoster(context.Background(), "inst-1", models.PopulationAll, "pdf")
	require.NoError(t, err)

	assert.Equal(t, "flagged-students.pdf", filename)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)
}

func TestExportRosterUnknownFormat(t *testing.T) {
	svc := NewDashboardService(&mockFlagStore{}, nil, time.Minute, zap.NewNop())

	_, _, _, err := svc.ExportRoster(context.Background(), "inst-1", models.PopulationAll, "xlsx")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
