package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mhp-survey-api/internal/models"
)

func newResponseMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResponseRepositoryCreateWithAnswers(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO survey_responses").
		WithArgs(sqlmock.AnyArg(), "tmpl-1", "user-1", nil, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO question_responses").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "q1", 3, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO question_responses").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "q2", nil, "all good").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	userID := "user-1"
	likert := 3
	text := "all good"
	resp := &models.SurveyResponse{
		TemplateID: "tmpl-1",
		UserID:     &userID,
		Flagged:    true,
		Answers: []models.QuestionResponse{
			{QuestionID: "q1", LikertValue: &likert},
			{QuestionID: "q2", TextResponse: &text},
		},
	}
	err := repo.CreateWithAnswers(context.Background(), resp)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, resp.ID, resp.Answers[0].ResponseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryCreateWithAnswersRollsBack(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO survey_responses").
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	userID := "user-1"
	err := repo.CreateWithAnswers(context.Background(), &models.SurveyResponse{TemplateID: "tmpl-1", UserID: &userID})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryEnsureFlagged(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE survey_responses SET flagged = TRUE WHERE id = $1")).
		WithArgs("resp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.EnsureFlagged(context.Background(), "resp-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryEnsureFlaggedAlreadySet(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	// Zero rows affected counts as success: the bit was already set.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE survey_responses SET flagged = TRUE WHERE id = $1")).
		WithArgs("resp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureFlagged(context.Background(), "resp-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryListTextAnswers(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	rows := sqlmock.NewRows([]string{"question_id", "question_text", "text_response", "position"}).
		AddRow("q2", "Anything on your mind?", "all good", 2).
		AddRow("q3", "Anything else?", "nothing", 3)
	mock.ExpectQuery("SELECT qr.question_id, q.question_text, qr.text_response, q.position").
		WithArgs("resp-1").
		WillReturnRows(rows)

	answers, err := repo.ListTextAnswers(context.Background(), "resp-1")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "q2", answers[0].QuestionID)
	assert.Equal(t, "Anything on your mind?", answers[0].QuestionText)
	assert.Equal(t, 2, answers[0].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryLatestFlag(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT flagged FROM survey_responses WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"flagged"}).AddRow(true))

	flagged, err := repo.LatestFlag(context.Background(), models.StudentIdentity{Kind: models.StudentKindRegistered, ID: "user-1"})
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryLatestFlagAnonymousColumn(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT flagged FROM survey_responses WHERE anonymous_student_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1")).
		WithArgs("anon-1").
		WillReturnRows(sqlmock.NewRows([]string{"flagged"}).AddRow(false))

	flagged, err := repo.LatestFlag(context.Background(), models.StudentIdentity{Kind: models.StudentKindAnonymous, ID: "anon-1"})
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryLatestFlagNoResponses(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectQuery("SELECT flagged FROM survey_responses").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"flagged"}))

	flagged, err := repo.LatestFlag(context.Background(), models.StudentIdentity{Kind: models.StudentKindRegistered, ID: "user-1"})
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryListFlaggedStudentsAll(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	now := time.Now()
	registered := sqlmock.NewRows([]string{"student_id", "kind", "name", "email", "response_id", "submitted_at"}).
		AddRow("user-1", "registered", "Alex Kim", "alex@school.edu", "resp-9", now)
	mock.ExpectQuery("FROM users u").
		WithArgs("inst-1", models.RoleStudent).
		WillReturnRows(registered)

	anonymous := sqlmock.NewRows([]string{"student_id", "kind", "name", "email", "response_id", "submitted_at"}).
		AddRow("anon-2", "anonymous", "", "sam@school.edu", "resp-12", now)
	mock.ExpectQuery("FROM anonymous_students a").
		WithArgs("inst-1").
		WillReturnRows(anonymous)

	students, err := repo.ListFlaggedStudents(context.Background(), "inst-1", models.PopulationAll)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, models.StudentKindRegistered, students[0].Kind)
	assert.Equal(t, models.StudentKindAnonymous, students[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryListFlaggedStudentsRegisteredOnly(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectQuery("FROM users u").
		WithArgs("inst-1", models.RoleStudent).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "kind", "name", "email", "response_id", "submitted_at"}))

	students, err := repo.ListFlaggedStudents(context.Background(), "inst-1", models.PopulationRegistered)
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}
