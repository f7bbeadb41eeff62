package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mhp-survey-api/internal/models"
)

// ResponseRepository manages persistence for survey responses and their
// question answers.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs a new repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// CreateWithAnswers inserts the response and all of its question answers in a
// single transaction. The flagged value carried on the response is whatever
// the rule screener decided at submission time.
func (r *ResponseRepository) CreateWithAnswers(ctx context.Context, resp *models.SurveyResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin response tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertResponse = `INSERT INTO survey_responses (id, template_id, user_id, anonymous_student_id, flagged, created_at)
VALUES (:id, :template_id, :user_id, :anonymous_student_id, :flagged, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertResponse, resp); err != nil {
		return fmt.Errorf("create survey response: %w", err)
	}

	const insertAnswer = `INSERT INTO question_responses (id, response_id, question_id, likert_value, text_response)
VALUES (:id, :response_id, :question_id, :likert_value, :text_response)`
	for i := range resp.Answers {
		answer := &resp.Answers[i]
		if answer.ID == "" {
			answer.ID = uuid.NewString()
		}
		answer.ResponseID = resp.ID
		if _, err := tx.NamedExecContext(ctx, insertAnswer, answer); err != nil {
			return fmt.Errorf("create question response: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit response tx: %w", err)
	}
	return nil
}

// GetByID loads a response without its answers.
func (r *ResponseRepository) GetByID(ctx context.Context, id string) (*models.SurveyResponse, error) {
	const query = `SELECT id, template_id, user_id, anonymous_student_id, flagged, created_at
FROM survey_responses WHERE id = $1`
	var resp models.SurveyResponse
	if err := r.db.GetContext(ctx, &resp, query, id); err != nil {
		return nil, fmt.Errorf("get survey response: %w", err)
	}
	return &resp, nil
}

// EnsureFlagged marks the response as flagged. The update is an unconditional
// monotonic OR: it never clears the bit and never errors on redundant sets,
// so any number of concurrent or retried callers converge to the same state.
func (r *ResponseRepository) EnsureFlagged(ctx context.Context, responseID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE survey_responses SET flagged = TRUE WHERE id = $1", responseID); err != nil {
		return fmt.Errorf("ensure response flagged: %w", err)
	}
	return nil
}

// ListTextAnswers returns the free-text answers of a response joined with
// their questions, in question position order. Answers whose question no
// longer exists drop out of the join and are skipped by the screening worker.
func (r *ResponseRepository) ListTextAnswers(ctx context.Context, responseID string) ([]models.TextAnswer, error) {
	const query = `SELECT qr.question_id, q.question_text, qr.text_response, q.position
FROM question_responses qr
JOIN survey_questions q ON q.id = qr.question_id
WHERE qr.response_id = $1 AND qr.text_response IS NOT NULL
ORDER BY q.position ASC, q.id ASC`
	var answers []models.TextAnswer
	if err := r.db.SelectContext(ctx, &answers, query, responseID); err != nil {
		return nil, fmt.Errorf("list text answers: %w", err)
	}
	return answers, nil
}

// LatestFlag returns the flagged value of the student's most recent response,
// ties broken by highest id. A student with no responses is not flagged.
func (r *ResponseRepository) LatestFlag(ctx context.Context, student models.StudentIdentity) (bool, error) {
	column := "user_id"
	if student.Kind == models.StudentKindAnonymous {
		column = "anonymous_student_id"
	}
	query := fmt.Sprintf(`SELECT flagged FROM survey_responses WHERE %s = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, column)
	var flagged bool
	if err := r.db.GetContext(ctx, &flagged, query, student.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("latest response flag: %w", err)
	}
	return flagged, nil
}

// ListFlaggedStudents returns students of the institution whose most recent
// response is flagged, re-derived from the response rows on every call.
func (r *ResponseRepository) ListFlaggedStudents(ctx context.Context, institutionID string, population models.Population) ([]models.FlaggedStudent, error) {
	var students []models.FlaggedStudent

	if population == models.PopulationRegistered || population == models.PopulationAll {
		const query = `SELECT u.id AS student_id, 'registered' AS kind, u.full_name AS name, u.email, r.id AS response_id, r.created_at AS submitted_at
FROM users u
JOIN LATERAL (
        SELECT id, flagged, created_at FROM survey_responses
        WHERE user_id = u.id
        ORDER BY created_at DESC, id DESC LIMIT 1
) r ON TRUE
WHERE u.institution_id = $1 AND u.role = $2 AND r.flagged
ORDER BY r.created_at DESC`
		var registered []models.FlaggedStudent
		if err := r.db.SelectContext(ctx, &registered, query, institutionID, models.RoleStudent); err != nil {
			return nil, fmt.Errorf("list flagged registered students: %w", err)
		}
		students = append(students, registered...)
	}

	if population == models.PopulationAnonymous || population == models.PopulationAll {
		const query = `SELECT a.id AS student_id, 'anonymous' AS kind, '' AS name, a.email, r.id AS response_id, r.created_at AS submitted_at
FROM anonymous_students a
JOIN survey_templates t ON t.id = a.template_id
JOIN LATERAL (
        SELECT id, flagged, created_at FROM survey_responses
        WHERE anonymous_student_id = a.id
        ORDER BY created_at DESC, id DESC LIMIT 1
) r ON TRUE
WHERE t.institution_id = $1 AND r.flagged
ORDER BY r.created_at DESC`
		var anonymous []models.FlaggedStudent
		if err := r.db.SelectContext(ctx, &anonymous, query, institutionID); err != nil {
			return nil, fmt.Errorf("list flagged anonymous students: %w", err)
		}
		students = append(students, anonymous...)
	}

	return students, nil
}
