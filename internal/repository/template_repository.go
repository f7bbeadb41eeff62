package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mhp-survey-api/internal/models"
)

// TemplateRepository manages persistence for survey templates and questions.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs a new repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts the template together with its questions in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, template *models.SurveyTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertTemplate = `INSERT INTO survey_templates (id, institution_id, name, hash_link, created_at, updated_at)
VALUES (:id, :institution_id, :name, :hash_link, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertTemplate, template); err != nil {
		return fmt.Errorf("create survey template: %w", err)
	}

	const insertQuestion = `INSERT INTO survey_questions (id, template_id, question_text, question_type, category, position)
VALUES (:id, :template_id, :question_text, :question_type, :category, :position)`
	for i := range template.Questions {
		question := &template.Questions[i]
		if question.ID == "" {
			question.ID = uuid.NewString()
		}
		question.TemplateID = template.ID
		if _, err := tx.NamedExecContext(ctx, insertQuestion, question); err != nil {
			return fmt.Errorf("create survey question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit template tx: %w", err)
	}
	return nil
}

// GetByID loads a template with its questions in position order.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.SurveyTemplate, error) {
	const query = `SELECT id, institution_id, name, hash_link, created_at, updated_at
FROM survey_templates WHERE id = $1`
	var template models.SurveyTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, fmt.Errorf("get survey template: %w", err)
	}
	questions, err := r.ListQuestions(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Questions = questions
	return &template, nil
}

// GetByHashLink resolves a template from its unauthenticated link token.
func (r *TemplateRepository) GetByHashLink(ctx context.Context, hashLink string) (*models.SurveyTemplate, error) {
	const query = `SELECT id, institution_id, name, hash_link, created_at, updated_at
FROM survey_templates WHERE hash_link = $1`
	var template models.SurveyTemplate
	if err := r.db.GetContext(ctx, &template, query, hashLink); err != nil {
		return nil, fmt.Errorf("get template by hash link: %w", err)
	}
	questions, err := r.ListQuestions(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Questions = questions
	return &template, nil
}

// ListByInstitution returns templates owned by the institution.
func (r *TemplateRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.SurveyTemplate, error) {
	const query = `SELECT id, institution_id, name, hash_link, created_at, updated_at
FROM survey_templates WHERE institution_id = $1 ORDER BY created_at DESC`
	var templates []models.SurveyTemplate
	if err := r.db.SelectContext(ctx, &templates, query, institutionID); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// ListQuestions returns the questions of a template in position order.
func (r *TemplateRepository) ListQuestions(ctx context.Context, templateID string) ([]models.SurveyQuestion, error) {
	const query = `SELECT id, template_id, question_text, question_type, category, position
FROM survey_questions WHERE template_id = $1 ORDER BY position ASC, id ASC`
	var questions []models.SurveyQuestion
	if err := r.db.SelectContext(ctx, &questions, query, templateID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
