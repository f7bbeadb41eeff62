package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mhp-survey-api/internal/models"
)

// StudentRepository manages anonymous student identities. Registered
// students live in the users table and are handled by UserRepository.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetOrCreate resolves the anonymous student for (email, template), creating
// the row on first unauthenticated submission. Emails are compared
// case-insensitively.
func (r *StudentRepository) GetOrCreate(ctx context.Context, email, templateID string) (*models.AnonymousStudent, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	const find = `SELECT id, email, template_id, created_at
FROM anonymous_students WHERE email = $1 AND template_id = $2`
	var student models.AnonymousStudent
	err := r.db.GetContext(ctx, &student, find, email, templateID)
	if err == nil {
		return &student, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find anonymous student: %w", err)
	}

	student = models.AnonymousStudent{
		ID:         uuid.NewString(),
		Email:      email,
		TemplateID: templateID,
		CreatedAt:  time.Now().UTC(),
	}
	const insert = `INSERT INTO anonymous_students (id, email, template_id, created_at)
VALUES (:id, :email, :template_id, :created_at)
ON CONFLICT (email, template_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, insert, &student); err != nil {
		return nil, fmt.Errorf("create anonymous student: %w", err)
	}

	// Re-read to cover the conflict path where a concurrent submission won.
	if err := r.db.GetContext(ctx, &student, find, email, templateID); err != nil {
		return nil, fmt.Errorf("reload anonymous student: %w", err)
	}
	return &student, nil
}

// GetByID loads one anonymous student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.AnonymousStudent, error) {
	const query = `SELECT id, email, template_id, created_at FROM anonymous_students WHERE id = $1`
	var student models.AnonymousStudent
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, fmt.Errorf("get anonymous student: %w", err)
	}
	return &student, nil
}
