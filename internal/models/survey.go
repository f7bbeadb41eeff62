package models

import "time"

// QuestionType distinguishes Likert-scale ratings from free-text answers.
type QuestionType string

const (
	QuestionTypeLikert QuestionType = "likert"
	QuestionTypeText   QuestionType = "text"
)

// Likert scale bounds. Answers outside the range are rejected at validation.
const (
	LikertMin = 1
	LikertMax = 5
)

// SurveyTemplate is an institution-scoped set of questions. The hash link is
// the token embedded in unauthenticated survey URLs.
type SurveyTemplate struct {
	ID            string           `db:"id" json:"id"`
	InstitutionID string           `db:"institution_id" json:"institution_id"`
	Name          string           `db:"name" json:"name"`
	HashLink      string           `db:"hash_link" json:"hash_link"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
	Questions     []SurveyQuestion `db:"-" json:"questions,omitempty"`
}

// SurveyQuestion is one question within a template. Position fixes the order
// questions are presented in and the order text answers are screened in.
type SurveyQuestion struct {
	ID           string       `db:"id" json:"id"`
	TemplateID   string       `db:"template_id" json:"template_id"`
	QuestionText string       `db:"question_text" json:"question_text"`
	QuestionType QuestionType `db:"question_type" json:"question_type"`
	Category     string       `db:"category" json:"category"`
	Position     int          `db:"position" json:"position"`
}
