package dto

import "time"

// AnswerInput is one submitted answer. Exactly one of LikertValue and Text
// must be set, matching the question type.
type AnswerInput struct {
	QuestionID  string  `json:"question_id" validate:"required"`
	LikertValue *int    `json:"likert_value,omitempty"`
	Text        *string `json:"text,omitempty"`
}

// SubmitResponseRequest is the survey submission payload. Email is required
// for unauthenticated submissions and ignored for authenticated students.
type SubmitResponseRequest struct {
	Email   string        `json:"email,omitempty" validate:"omitempty,email"`
	Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

// SubmitResponseResult acknowledges a stored submission. Flagged reflects
// only the synchronous rule screening; text screening runs out of band.
type SubmitResponseResult struct {
	ResponseID  string    `json:"response_id"`
	Flagged     bool      `json:"flagged"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// QuestionInput defines one question when creating a template.
type QuestionInput struct {
	Text     string `json:"text" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=likert text"`
	Category string `json:"category"`
	Position int    `json:"position" validate:"gte=0"`
}

// CreateTemplateRequest creates a survey template with its questions.
type CreateTemplateRequest struct {
	Name      string          `json:"name" validate:"required"`
	Questions []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// CreateInstitutionRequest registers a new institution.
type CreateInstitutionRequest struct {
	Name   string `json:"name" validate:"required"`
	Domain string `json:"domain" validate:"required"`
}
