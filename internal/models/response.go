package models

import "time"

// StudentKind distinguishes the two response ownership models.
type StudentKind string

const (
	StudentKindRegistered StudentKind = "registered"
	StudentKindAnonymous  StudentKind = "anonymous"
)

// StudentIdentity references either a registered user or an anonymous
// student. Exactly one population applies to any given response.
type StudentIdentity struct {
	Kind StudentKind `json:"kind"`
	ID   string      `json:"id"`
}

// Population selects which student identities a roster query covers.
type Population string

const (
	PopulationRegistered Population = "registered"
	PopulationAnonymous  Population = "anonymous"
	PopulationAll        Population = "all"
)

// AnonymousStudent is a respondent identified only by email and template,
// created on the first submission through an unauthenticated survey link.
type AnonymousStudent struct {
	ID         string    `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	TemplateID string    `db:"template_id" json:"template_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SurveyResponse is one submission event. Exactly one of UserID and
// AnonymousStudentID is set. Flagged starts false and may flip to true once,
// by either the rule screener at creation or the async screening worker.
type SurveyResponse struct {
	ID                 string             `db:"id" json:"id"`
	TemplateID         string             `db:"template_id" json:"template_id"`
	UserID             *string            `db:"user_id" json:"user_id,omitempty"`
	AnonymousStudentID *string            `db:"anonymous_student_id" json:"anonymous_student_id,omitempty"`
	Flagged            bool               `db:"flagged" json:"flagged"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	Answers            []QuestionResponse `db:"-" json:"answers,omitempty"`
}

// Student returns the identity owning this response.
func (r SurveyResponse) Student() StudentIdentity {
	if r.UserID != nil {
		return StudentIdentity{Kind: StudentKindRegistered, ID: *r.UserID}
	}
	if r.AnonymousStudentID != nil {
		return StudentIdentity{Kind: StudentKindAnonymous, ID: *r.AnonymousStudentID}
	}
	return StudentIdentity{}
}

// QuestionResponse is one answer to one question within one response.
// Exactly one of LikertValue and TextResponse is populated, matching the
// question type. Immutable after creation.
type QuestionResponse struct {
	ID           string  `db:"id" json:"id"`
	ResponseID   string  `db:"response_id" json:"response_id"`
	QuestionID   string  `db:"question_id" json:"question_id"`
	LikertValue  *int    `db:"likert_value" json:"likert_value,omitempty"`
	TextResponse *string `db:"text_response" json:"text_response,omitempty"`
}

// TextAnswer pairs a free-text answer with its question for screening.
// Rows are produced in question position order.
type TextAnswer struct {
	QuestionID   string `db:"question_id"`
	QuestionText string `db:"question_text"`
	Text         string `db:"text_response"`
	Position     int    `db:"position"`
}

// FlaggedStudent is one roster row on the administrator dashboard: a student
// whose most recent response is flagged.
type FlaggedStudent struct {
	StudentID   string      `db:"student_id" json:"student_id"`
	Kind        StudentKind `db:"kind" json:"kind"`
	Name        string      `db:"name" json:"name"`
	Email       string      `db:"email" json:"email"`
	ResponseID  string      `db:"response_id" json:"response_id"`
	SubmittedAt time.Time   `db:"submitted_at" json:"submitted_at"`
}
