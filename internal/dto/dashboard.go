package dto

import "github.com/noah-isme/mhp-survey-api/internal/models"

// FlaggedRoster is the dashboard payload listing currently-flagged students.
type FlaggedRoster struct {
	InstitutionID string                  `json:"institution_id"`
	Population    models.Population       `json:"population"`
	Students      []models.FlaggedStudent `json:"students"`
	Total         int                     `json:"total"`
}

// StudentFlagStatus reports the current flag derivation for one student.
type StudentFlagStatus struct {
	Student models.StudentIdentity `json:"student"`
	Flagged bool                   `json:"flagged"`
}
