package models

// Severity is the classifier-assigned concern level for one text answer.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Verdict is the classifier output for one (text, question) pair. It is
// consumed by the screening worker and never persisted.
type Verdict struct {
	Flag     bool     `json:"flag"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// ValidSeverity reports whether s is one of the four known levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}
