package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/models"
	"github.com/noah-isme/mhp-survey-api/pkg/config"
	"github.com/noah-isme/mhp-survey-api/pkg/jobs"
)

// ScreeningJobType identifies async screening work on the job queue.
const ScreeningJobType = "screen_response"

// ScreeningJobPayload carries one scheduled screening unit.
type ScreeningJobPayload struct {
	ResponseID  string   `json:"response_id"`
	QuestionIDs []string `json:"question_ids"`
}

type screeningResponseStore interface {
	EnsureFlagged(ctx context.Context, responseID string) error
	ListTextAnswers(ctx context.Context, responseID string) ([]models.TextAnswer, error)
}

type screeningDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ScreeningPolicy holds the tunable flagging rules. The thresholds are
// policy parameters surfaced from configuration, not fixed invariants.
type ScreeningPolicy struct {
	LikertFlagThreshold int
	AutoFlagSeverities  map[models.Severity]bool
}

// PolicyFromConfig builds the runtime policy from configuration, applying
// the defaults used by the original deployment (threshold 3, medium+high).
func PolicyFromConfig(cfg config.ScreeningConfig) ScreeningPolicy {
	policy := ScreeningPolicy{
		LikertFlagThreshold: cfg.LikertFlagThreshold,
		AutoFlagSeverities:  make(map[models.Severity]bool),
	}
	if policy.LikertFlagThreshold <= 0 {
		policy.LikertFlagThreshold = 3
	}
	for _, raw := range cfg.AutoFlagSeverities {
		severity := models.Severity(raw)
		if models.ValidSeverity(severity) {
			policy.AutoFlagSeverities[severity] = true
		}
	}
	if len(policy.AutoFlagSeverities) == 0 {
		policy.AutoFlagSeverities[models.SeverityMedium] = true
		policy.AutoFlagSeverities[models.SeverityHigh] = true
	}
	return policy
}

// ScreeningService owns both screening paths: the synchronous rule-based
// screener running in the submission request, and the asynchronous
// classifier-based worker. Both converge on the idempotent EnsureFlagged
// sink, so neither path depends on the other's ordering.
type ScreeningService struct {
	responses  screeningResponseStore
	classifier TextClassifier
	queue      screeningDispatcher
	policy     ScreeningPolicy
	logger     *zap.Logger
	metrics    *MetricsService
}

// NewScreeningService constructs the screening service.
func NewScreeningService(responses screeningResponseStore, classifier TextClassifier, queue screeningDispatcher, policy ScreeningPolicy, logger *zap.Logger, metrics *MetricsService) *ScreeningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.LikertFlagThreshold <= 0 {
		policy.LikertFlagThreshold = 3
	}
	return &ScreeningService{
		responses:  responses,
		classifier: classifier,
		queue:      queue,
		policy:     policy,
		logger:     logger,
		metrics:    metrics,
	}
}

// SetDispatcher attaches the job queue after construction. The queue's
// handler is this service, so the two are built in sequence.
func (s *ScreeningService) SetDispatcher(queue screeningDispatcher) {
	s.queue = queue
}

// ScreenNumeric decides whether the response must be flagged at creation:
// true when any Likert answer meets the policy threshold. Pure and
// deterministic; runs inline in the submission path.
func (s *ScreeningService) ScreenNumeric(answers []models.QuestionResponse) bool {
	for _, answer := range answers {
		if answer.LikertValue != nil && *answer.LikertValue >= s.policy.LikertFlagThreshold {
			return true
		}
	}
	return false
}

// Schedule enqueues exactly one screening job for the submitted response and
// returns immediately. The queue delivers at least once; the worker is
// idempotent, so redundant deliveries are harmless.
func (s *ScreeningService) Schedule(responseID string, questionIDs []string) error {
	if s.queue == nil {
		return fmt.Errorf("screening queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      responseID,
		Type:    ScreeningJobType,
		Payload: ScreeningJobPayload{ResponseID: responseID, QuestionIDs: questionIDs},
	})
}

// HandleJob is the queue handler executing one screening unit. A returned
// error surfaces to the queue's retry loop; classifier failures never do.
func (s *ScreeningService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ScreeningJobPayload)
	if !ok {
		s.logger.Error("screening job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	err := s.screenText(ctx, payload)
	if err != nil && s.metrics != nil {
		s.metrics.RecordScreeningJob("error")
	}
	return err
}

// screenText walks the response's text answers in question order and stops
// at the first verdict severe enough to flag. One sufficiently severe signal
// is enough; screening the rest would add cost without changing the outcome.
func (s *ScreeningService) screenText(ctx context.Context, payload ScreeningJobPayload) error {
	answers, err := s.responses.ListTextAnswers(ctx, payload.ResponseID)
	if err != nil {
		return fmt.Errorf("load text answers for %s: %w", payload.ResponseID, err)
	}

	scheduled := make(map[string]bool, len(payload.QuestionIDs))
	for _, id := range payload.QuestionIDs {
		scheduled[id] = true
	}

	for _, answer := range answers {
		if len(scheduled) > 0 && !scheduled[answer.QuestionID] {
			continue
		}
		if answer.Text == "" {
			continue
		}

		verdict := s.classifier.Classify(ctx, answer.Text, answer.QuestionText)
		if !verdict.Flag || !s.policy.AutoFlagSeverities[verdict.Severity] {
			continue
		}

		if err := s.responses.EnsureFlagged(ctx, payload.ResponseID); err != nil {
			return fmt.Errorf("flag response %s: %w", payload.ResponseID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordResponseFlagged("classifier")
			s.metrics.RecordScreeningJob("flagged")
		}
		s.logger.Info("response flagged by text screening",
			zap.String("response_id", payload.ResponseID),
			zap.String("question_id", answer.QuestionID),
			zap.String("severity", string(verdict.Severity)),
			zap.String("reason", verdict.Reason),
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordScreeningJob("clean")
	}
	s.logger.Debug("response analyzed, no concerns", zap.String("response_id", payload.ResponseID))
	return nil
}
