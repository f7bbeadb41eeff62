package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/models"
	"github.com/noah-isme/mhp-survey-api/pkg/config"
)

// TextClassifier produces a screening verdict for one free-text answer.
type TextClassifier interface {
	Classify(ctx context.Context, text, questionText string) models.Verdict
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClassifierService screens free-text survey answers for concerning content
// through an OpenAI-compatible chat completion endpoint.
//
// The service is fail-open: any transport failure, timeout or unparsable
// completion degrades to a non-flagging verdict so that classifier health can
// never block survey handling or produce a false flag. Degraded calls are
// logged and counted separately from genuine negative verdicts.
type ClassifierService struct {
	client  chatCompleter
	model   string
	timeout time.Duration
	logger  *zap.Logger
	metrics *MetricsService
}

const classifierSystemPrompt = "You are a mental health screening assistant. Your primary goal is to identify concerning content that could indicate risk. When in doubt, err on the side of caution and flag for review. It's better to over-detect than miss genuine distress. Respond with JSON only."

const classifierPromptTemplate = `Analyze this student mental health survey response for concerning content that may indicate risk to self or others.

Question: %s
Response: "%s"

Flag as concerning if the response contains:

**HIGH SEVERITY - Immediate Risk:**
- Direct statements about wanting to die, suicide, or ending life
- Specific mentions of self-harm methods or weapons in harmful context
- Active plans or preparation for self-harm
- Threats of violence toward others
- References to obtaining weapons for harmful purposes
- Any mention of specific suicide methods or means

**MEDIUM SEVERITY - Significant Concern:**
- Expressions of hopelessness: "can't take it anymore", "no point in living", "give up"
- Feeling worthless, like a burden, or that others would be better off without them
- Mentions of substance abuse as coping mechanism
- Severe isolation, withdrawal from friends/family
- Persistent thoughts of death (even if not actively suicidal)
- Vague references to ending things: "make it stop", "be done with everything"
- Extreme despair or feeling trapped with no way out

**LOW SEVERITY - Monitor:**
- Persistent sadness, depression, or anxiety
- Sleep/appetite changes, difficulty concentrating
- Loss of interest in activities they used to enjoy
- Academic performance decline
- Relationship problems or social conflicts
- Mild expressions of being overwhelmed or stressed beyond normal levels

**DO NOT FLAG:**
- Basic academic stress without emotional distress indicators
- Mild frustration with school, parents, or friends
- References to death in clearly abstract/philosophical context
- Legitimate activities (hunting, sports, collecting) with no emotional distress
- Single instances of temporary disappointment

**CONTEXT CONSIDERATIONS:**
- Lean toward flagging when uncertain - missing genuine distress is worse than over-flagging
- Pay attention to emotional intensity, not just specific words
- Consider cumulative effect of multiple concerning elements
- Look for genuine distress signals even in casual language

Return JSON only: {"flag": true/false, "severity": "high/medium/low/none", "reason": "specific concerning elements identified"}`

// NewClassifierService builds a classifier backed by the configured OpenAI
// endpoint. API key, base URL and model come from injected configuration so
// the service stays mockable.
func NewClassifierService(cfg config.ClassifierConfig, logger *zap.Logger, metrics *MetricsService) *ClassifierService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newClassifierService(openai.NewClientWithConfig(clientCfg), cfg, logger, metrics)
}

func newClassifierService(client chatCompleter, cfg config.ClassifierConfig, logger *zap.Logger, metrics *MetricsService) *ClassifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClassifierService{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Classify screens one text answer in the context of its question. Empty
// text short-circuits without calling the external service.
func (s *ClassifierService) Classify(ctx context.Context, text, questionText string) models.Verdict {
	if strings.TrimSpace(text) == "" {
		return models.Verdict{Flag: false, Severity: models.SeverityNone, Reason: "no text provided"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(classifierPromptTemplate, questionText, text)},
		},
		Temperature: 0.1,
		MaxTokens:   150,
	})
	if err != nil {
		s.logger.Warn("classifier call failed, degrading to non-flagging verdict", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordClassifierFailure("transport")
		}
		return failedVerdict()
	}

	if len(resp.Choices) == 0 {
		s.logger.Warn("classifier returned no choices, degrading to non-flagging verdict")
		if s.metrics != nil {
			s.metrics.RecordClassifierFailure("parse")
		}
		return failedVerdict()
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		s.logger.Warn("classifier output unparsable, degrading to non-flagging verdict", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordClassifierFailure("parse")
		}
		return failedVerdict()
	}

	if s.metrics != nil {
		s.metrics.RecordVerdict(string(verdict.Severity))
	}
	return verdict
}

func parseVerdict(raw string) (models.Verdict, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON output in a markdown fence despite instructions.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var verdict models.Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return models.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if !models.ValidSeverity(verdict.Severity) {
		return models.Verdict{}, fmt.Errorf("unknown severity %q", verdict.Severity)
	}
	return verdict, nil
}

func failedVerdict() models.Verdict {
	return models.Verdict{Flag: false, Severity: models.SeverityNone, Reason: "analysis failed"}
}
