package service

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mhp-survey-api/internal/models"
	"github.com/noah-isme/mhp-survey-api/pkg/config"
)

type mockChatCompleter struct {
	content  string
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockChatCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func newTestClassifier(client chatCompleter) *ClassifierService {
	return newClassifierService(client, config.ClassifierConfig{
		Model:   "gpt-4o-mini",
		Timeout: time.Second,
	}, zap.NewNop(), nil)
}

func TestClassifyParsesVerdict(t *testing.T) {
	client := &mockChatCompleter{
		content: `{"flag": true, "severity": "high", "reason": "direct statement about self-harm"}`,
	}
	svc := newTestClassifier(client)

	verdict := svc.Classify(context.Background(), "I don't want to be here anymore", "Anything on your mind?")

	assert.True(t, verdict.Flag)
	assert.Equal(t, models.SeverityHigh, verdict.Severity)
	assert.Equal(t, "direct statement about self-harm", verdict.Reason)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 0.001)
	assert.Equal(t, 150, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "Anything on your mind?")
	assert.Contains(t, req.Messages[1].Content, "I don't want to be here anymore")
}

func TestClassifyStripsMarkdownFence(t *testing.T) {
	client := &mockChatCompleter{
		content: "```json\n{\"flag\": true, \"severity\": \"medium\", \"reason\": \"hopelessness\"}\n```",
	}
	svc := newTestClassifier(client)

	verdict := svc.Classify(context.Background(), "no point in living", "How do you feel?")
	assert.True(t, verdict.Flag)
	assert.Equal(t, models.SeverityMedium, verdict.Severity)
}

func TestClassifyEmptyTextShortCircuits(t *testing.T) {
	client := &mockChatCompleter{}
	svc := newTestClassifier(client)

	verdict := svc.Classify(context.Background(), "   ", "Anything else?")

	assert.False(t, verdict.Flag)
	assert.Equal(t, models.SeverityNone, verdict.Severity)
	assert.Equal(t, "no text provided", verdict.Reason)
	assert.Empty(t, client.requests)
}

func TestClassifyFailsOpen(t *testing.T) {
	tests := []struct {
		name   string
		client *mockChatCompleter
	}{
		{
			name:   "transport failure",
			client: &mockChatCompleter{err: errors.New("connection refused")},
		},
		{
			name:   "unparsable output",
			client: &mockChatCompleter{content: "I cannot analyze this response."},
		},
		{
			name:   "unknown severity",
			client: &mockChatCompleter{content: `{"flag": true, "severity": "critical", "reason": "x"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestClassifier(tt.client)
			verdict := svc.Classify(context.Background(), "some answer", "Q")

			assert.False(t, verdict.Flag)
			assert.Equal(t, models.SeverityNone, verdict.Severity)
			assert.Equal(t, "analysis failed", verdict.Reason)
		})
	}
}

func TestClassifyNoChoicesFailsOpen(t *testing.T) {
	svc := newClassifierService(emptyChoicesCompleter{}, config.ClassifierConfig{}, zap.NewNop(), nil)

	verdict := svc.Classify(context.Background(), "some answer", "Q")
	assert.False(t, verdict.Flag)
	assert.Equal(t, "analysis failed", verdict.Reason)
}

type emptyChoicesCompleter struct{}

func (emptyChoicesCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    models.Verdict
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"flag": false, "severity": "none", "reason": "no concerns"}`,
			want: models.Verdict{Flag: false, Severity: models.SeverityNone, Reason: "no concerns"},
		},
		{
			name: "fenced json with whitespace",
			raw:  "  ```\n{\"flag\": true, \"severity\": \"low\", \"reason\": \"mild stress\"}\n```  ",
			want: models.Verdict{Flag: true, Severity: models.SeverityLow, Reason: "mild stress"},
		},
		{
			name:    "not json",
			raw:     "flagged: yes",
			wantErr: true,
		},
		{
			name:    "invalid severity",
			raw:     `{"flag": true, "severity": "urgent", "reason": "x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
