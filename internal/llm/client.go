package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/pkg/circuitbreaker"
	"github.com/medaccred/backend/pkg/logger"
	"github.com/medaccred/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

const evaluateSystemPrompt = `You are a healthcare accreditation surveyor. Assess whether the provided
evidence documents satisfy one measurable element of an accreditation standard.

Verdicts:
- compliant: evidence fully demonstrates the requirement
- partial: evidence addresses the requirement incompletely
- non-compliant: evidence is missing or contradicts the requirement
- not-applicable: the requirement does not apply to this facility

Return ONLY a JSON object:
{
  "aiScore": "compliant|partial|non-compliant|not-applicable",
  "aiConfidence": 0-100,
  "matchScore": 0-100,
  "justification": "one paragraph citing the evidence",
  "evidenceMissing": ["..."],
  "gaps": ["..."],
  "recommendations": ["..."],
  "evidenceMatches": [{"evidenceId": "...", "documentName": "...", "relevanceScore": 0-100, "matchedSections": ["..."]}]
}`

// EvaluateElement implements judge.ElementEvaluator. The response is
// parsed leniently; the adapter's normalization is the real trust
// boundary, so parse problems surface as out-of-enum verdicts rather
// than errors.
func (c *Client) EvaluateElement(ctx context.Context, input judge.EvaluationInput) (judge.RawJudgment, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return judge.RawJudgment{}, fmt.Errorf("failed to marshal evaluation input: %w", err)
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: evaluateSystemPrompt,
		UserPrompt:   fmt.Sprintf("Assess this measurable element against the evidence:\n\n%s\n\nReturn JSON only.", payload),
		Temperature:  0.1,
		MaxTokens:    1024,
	})
	if err != nil {
		return judge.RawJudgment{}, fmt.Errorf("failed to evaluate element %s: %w", input.ElementID, err)
	}

	raw := parseRawJudgment(resp.Content)

	logger.Debug("Element evaluated",
		zap.String("element_id", input.ElementID),
		zap.String("verdict", raw.AIScore),
	)

	return raw, nil
}

func (c *Client) SummarizeEvidence(ctx context.Context, documentName, content string) (string, error) {
	systemPrompt := `You are a healthcare compliance analyst. Summarize the given evidence document
in 2-3 sentences. Name the policies, procedures, committees, training records or audit results it
demonstrates, and the departments it covers. Be specific.`

	if len(content) > 6000 {
		content = content[:6000]
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Document %q:\n\n%s", documentName, content),
		Temperature:  0.3,
		MaxTokens:    300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize evidence: %w", err)
	}

	return resp.Content, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

// parseRawJudgment extracts the judgment JSON from the completion,
// tolerating markdown fences and surrounding prose. Fields with the wrong
// type decode to their zero value, which normalization then treats as
// unparseable.
func parseRawJudgment(content string) judge.RawJudgment {
	content = stripCodeFence(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		logger.Warn("Failed to parse judgment JSON", zap.Error(err))
		return judge.RawJudgment{}
	}

	raw := judge.RawJudgment{
		AIScore:         asString(fields["aiScore"]),
		AIConfidence:    asFloat(fields["aiConfidence"]),
		MatchScore:      asFloat(fields["matchScore"]),
		Justification:   asString(fields["justification"]),
		EvidenceMissing: asStringSlice(fields["evidenceMissing"]),
		Gaps:            asStringSlice(fields["gaps"]),
		Recommendations: asStringSlice(fields["recommendations"]),
	}

	if matches, ok := fields["evidenceMatches"].([]interface{}); ok {
		for _, item := range matches {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			raw.EvidenceMatches = append(raw.EvidenceMatches, judge.RawMatch{
				EvidenceID:      asString(m["evidenceId"]),
				DocumentName:    asString(m["documentName"]),
				RelevanceScore:  asFloat(m["relevanceScore"]),
				MatchedSections: asStringSlice(m["matchedSections"]),
			})
		}
	}

	return raw
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &f); err == nil {
			return f
		}
	}
	return 0
}

func asStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
