package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/gitpulse/gitpulse-go/internal/config"
)

const systemPrompt = `You are a senior code reviewer. Rate the commit below on six dimensions,
each from 0 to 100: commit message quality, code complexity management,
documentation, test coverage, consistency with the surrounding code, and
general best practices. Respond with a single JSON object using the keys
commit_message_score, complexity_score, documentation_score,
test_coverage_score, consistency_score and best_practices_score. No prose.`

// chatCompleter is the slice of the OpenAI client the judge needs. Tests
// substitute a canned implementation.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Client is a Judge backed by an OpenAI-compatible chat endpoint. Ollama
// serves one at /v1, so the default configuration talks to a local model
// without an API key.
type Client struct {
	api    chatCompleter
	model  string
	cache  *Cache
	logger *logrus.Logger
}

// NewClient builds a judge from configuration. The cache may be nil.
func NewClient(cfg config.InferenceConfig, cache *Cache, logger *logrus.Logger) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused" // Ollama ignores the key but the SDK requires one
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.Host

	return &Client{
		api:    openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		cache:  cache,
		logger: logger,
	}
}

// Available probes the endpoint with a model listing.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.api.ListModels(ctx)
	if err != nil && c.logger != nil {
		c.logger.WithError(err).Debug("inference endpoint probe failed")
	}
	return err == nil
}

// ScoreDiff rates one commit. Identical (model, message, diff) triples hit
// the cache and never reach the endpoint.
func (c *Client) ScoreDiff(ctx context.Context, message, diff string) (Scores, error) {
	if c.cache != nil {
		if scores, ok := c.cache.Get(c.model, message, diff); ok {
			return scores, nil
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Commit message:\n%s\n\nDiff:\n%s", message, diff),
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Scores{}, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	scores, err := parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		return Scores{}, err
	}

	if c.cache != nil {
		if err := c.cache.Put(c.model, message, diff, scores); err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("could not cache inference result")
		}
	}
	return scores, nil
}

// parseScores extracts the JSON score object from a completion. Local models
// occasionally wrap the object in markdown fences or prose; everything
// outside the outermost braces is discarded. Scores are clamped to [0,100].
func parseScores(content string) (Scores, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return Scores{}, fmt.Errorf("completion contains no JSON object")
	}

	var scores Scores
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return Scores{}, fmt.Errorf("malformed score object: %w", err)
	}

	scores.CommitMessage = clamp(scores.CommitMessage)
	scores.Complexity = clamp(scores.Complexity)
	scores.Documentation = clamp(scores.Documentation)
	scores.TestCoverage = clamp(scores.TestCoverage)
	scores.Consistency = clamp(scores.Consistency)
	scores.BestPractices = clamp(scores.BestPractices)
	return scores, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
