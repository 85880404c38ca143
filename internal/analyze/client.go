package analyze

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/isscope/isscope/internal/models"
)

// DefaultBaseURL is the OpenRouter chat-completions root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const maxAnalyzeAttempts = 3

// ErrMissingAPIKey is a configuration error raised at construction, before
// any request is attempted.
var ErrMissingAPIKey = errors.New("analyze: OpenRouter API key is missing")

// LogFunc receives human-readable log messages from the analyzer.
type LogFunc func(format string, args ...any)

// ProgressFunc reports how many analyses have completed.
type ProgressFunc func(completed, total int)

// CancelFunc is polled before claiming new work.
type CancelFunc func() bool

// Client calls a structured-output chat-completion endpoint to classify
// issues. Failures never escape Analyze: every issue gets a result, falling
// back to defaults marked as degraded in AnalysisNotes.
type Client struct {
	cli     openai.Client
	model   string
	workers int

	// Base delay for the 429 backoff, doubled per retry.
	retryBackoff time.Duration
}

// NewClient builds an analysis client for the given model. baseURL may be
// empty to use OpenRouter.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// Retries are handled here, not by the SDK.
	cli := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHeader("X-Title", "isscope"),
		option.WithMaxRetries(0),
	)
	return &Client{
		cli:          cli,
		model:        model,
		workers:      15,
		retryBackoff: 2 * time.Second,
	}, nil
}

// Analyze classifies one issue. Up to three attempts are made; a 429 from
// the endpoint backs off exponentially starting at two seconds and consumes
// an attempt, while any other failure immediately yields the default
// result. The error is absorbed, never returned.
func (c *Client) Analyze(ctx context.Context, issue models.Issue, logf LogFunc) models.AnalysisResult {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	userMsg := formatIssue(issue)
	logf("Analyzing #%d: %s", issue.Number, truncateRunes(issue.Title, 60))

	backoff := c.retryBackoff
	for attempt := 0; attempt < maxAnalyzeAttempts; attempt++ {
		raw, err := c.complete(ctx, userMsg)
		if err == nil {
			result := parseAnalysisResponse(raw)
			logf("#%d analyzed: score %d/100, status %s", issue.Number, result.DoabilityScore, result.Status)
			return result
		}

		if isRateLimited(err) && attempt < maxAnalyzeAttempts-1 {
			logf("Rate limited. Waiting %s before retry", backoff)
			if serr := sleepCtx(ctx, backoff); serr != nil {
				break
			}
			backoff *= 2
			continue
		}

		logf("Failed to analyze #%d: %v", issue.Number, err)
		out := models.DefaultAnalysis()
		out.AnalysisNotes = fmt.Sprintf("Error: %v", err)
		return out
	}

	return models.DefaultAnalysis()
}

func (c *Client) complete(ctx context.Context, userMsg string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMsg),
		},
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(maxOutputTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("analyze: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func isRateLimited(err error) bool {
	var apierr *openai.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
