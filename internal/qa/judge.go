package qa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:generate go run go.uber.org/mock/mockgen -source=judge.go -destination=mock_judge.go -package=qa

// Judge sends a compiled prompt to the judging model and returns its parsed verdict.
// A failed call returns a *CallFailedError and no Result.
type Judge interface {
	Evaluate(ctx context.Context, prompt, model string) (Result, error)
}

// CallFailedError is returned when the model could not be reached or did not answer
// in time. It is never converted into a verdict.
type CallFailedError struct {
	Model      string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *CallFailedError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("judge call to %s timed out: %v", e.Model, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("judge call to %s failed with status %d: %v", e.Model, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("judge call to %s failed: %v", e.Model, e.Err)
	}
}

func (e *CallFailedError) Unwrap() error { return e.Err }

// RateLimited reports whether the endpoint rejected the call with 429.
func (e *CallFailedError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsCallFailed reports whether err is (or wraps) a *CallFailedError.
func IsCallFailed(err error) bool {
	var cf *CallFailedError
	return errors.As(err, &cf)
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	MaxTokens    int64
	HTTPClient   *http.Client
}

// OpenAIJudge talks to an OpenAI-compatible chat completions endpoint.
type OpenAIJudge struct {
	client       openai.Client
	defaultModel string
	timeout      time.Duration
	maxTokens    int64
}

func NewOpenAIJudge(cfg OpenAIConfig) *OpenAIJudge {
	// Retries are the orchestrator's decision, so the SDK must not retry on its own.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-3.5-turbo"
	}
	return &OpenAIJudge{
		client:       openai.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
		maxTokens:    cfg.MaxTokens,
	}
}

func (j *OpenAIJudge) Evaluate(ctx context.Context, prompt, model string) (Result, error) {
	if strings.TrimSpace(model) == "" {
		model = j.defaultModel
	}
	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	resp, err := j.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstruction),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(j.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Result{}, classifyCallError(callCtx, model, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, &CallFailedError{Model: model, Err: errors.New("response has no choices")}
	}

	content := resp.Choices[0].Message.Content
	clog.FromContext(ctx).With("model", model).
		With("latency", time.Since(start)).
		Debugf("judge responded with %d bytes", len(content))
	return ParseVerdict(content), nil
}

func classifyCallError(callCtx context.Context, model string, err error) *CallFailedError {
	cf := &CallFailedError{Model: model, Err: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		cf.Timeout = true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		cf.StatusCode = apiErr.StatusCode
	}
	return cf
}
