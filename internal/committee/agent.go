package committee

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Agent is one opaque analysis function. The committee only needs a typed
// reply or a failure; wording and persona live in the prompts.
type Agent interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAIAgent backs the committee stages with chat completions.
type OpenAIAgent struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIAgent creates a rate-limited agent.
func NewOpenAIAgent(apiKey, model string, requestsPerSec int) *OpenAIAgent {
	if requestsPerSec <= 0 {
		requestsPerSec = 1
	}
	return &OpenAIAgent{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Every(time.Second), requestsPerSec),
	}
}

func (a *OpenAIAgent) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// transientErr reports whether an agent failure belongs to the class worth
// a retry: timeouts, network faults, rate limiting, and server-side errors.
// Rejected requests fail the same way every time and are not retried.
func transientErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StaticAgent returns a fixed reply for every call. Used when no API key is
// configured and in tests.
type StaticAgent struct {
	Reply string
	Err   error
}

func (a *StaticAgent) Complete(_ context.Context, _, _ string) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	if a.Reply != "" {
		return a.Reply, nil
	}
	return `{"stance":"NEUTRAL","confidence":"LOW","summary":"static agent placeholder","action":"DEFER","invalidation":""}`, nil
}
