package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
	"markyt-agent/internal/resilience"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// ChatCompleter is the part of the OpenAI client the advisor needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewLLMClient creates a client for any OpenAI-compatible endpoint. An empty
// baseURL targets OpenAI itself.
func NewLLMClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// BreakerCompleter fails fast while the LLM endpoint keeps failing.
type BreakerCompleter struct {
	next    ChatCompleter
	breaker *resilience.CircuitBreaker
}

// NewBreakerCompleter wraps next with a circuit breaker that opens after
// threshold consecutive outages and retries one request after cooldown.
func NewBreakerCompleter(next ChatCompleter, threshold int, cooldown time.Duration) *BreakerCompleter {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = threshold
	if cooldown > 0 {
		cfg.Cooldown = cooldown
	}
	cfg.IsFailure = isLLMOutage
	return &BreakerCompleter{
		next:    next,
		breaker: resilience.NewCircuitBreaker("llm", cfg),
	}
}

// CreateChatCompletion implements ChatCompleter.
func (b *BreakerCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return resilience.ExecuteWithResult(b.breaker, ctx, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return b.next.CreateChatCompletion(ctx, req)
	})
}

// Breaker exposes the circuit for health reporting.
func (b *BreakerCompleter) Breaker() *resilience.CircuitBreaker {
	return b.breaker
}

// isLLMOutage counts server errors, rate limiting and transport failures.
// Request errors such as a bad model name or an invalid key do not count.
func isLLMOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError || reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}

func toOpenAIMessage(m models.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		args := "{}"
		if tc.Arguments != nil {
			if b, err := json.Marshal(tc.Arguments); err == nil {
				args = string(b)
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	return msg
}

// fromOpenAIMessage converts a wire message. Arguments that are not a JSON
// object are dropped; the tool result already reported them to the model.
func fromOpenAIMessage(msg openai.ChatCompletionMessage) models.Message {
	m := models.Message{
		Role:       models.Role(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		m.ToolCalls = append(m.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return m
}
