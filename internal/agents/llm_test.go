package agents

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
	"markyt-agent/internal/resilience"
)

func TestBreakerCompleterOpensOnOutages(t *testing.T) {
	client := &scriptedClient{err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	bc := NewBreakerCompleter(client, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := bc.CreateChatCompletion(ctx, openai.ChatCompletionRequest{}); err == nil {
			t.Fatalf("call %d: expected upstream error", i)
		}
	}

	_, err := bc.CreateChatCompletion(ctx, openai.ChatCompletionRequest{})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if len(client.requests) != 2 {
		t.Errorf("open circuit must not reach the endpoint, got %d requests", len(client.requests))
	}
}

func TestBreakerCompleterIgnoresRequestErrors(t *testing.T) {
	client := &scriptedClient{err: &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "model not found"}}
	bc := NewBreakerCompleter(client, 1, time.Minute)

	for i := 0; i < 3; i++ {
		bc.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	}
	if bc.Breaker().State() != resilience.CircuitClosed {
		t.Errorf("client errors must not open the circuit")
	}
	if len(client.requests) != 3 {
		t.Errorf("expected every request to reach the endpoint, got %d", len(client.requests))
	}
}

func TestIsLLMOutage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &openai.APIError{HTTPStatusCode: 502}, true},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"request error", &openai.RequestError{HTTPStatusCode: 500}, true},
		{"transport", errors.New("connection refused"), true},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", errors.Wrap(context.Canceled, "completion"), false},
	}
	for _, tt := range tests {
		if got := isLLMOutage(tt.err); got != tt.want {
			t.Errorf("%s: isLLMOutage = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMessageConversionRoundTrip(t *testing.T) {
	msg := models.Message{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{{
			ID:        "call_1",
			Name:      "get_stock_price",
			Arguments: map[string]interface{}{"symbol": "AAPL"},
		}},
	}

	back := fromOpenAIMessage(toOpenAIMessage(msg))
	if back.Role != models.RoleAssistant || len(back.ToolCalls) != 1 {
		t.Fatalf("unexpected message %+v", back)
	}
	if back.ToolCalls[0].ID != "call_1" || back.ToolCalls[0].Arguments["symbol"] != "AAPL" {
		t.Errorf("tool call not preserved: %+v", back.ToolCalls[0])
	}
}
