package agents

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
)

// scriptedClient replays responses and records every request.
type scriptedClient struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionMessage
	// repeat generates a response once responses are exhausted.
	repeat   func(n int) openai.ChatCompletionMessage
	err      error
	requests []openai.ChatCompletionRequest
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := req
	snapshot.Messages = append([]openai.ChatCompletionMessage(nil), req.Messages...)
	c.requests = append(c.requests, snapshot)

	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	n := len(c.requests) - 1
	var msg openai.ChatCompletionMessage
	switch {
	case n < len(c.responses):
		msg = c.responses[n]
	case c.repeat != nil:
		msg = c.repeat(n)
	default:
		return openai.ChatCompletionResponse{}, fmt.Errorf("unexpected request %d", n)
	}
	msg.Role = openai.ChatMessageRoleAssistant
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: msg}},
	}, nil
}

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

func newTestAdvisor(t *testing.T, client ChatCompleter, cfg AdvisorConfig) *Advisor {
	t.Helper()
	te, _ := newTestExecutor(t)
	return NewAdvisor(client, te, cfg, zerolog.Nop())
}

func TestChatWithoutTools(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{Content: "La diversificación reparte el riesgo entre varios activos."},
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	prior := []models.Message{
		{Role: models.RoleUser, Content: "hola"},
		{Role: models.RoleAssistant, Content: "¡Hola!"},
	}
	res, err := advisor.Chat(context.Background(), "what is diversification?", prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Iterations != 1 || res.ToolCalls != 0 || res.Exhausted {
		t.Errorf("unexpected outcome %+v", res)
	}
	if res.Response != "La diversificación reparte el riesgo entre varios activos." {
		t.Errorf("response not returned verbatim: %q", res.Response)
	}
	if len(res.History) != 3 {
		t.Fatalf("expected prior + user message, got %d entries", len(res.History))
	}
	last := res.History[2]
	if last.Role != models.RoleUser || last.Content != "what is diversification?" {
		t.Errorf("unexpected last history entry %+v", last)
	}

	req := client.requests[0]
	if req.Messages[0].Role != openai.ChatMessageRoleSystem || req.Messages[0].Content != DefaultSystemPrompt {
		t.Error("expected the system prompt first")
	}
	if req.ToolChoice != "auto" || req.MaxTokens != DefaultMaxTokens || req.Model != DefaultModel {
		t.Errorf("unexpected request settings %v %d %s", req.ToolChoice, req.MaxTokens, req.Model)
	}
	if len(req.Tools) != 3 {
		t.Errorf("expected 3 tools offered, got %d", len(req.Tools))
	}
}

func TestChatExecutesToolsInOrder(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{ToolCalls: []openai.ToolCall{
			toolCall("call_1", "get_stock_price", `{"symbol":"AAPL"}`),
			toolCall("call_2", "get_stock_analysis", `{"symbol":"BAD"}`),
		}},
		{Content: "AAPL cotiza a 123.45 USD 📈"},
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	res, err := advisor.Chat(context.Background(), "¿Cómo va Apple?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Iterations != 2 || res.ToolCalls != 2 {
		t.Errorf("expected 2 iterations and 2 tool calls, got %+v", res)
	}

	// user, assistant(tool calls), tool, tool
	if len(res.History) != 4 {
		t.Fatalf("expected 4 history entries, got %d: %+v", len(res.History), res.History)
	}
	assistant := res.History[1]
	if assistant.Role != models.RoleAssistant || len(assistant.ToolCalls) != 2 {
		t.Fatalf("unexpected assistant entry %+v", assistant)
	}
	if assistant.ToolCalls[0].Arguments["symbol"] != "AAPL" {
		t.Errorf("arguments not preserved: %+v", assistant.ToolCalls[0])
	}

	first, second := res.History[2], res.History[3]
	if first.ToolCallID != "call_1" || second.ToolCallID != "call_2" {
		t.Errorf("tool results out of order: %s, %s", first.ToolCallID, second.ToolCallID)
	}
	if !strings.Contains(first.Content, `"price":123.45`) {
		t.Errorf("unexpected price payload %s", first.Content)
	}
	if !strings.Contains(second.Content, `"error"`) || !strings.Contains(second.Content, "BAD") {
		t.Errorf("expected recoverable error payload, got %s", second.Content)
	}

	// The second completion sees the tool results.
	if got := len(client.requests[1].Messages); got != 5 {
		t.Errorf("expected 5 messages in second request, got %d", got)
	}
}

func TestChatExhaustion(t *testing.T) {
	client := &scriptedClient{repeat: func(n int) openai.ChatCompletionMessage {
		return openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{
			toolCall(fmt.Sprintf("call_%d", n), "get_stock_price", `{"symbol":"AAPL"}`),
		}}
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{MaxIterations: 5})

	res, err := advisor.Chat(context.Background(), "loop forever", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Exhausted || res.Response != FallbackResponse {
		t.Errorf("expected fallback, got %+v", res)
	}
	if len(client.requests) > 6 {
		t.Errorf("loop exceeded max_iterations+1 completions: %d", len(client.requests))
	}

	assistants, tools := 0, 0
	for _, m := range res.History {
		switch m.Role {
		case models.RoleAssistant:
			assistants++
		case models.RoleTool:
			tools++
		}
	}
	if assistants != 5 || tools != 5 {
		t.Errorf("expected 5 assistant/tool cycles, got %d/%d", assistants, tools)
	}
}

func TestChatUnknownToolIsRecoverable(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{ToolCalls: []openai.ToolCall{toolCall("call_x", "get_news", `{}`)}},
		{Content: "No tengo noticias."},
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	res, err := advisor.Chat(context.Background(), "noticias de AAPL", nil)
	if err != nil {
		t.Fatalf("unknown tools must not abort the turn: %v", err)
	}
	if res.History[2].Content != `{"error":"unknown tool: get_news"}` {
		t.Errorf("unexpected tool content %s", res.History[2].Content)
	}
}

func TestChatMalformedArgumentsAreRecoverable(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{ToolCalls: []openai.ToolCall{toolCall("call_1", "get_stock_price", `{"symbol":`)}},
		{Content: "¿Qué símbolo?"},
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	res, err := advisor.Chat(context.Background(), "precio", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.History[2].Content, "invalid arguments") {
		t.Errorf("expected invalid arguments error, got %s", res.History[2].Content)
	}
	if res.History[1].ToolCalls[0].Arguments != nil {
		t.Errorf("malformed arguments should not decode, got %v", res.History[1].ToolCalls[0].Arguments)
	}
}

func TestChatModelFailurePropagates(t *testing.T) {
	client := &scriptedClient{err: stderrors.New("503 service unavailable")}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	_, err := advisor.Chat(context.Background(), "hola", nil)
	var agentErr *errors.AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentError, got %v", err)
	}
	if len(client.requests) != 1 {
		t.Errorf("model failures must not be retried, got %d requests", len(client.requests))
	}
}

func TestChatDoesNotMutateCallerHistory(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{ToolCalls: []openai.ToolCall{toolCall("call_1", "get_stock_price", `{"symbol":"AAPL"}`)}},
		{Content: "listo"},
	}}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	prior := make([]models.Message, 1, 8)
	prior[0] = models.UserMessage("hola")
	snapshot := append([]models.Message(nil), prior...)

	res, err := advisor.Chat(context.Background(), "precio de AAPL", prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(prior, snapshot) {
		t.Errorf("caller history changed: %+v", prior)
	}
	res.History[0].Content = "changed"
	if prior[0].Content != "hola" {
		t.Error("returned history aliases the caller's slice")
	}
}

func TestChatRejectsInconsistentHistory(t *testing.T) {
	client := &scriptedClient{}
	advisor := newTestAdvisor(t, client, AdvisorConfig{})

	histories := map[string][]models.Message{
		"orphan tool result": {
			models.UserMessage("hola"),
			{Role: models.RoleTool, ToolCallID: "orphan", Content: "{}"},
		},
		"unanswered tool call": {
			models.UserMessage("hola"),
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_9", Name: "get_stock_price"}}},
		},
	}
	for name, history := range histories {
		_, err := advisor.Chat(context.Background(), "hola", history)
		if !errors.Is(err, errors.ErrInputValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(client.requests) != 0 {
		t.Error("model must not be called for an invalid history")
	}
}

// slowDispatcher finishes earlier calls later to expose ordering bugs.
type slowDispatcher struct{}

func (slowDispatcher) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Delay int `json:"delay"`
	}
	_ = json.Unmarshal(args, &params)
	time.Sleep(time.Duration(params.Delay) * time.Millisecond)
	return ToolResult{Value: params}, nil
}

func TestChatParallelToolsKeepCallOrder(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{ToolCalls: []openai.ToolCall{
			toolCall("a", "slow", `{"delay":30}`),
			toolCall("b", "slow", `{"delay":15}`),
			toolCall("c", "slow", `{"delay":0}`),
		}},
		{Content: "ok"},
	}}
	advisor := NewAdvisor(client, slowDispatcher{}, AdvisorConfig{ParallelTools: true}, zerolog.Nop())

	res, err := advisor.Chat(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		m := res.History[2+i]
		if m.ToolCallID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, m.ToolCallID)
		}
	}
	if res.History[2].Content != `{"delay":30}` {
		t.Errorf("content mismatched with call: %s", res.History[2].Content)
	}
}

func TestValidateHistory(t *testing.T) {
	call := models.ToolCall{ID: "call_1", Name: "get_stock_price"}
	tests := []struct {
		name    string
		history []models.Message
		ok      bool
	}{
		{"empty", nil, true},
		{"plain turns", []models.Message{models.UserMessage("a"), {Role: models.RoleAssistant, Content: "b"}}, true},
		{"answered call", []models.Message{
			models.UserMessage("a"),
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
			models.ToolResultMessage(call, "{}"),
		}, true},
		{"answered twice", []models.Message{
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
			models.ToolResultMessage(call, "{}"),
			models.ToolResultMessage(call, "{}"),
		}, false},
		{"stale call", []models.Message{
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
			models.UserMessage("a"),
			models.ToolResultMessage(call, "{}"),
		}, false},
		{"unknown role", []models.Message{{Role: "moderator", Content: "x"}}, false},
		{"unanswered call before user", []models.Message{
			models.UserMessage("a"),
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
			models.UserMessage("b"),
		}, false},
		{"unanswered trailing call", []models.Message{
			models.UserMessage("a"),
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
		}, false},
		{"partially answered", []models.Message{
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call, {ID: "call_2", Name: "get_stock_price"}}},
			models.ToolResultMessage(call, "{}"),
			{Role: models.RoleAssistant, Content: "listo"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.history)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateHistory() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

// Property: every tool_call_id in the returned history matches exactly one
// earlier tool call, and the loop never exceeds max_iterations completions.
func TestProperty_ToolCallIDsRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("tool results answer exactly one prior call", prop.ForAll(
		func(callsPerTurn []int, maxIterations int, parallel bool) bool {
			responses := make([]openai.ChatCompletionMessage, 0, len(callsPerTurn)+1)
			for turn, n := range callsPerTurn {
				msg := openai.ChatCompletionMessage{}
				for i := 0; i < n; i++ {
					msg.ToolCalls = append(msg.ToolCalls,
						toolCall(fmt.Sprintf("call_%d_%d", turn, i), "get_stock_price", `{"symbol":"AAPL"}`))
				}
				responses = append(responses, msg)
			}
			responses = append(responses, openai.ChatCompletionMessage{Content: "fin"})

			client := &scriptedClient{responses: responses}
			advisor := newTestAdvisor(t, client, AdvisorConfig{MaxIterations: maxIterations, ParallelTools: parallel})

			res, err := advisor.Chat(context.Background(), "pregunta", nil)
			if err != nil {
				return false
			}
			if len(client.requests) > maxIterations {
				return false
			}
			if res.Exhausted != (len(callsPerTurn) >= maxIterations) {
				return false
			}
			if err := ValidateHistory(res.History); err != nil {
				return false
			}

			emitted := map[string]int{}
			for _, m := range res.History {
				for _, tc := range m.ToolCalls {
					emitted[tc.ID]++
				}
				if m.Role == models.RoleTool && emitted[m.ToolCallID] != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 7).FlatMap(func(n interface{}) gopter.Gen {
			return gen.SliceOfN(n.(int), gen.IntRange(1, 4))
		}, reflect.TypeOf([]int(nil))),
		gen.IntRange(1, 6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
