package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sourcegraph/conc/iter"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/logging"
	"markyt-agent/internal/models"
)

// FallbackResponse is returned when the model keeps requesting tools after
// the iteration bound.
const FallbackResponse = "Lo siento, necesité demasiados pasos para responder. ¿Podrías reformular tu pregunta?"

// Advisor defaults.
const (
	DefaultMaxIterations = 5
	DefaultMaxTokens     = 4096
	DefaultModel         = "llama-3.3-70b-versatile"
)

// ToolDispatcher executes model tool calls.
type ToolDispatcher interface {
	ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (ToolResult, error)
}

// AdvisorConfig configures an Advisor. It is built once at startup.
type AdvisorConfig struct {
	Model         string
	MaxTokens     int
	MaxIterations int
	SystemPrompt  string
	// ParallelTools runs the tool calls of one model response concurrently.
	// Results are still appended in call order.
	ParallelTools bool
}

// ChatResult is the outcome of one advisor turn.
type ChatResult struct {
	// Response is the model's final answer or FallbackResponse.
	Response string
	// History is the prior history extended with the user message and every
	// assistant/tool exchange of this turn. The final answer is not included.
	History []models.Message
	// Iterations counts model completions.
	Iterations int
	ToolCalls  int
	Exhausted  bool
}

// Advisor drives the tool-calling conversation loop.
type Advisor struct {
	client ChatCompleter
	tools  ToolDispatcher
	defs   []openai.Tool
	cfg    AdvisorConfig
	logger zerolog.Logger
}

// NewAdvisor creates an advisor. Zero config values take the defaults.
func NewAdvisor(client ChatCompleter, tools ToolDispatcher, cfg AdvisorConfig, logger zerolog.Logger) *Advisor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Advisor{
		client: client,
		tools:  tools,
		defs:   GetToolDefinitions(),
		cfg:    cfg,
		logger: logging.WithAgent(logger, "advisor"),
	}
}

// Chat answers message given the prior conversation. history is not
// modified. Model and transport failures are returned as errors; tool
// failures are reported to the model and never abort the turn.
func (a *Advisor) Chat(ctx context.Context, message string, history []models.Message) (*ChatResult, error) {
	if err := ValidateHistory(history); err != nil {
		return nil, err
	}

	began := time.Now()
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.cfg.SystemPrompt,
	})
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, toOpenAIMessage(m))
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	result := &ChatResult{}
	for result.Iterations < a.cfg.MaxIterations {
		callStart := time.Now()
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:      a.cfg.Model,
			Messages:   messages,
			Tools:      a.defs,
			ToolChoice: "auto",
			MaxTokens:  a.cfg.MaxTokens,
		})
		result.Iterations++
		logging.LogAPICall(a.logger, "POST", "chat/completions", time.Since(callStart), err)
		if err != nil {
			return nil, errors.NewAgentError("advisor", "completion", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.NewAgentError("advisor", "completion", fmt.Errorf("no response from model"))
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			result.Response = choice.Content
			result.History = toHistory(messages)
			logging.LogChatTurn(a.logger, result.Iterations, result.ToolCalls, false, time.Since(began))
			return result, nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   choice.Content,
			ToolCalls: choice.ToolCalls,
		})
		for i, content := range a.runTools(ctx, choice.ToolCalls) {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: choice.ToolCalls[i].ID,
				Name:       choice.ToolCalls[i].Function.Name,
			})
		}
		result.ToolCalls += len(choice.ToolCalls)
	}

	a.logger.Warn().
		Err(errors.ErrIterationsExhausted).
		Int("max_iterations", a.cfg.MaxIterations).
		Msg("Iteration bound reached without a final answer")

	result.Response = FallbackResponse
	result.History = toHistory(messages)
	result.Exhausted = true
	logging.LogChatTurn(a.logger, result.Iterations, result.ToolCalls, true, time.Since(began))
	return result, nil
}

// runTools executes calls and returns their contents in call order.
func (a *Advisor) runTools(ctx context.Context, calls []openai.ToolCall) []string {
	run := func(call *openai.ToolCall) string {
		return a.runTool(ctx, *call)
	}
	if a.cfg.ParallelTools && len(calls) > 1 {
		return iter.Map(calls, run)
	}
	out := make([]string, len(calls))
	for i := range calls {
		out[i] = run(&calls[i])
	}
	return out
}

func (a *Advisor) runTool(ctx context.Context, call openai.ToolCall) string {
	began := time.Now()
	logger := logging.WithTool(a.logger, call.Function.Name)
	logger.Debug().
		Str("call_id", call.ID).
		Str("arguments", call.Function.Arguments).
		Msg("Executing tool")

	res, err := a.tools.ExecuteTool(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	if err != nil {
		// Unknown tools are reported back to the model so it can correct itself.
		logger.Warn().Err(err).Msg("Tool dispatch failed")
		res = errorResult("unknown tool: %s", call.Function.Name)
	}

	logging.LogToolCall(logger, call.ID, call.Function.Name, time.Since(began), res.Failed())
	return res.Content()
}

// toHistory drops the system prompt and converts the rest.
func toHistory(messages []openai.ChatCompletionMessage) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == openai.ChatMessageRoleSystem {
			continue
		}
		out = append(out, fromOpenAIMessage(m))
	}
	return out
}

// ValidateHistory checks roles and that every tool call of an assistant
// message is answered by exactly one tool message before the next turn.
func ValidateHistory(history []models.Message) error {
	var calls []models.ToolCall
	pending := map[string]bool{}
	caller := 0

	unanswered := func() error {
		for _, tc := range calls {
			if pending[tc.ID] {
				return errors.NewValidationError(fmt.Sprintf("history[%d].tool_calls", caller), tc.ID,
					"tool call has no tool result")
			}
		}
		return nil
	}

	for i, m := range history {
		switch m.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
			if err := unanswered(); err != nil {
				return err
			}
			calls, pending, caller = nil, map[string]bool{}, i
			if m.Role != models.RoleAssistant {
				continue
			}
			for _, tc := range m.ToolCalls {
				if tc.ID == "" {
					return errors.NewValidationError(fmt.Sprintf("history[%d].tool_calls", i), tc.Name, "tool call without id")
				}
				pending[tc.ID] = true
			}
			calls = m.ToolCalls
		case models.RoleTool:
			if !pending[m.ToolCallID] {
				return errors.NewValidationError(fmt.Sprintf("history[%d].tool_call_id", i), m.ToolCallID,
					"does not match a pending tool call of the preceding assistant message")
			}
			delete(pending, m.ToolCallID)
		default:
			return errors.NewValidationError(fmt.Sprintf("history[%d].role", i), m.Role, "unknown role")
		}
	}
	return unanswered()
}
