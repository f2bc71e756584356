// Package agents implements the tool-calling financial advisor.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
)

// ToolName identifies a tool the model may call.
type ToolName string

// Tools exposed to the model. Names are part of the prompt contract.
const (
	ToolGetStockPrice       ToolName = "get_stock_price"
	ToolGetStockAnalysis    ToolName = "get_stock_analysis"
	ToolGetPortfolioSummary ToolName = "get_portfolio_summary"
)

// DefaultAnalysisPeriod is used when the model omits a period.
const DefaultAnalysisPeriod = "3mo"

// MarketTools is the market surface the tools are implemented on.
type MarketTools interface {
	StockPrice(ctx context.Context, symbol string) (*models.StockPrice, error)
	Analysis(ctx context.Context, symbol, period string) (*models.Analysis, error)
	PortfolioSummary(ctx context.Context, symbols []string) (*models.PortfolioSummary, error)
}

// GetToolDefinitions returns all available tool definitions for function calling.
func GetToolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(ToolGetStockPrice),
				Description: "Obtiene el precio actual de una acción del mercado estadounidense. Úsala cuando el usuario pregunte a cuánto cotiza un ticker ahora mismo (ej: AAPL para Apple).",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"symbol": {
							"type": "string",
							"description": "Símbolo ticker de la acción (ej: AAPL, MSFT, TSLA)"
						}
					},
					"required": ["symbol"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(ToolGetStockAnalysis),
				Description: "Análisis histórico de una acción: precio actual, máximo, mínimo, promedio, volatilidad, tendencia (alcista/bajista) y variación porcentual del período.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"symbol": {
							"type": "string",
							"description": "Símbolo ticker de la acción (ej: AAPL, MSFT, TSLA)"
						},
						"period": {
							"type": "string",
							"enum": ["1mo", "3mo", "6mo", "1y"],
							"description": "Período de análisis: 1mo, 3mo, 6mo o 1y",
							"default": "3mo"
						}
					},
					"required": ["symbol"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(ToolGetPortfolioSummary),
				Description: "Resume un portafolio de varias acciones: análisis por acción, valor combinado, la más volátil y la de mejor rendimiento.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"symbols": {
							"type": "array",
							"items": {"type": "string"},
							"description": "Lista de símbolos ticker del portafolio (ej: [\"AAPL\", \"MSFT\"])"
						}
					},
					"required": ["symbols"]
				}`),
			},
		},
	}
}

// ToolResult is the outcome of a tool invocation: either a value or an error
// message. It serializes to the value or to {"error": message}.
type ToolResult struct {
	Value interface{}
	Err   string
}

// Failed reports whether the result carries an error.
func (r ToolResult) Failed() bool {
	return r.Err != ""
}

// MarshalJSON implements json.Marshaler.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	return json.Marshal(r.Value)
}

// Content returns the JSON text sent back to the model.
func (r ToolResult) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": "failed to encode tool result: " + err.Error()})
	}
	return string(b)
}

func errorResult(format string, args ...interface{}) ToolResult {
	return ToolResult{Err: fmt.Sprintf(format, args...)}
}

type toolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolExecutor dispatches model tool calls to their implementations.
type ToolExecutor struct {
	market   MarketTools
	handlers map[ToolName]toolHandler
	logger   zerolog.Logger
}

// NewToolExecutor creates a tool executor and checks that every registered
// tool has a handler and vice versa.
func NewToolExecutor(market MarketTools, logger zerolog.Logger) (*ToolExecutor, error) {
	te := &ToolExecutor{
		market: market,
		logger: logger.With().Str("component", "tools").Logger(),
	}
	te.handlers = map[ToolName]toolHandler{
		ToolGetStockPrice:       te.executeGetStockPrice,
		ToolGetStockAnalysis:    te.executeGetStockAnalysis,
		ToolGetPortfolioSummary: te.executeGetPortfolioSummary,
	}

	if err := ValidateRegistry(GetToolDefinitions(), te.handlers); err != nil {
		return nil, err
	}
	return te, nil
}

// ValidateRegistry checks that defs and handlers name exactly the same tools.
func ValidateRegistry(defs []openai.Tool, handlers map[ToolName]toolHandler) error {
	seen := make(map[ToolName]bool, len(defs))
	for _, def := range defs {
		if def.Function == nil {
			return errors.Wrap(errors.ErrConfigInvalid, "tool definition without function")
		}
		name := ToolName(def.Function.Name)
		if seen[name] {
			return errors.Wrapf(errors.ErrConfigInvalid, "tool %s registered twice", name)
		}
		seen[name] = true
		if _, ok := handlers[name]; !ok {
			return errors.Wrapf(errors.ErrConfigInvalid, "tool %s has no implementation", name)
		}
	}
	for name := range handlers {
		if !seen[name] {
			return errors.Wrapf(errors.ErrConfigInvalid, "tool %s is implemented but not registered", name)
		}
	}
	return nil
}

// ExecuteTool runs toolName with the model-supplied JSON arguments. Tool
// failures, malformed arguments and panics all become error results; the
// returned error is non-nil only when toolName is not registered.
func (te *ToolExecutor) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (result ToolResult, err error) {
	handler, ok := te.handlers[ToolName(toolName)]
	if !ok {
		return ToolResult{}, errors.NewDispatchError(toolName, errors.ErrUnknownTool)
	}

	params := map[string]interface{}{}
	if len(strings.TrimSpace(string(args))) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult("invalid arguments for %s: %v", toolName, err), nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			te.logger.Error().
				Str("tool", toolName).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Tool panicked")
			result = errorResult("%s failed: %v", toolName, r)
			err = nil
		}
	}()

	value, herr := handler(ctx, params)
	if herr != nil {
		return ToolResult{Err: herr.Error()}, nil
	}
	return ToolResult{Value: value}, nil
}

// decodeArgs decodes loosely typed model arguments into out.
func decodeArgs(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return errors.Wrap(errors.ErrInvalidArguments, err.Error())
	}
	return nil
}

type stockPriceArgs struct {
	Symbol string `json:"symbol"`
}

type stockAnalysisArgs struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
}

type portfolioArgs struct {
	Symbols []string `json:"symbols"`
}

func requireSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", errors.NewValidationError("symbol", symbol, "symbol is required")
	}
	return symbol, nil
}

func (te *ToolExecutor) executeGetStockPrice(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var args stockPriceArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	symbol, err := requireSymbol(args.Symbol)
	if err != nil {
		return nil, err
	}
	return te.market.StockPrice(ctx, symbol)
}

func (te *ToolExecutor) executeGetStockAnalysis(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var args stockAnalysisArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	symbol, err := requireSymbol(args.Symbol)
	if err != nil {
		return nil, err
	}
	if args.Period == "" {
		args.Period = DefaultAnalysisPeriod
	}
	return te.market.Analysis(ctx, symbol, args.Period)
}

func (te *ToolExecutor) executeGetPortfolioSummary(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var args portfolioArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(args.Symbols))
	for _, s := range args.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil, errors.NewValidationError("symbols", args.Symbols, "at least one symbol is required")
	}
	return te.market.PortfolioSummary(ctx, symbols)
}
