package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"markyt-agent/internal/agents"
	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
)

// addAdvisorCommands adds the conversational commands.
func addAdvisorCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newChatCmd(app))
	rootCmd.AddCommand(newToolsCmd(app))
}

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the advisor",
		Long: `Ask the advisor a question. With a message it answers once and exits;
without one it starts an interactive session that keeps the conversation.

In a session, /reset clears the conversation and /exit quits.`,
		Example: `  markyt chat "¿Cómo va Apple este trimestre?"
  markyt chat "Compara AAPL, MSFT y NVDA" --json
  markyt chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireAdvisor(); err != nil {
				output.Error("%v", err)
				return err
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			if len(args) > 0 {
				return runChatTurn(cmd.Context(), output, app, strings.Join(args, " "), nil, timeout, verbose)
			}

			var reader lineReader
			if isatty.IsTerminal(os.Stdin.Fd()) {
				reader = &surveyReader{message: "Tú:"}
			} else {
				reader = newScannerReader(cmd.InOrStdin())
			}
			return runChatSession(cmd.Context(), output, app, reader, timeout, verbose)
		},
	}

	cmd.Flags().BoolP("verbose", "v", false, "show iterations and tool calls")
	cmd.Flags().Duration("timeout", 2*time.Minute, "time limit for one answer")

	return cmd
}

// chatOutput is the JSON form of one answered turn.
type chatOutput struct {
	Response   string           `json:"response"`
	History    []models.Message `json:"history"`
	Iterations int              `json:"iterations"`
	ToolCalls  int              `json:"tool_calls"`
	Exhausted  bool             `json:"exhausted"`
}

func runChatTurn(ctx context.Context, output *Output, app *App, message string, history []models.Message, timeout time.Duration, verbose bool) error {
	result, err := askAdvisor(ctx, app.Advisor, message, history, timeout)
	if err != nil {
		output.Error("Chat failed: %v", err)
		return err
	}

	if output.IsJSON() {
		return output.JSON(chatOutput{
			Response:   result.Response,
			History:    result.History,
			Iterations: result.Iterations,
			ToolCalls:  result.ToolCalls,
			Exhausted:  result.Exhausted,
		})
	}
	displayAnswer(output, result, verbose)
	return nil
}

func runChatSession(ctx context.Context, output *Output, app *App, reader lineReader, timeout time.Duration, verbose bool) error {
	if !output.IsJSON() {
		output.Bold("Markyt")
		output.Dim("Pregunta sobre cualquier acción. /reset limpia la conversación, /exit termina.")
		output.Println()
	}

	var history []models.Message
	for {
		line, err := reader.ReadLine()
		if errors.Is(err, errEndOfInput) {
			return nil
		}
		if err != nil {
			return err
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			history = nil
			output.Dim("Conversation cleared")
			continue
		}

		result, err := askAdvisor(ctx, app.Advisor, line, history, timeout)
		if err != nil {
			// A failed turn leaves the conversation as it was.
			output.Error("Chat failed: %v", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		history = append(result.History, models.Message{Role: models.RoleAssistant, Content: result.Response})

		if output.IsJSON() {
			if err := output.JSON(chatOutput{
				Response:   result.Response,
				History:    result.History,
				Iterations: result.Iterations,
				ToolCalls:  result.ToolCalls,
				Exhausted:  result.Exhausted,
			}); err != nil {
				return err
			}
			continue
		}
		displayAnswer(output, result, verbose)
		output.Println()
	}
}

func askAdvisor(ctx context.Context, advisor *agents.Advisor, message string, history []models.Message, timeout time.Duration) (*agents.ChatResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return advisor.Chat(ctx, message, history)
}

func displayAnswer(output *Output, result *agents.ChatResult, verbose bool) {
	output.Printf("%s %s\n", output.BoldText("Markyt:"), result.Response)
	if verbose {
		output.Dim("  %d iterations, %d tool calls", result.Iterations, result.ToolCalls)
	}
	if result.Exhausted {
		output.Warning("  The advisor ran out of iterations before answering")
	}
}

func newToolsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and run advisor tools",
		Long:  "List the tools offered to the model or run one directly, as the model would.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tool definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			defs := agents.GetToolDefinitions()
			if output.IsJSON() {
				return output.JSON(defs)
			}

			table := NewTable(output, "Tool", "Description")
			for _, def := range defs {
				table.AddRow(def.Function.Name, TruncateString(def.Function.Description, 70))
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Run a tool with JSON arguments",
		Example: `  markyt tools call get_stock_price '{"symbol":"AAPL"}'
  markyt tools call get_portfolio_summary '{"symbols":["AAPL","MSFT"]}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*commandTimeout)
			defer cancel()

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}

			result, err := app.Tools.ExecuteTool(ctx, args[0], raw)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			// Content is already JSON; re-indent it for reading.
			var pretty interface{}
			if err := json.Unmarshal([]byte(result.Content()), &pretty); err != nil {
				output.Println(result.Content())
			} else if err := output.JSON(pretty); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("tool %s failed: %s", args[0], result.Err)
			}
			return nil
		},
	})

	return cmd
}
