package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"markyt-agent/internal/models"
	"markyt-agent/pkg/utils"
)

// addAnalysisCommands adds analysis commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Analyze a symbol over a period",
		Long: `Compute price statistics for a symbol over a period: high, low and
average close, volatility, change and the short-term trend.`,
		Example: `  markyt analyze AAPL
  markyt analyze MSFT --period 1y`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			period, _ := cmd.Flags().GetString("period")
			if period == "" {
				period = app.Config.Market.DefaultPeriod
			}

			analysis, err := app.Market.Analysis(ctx, args[0], period)
			if err != nil {
				output.Error("Analysis failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(analysis)
			}
			return displayAnalysis(output, analysis)
		},
	}

	cmd.Flags().StringP("period", "p", "", "Lookback period (default from config)")

	return cmd
}

func displayAnalysis(output *Output, a *models.Analysis) error {
	output.Box(fmt.Sprintf("%s - %s", a.Symbol, a.Period), []string{
		"Current:    " + utils.FormatPrice(a.CurrentPrice, "USD"),
		fmt.Sprintf("Change:     %s", output.FormatPercent(a.ChangePct)),
		fmt.Sprintf("Trend:      %s", output.Trend(a.Trend)),
		"High:       " + utils.FormatPrice(a.Max, "USD"),
		"Low:        " + utils.FormatPrice(a.Min, "USD"),
		"Average:    " + utils.FormatPrice(a.Avg, "USD"),
		fmt.Sprintf("Volatility: %.2f", a.Volatility),
	})
	return nil
}

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio <symbols...>",
		Short: "Summarize a list of symbols",
		Long: `Analyze every symbol over the default period and report the combined
price, the most volatile symbol and the best performer.

Symbols that cannot be analyzed are skipped.`,
		Example: `  markyt portfolio AAPL MSFT NVDA
  markyt portfolio AAPL,TSLA --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*commandTimeout)
			defer cancel()

			summary, err := app.Market.PortfolioSummary(ctx, splitSymbols(args))
			if err != nil {
				output.Error("Portfolio summary failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(summary)
			}
			return displayPortfolio(output, summary)
		},
	}
}

// splitSymbols accepts symbols as separate arguments or comma lists.
func splitSymbols(args []string) []string {
	var symbols []string
	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	return symbols
}

func displayPortfolio(output *Output, s *models.PortfolioSummary) error {
	output.Bold("Portfolio Summary (%d positions)", s.TotalPositions)
	output.Println()

	table := NewTable(output, "Symbol", "Price", "Change", "Volatility", "Trend").AlignRight(1, 2, 3)
	for _, a := range s.Stocks {
		table.AddRow(
			a.Symbol,
			fmt.Sprintf("%.2f", a.CurrentPrice),
			output.FormatPercent(a.ChangePct),
			fmt.Sprintf("%.2f", a.Volatility),
			output.Trend(a.Trend),
		)
	}
	table.Render()
	output.Println()

	output.Printf("  Combined price:     %.2f\n", s.CombinedValue)
	output.Printf("  Best performer:     %s\n", output.Green(s.BestPerformer))
	output.Printf("  Highest volatility: %s\n", output.Yellow(s.HighestVolatility))
	return nil
}
