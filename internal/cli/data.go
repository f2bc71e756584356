package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"markyt-agent/internal/marketdata"
	"markyt-agent/internal/models"
	"markyt-agent/pkg/utils"
)

const commandTimeout = 30 * time.Second

// addMarketDataCommands adds market data commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newChartCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>",
		Short: "Get the latest quote for a symbol",
		Long: `Fetch the latest close, previous close and daily change for a symbol.

Prices come from Yahoo Finance and are delayed.`,
		Example: `  markyt quote AAPL
  markyt quote msft --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			quote, err := app.Market.Quote(ctx, args[0])
			if err != nil {
				output.Error("Failed to get quote: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(quote)
			}
			return displayQuote(output, quote)
		},
	}
}

func displayQuote(output *Output, quote *models.Quote) error {
	output.Bold("%s  %s", quote.Symbol, quote.CompanyName)
	output.Println()

	price := FormatMoney(quote.CurrentPrice, quote.Currency)
	output.Printf("  Price:    %s  %s\n", output.BoldText(price), output.FormatChange(quote.Change, quote.ChangePercent))
	output.Printf("  Previous: %s\n", FormatMoney(quote.PreviousClose, quote.Currency))
	output.Println()

	output.Dim("  Updated: %s", quote.Timestamp)
	return nil
}

func newChartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <symbol>",
		Short: "Get chart data for a symbol",
		Long: `Fetch chart-ready price points for a symbol over a period.

Periods: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max`,
		Example: `  markyt chart AAPL
  markyt chart TSLA --period 1y --interval 1wk
  markyt chart NVDA --period 5d --interval 1h --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			period, _ := cmd.Flags().GetString("period")
			interval, _ := cmd.Flags().GetString("interval")
			limit, _ := cmd.Flags().GetInt("limit")

			chart, err := app.Market.ChartData(ctx, args[0], period, interval)
			if err != nil {
				output.Error("Failed to get chart data: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(chart)
			}
			return displayChart(output, chart, limit)
		},
	}

	cmd.Flags().StringP("period", "p", marketdata.DefaultPeriod, "Lookback period")
	cmd.Flags().StringP("interval", "i", marketdata.DefaultInterval, "Bar interval")
	cmd.Flags().IntP("limit", "n", 20, "Number of most recent points to display")

	return cmd
}

func displayChart(output *Output, chart *models.ChartSeries, limit int) error {
	output.Bold("%s - %s", chart.Symbol, chart.Period)
	output.Printf("  Current: %s  %s  (%d points)\n",
		utils.FormatPrice(chart.CurrentPrice, "USD"), output.FormatPercent(chart.ChangePercent), chart.DataPoints)
	output.Println()

	points := chart.Data
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}

	table := NewTable(output, "Date", "Close", "High", "Low", "Volume").AlignRight(1, 2, 3, 4)
	for _, p := range points {
		table.AddRow(
			p.Date,
			fmt.Sprintf("%.2f", p.Price),
			output.Green(fmt.Sprintf("%.2f", p.High)),
			output.Red(fmt.Sprintf("%.2f", p.Low)),
			FormatVolume(p.Volume),
		)
	}
	table.Render()

	if len(points) < len(chart.Data) {
		output.Println()
		output.Dim("Showing last %d of %d points", len(points), len(chart.Data))
	}
	return nil
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Price cache management",
		Long:  "Inspect and prune the local SQLite price cache.",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached series older than a duration",
		Example: `  markyt cache purge
  markyt cache purge --older-than 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Cache == nil {
				output.Warning("Price cache is disabled (set cache.enabled = true)")
				return nil
			}

			olderThan, _ := cmd.Flags().GetDuration("older-than")
			removed, err := app.Cache.Purge(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				output.Error("Failed to purge cache: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int64{"removed": removed})
			}
			output.Success("✓ Removed %d cached series", removed)
			return nil
		},
	}
	purge.Flags().Duration("older-than", 0, "Only remove series fetched before now minus this duration")

	cmd.AddCommand(purge)
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the cache database path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]interface{}{"path": app.Config.Cache.Path, "enabled": app.Cache != nil})
				return
			}
			output.Println(app.Config.Cache.Path)
		},
	})

	return cmd
}
