// Package cli provides the command-line interface for the Markyt advisor.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"markyt-agent/internal/agents"
	"markyt-agent/internal/config"
	"markyt-agent/internal/logging"
	"markyt-agent/internal/market"
	"markyt-agent/internal/marketdata"
	"markyt-agent/internal/resilience"
	"markyt-agent/internal/security"
	"markyt-agent/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-03-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Market  *market.Service
	Tools   *agents.ToolExecutor
	Advisor *agents.Advisor  // nil when no LLM key is configured
	Cache   store.PriceCache // nil when the cache is disabled
	Health  *resilience.HealthChecker
}

// NewApp wires the market data stack, the tool registry and the advisor.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Health: resilience.NewHealthChecker(2 * time.Second),
	}

	var provider marketdata.Provider = marketdata.NewProvider(marketdata.NewYahooSource(), logger)
	if cfg.Market.RetryAttempts > 1 {
		provider = marketdata.NewRetryingProvider(provider, cfg.Market.RetryAttempts, cfg.Market.RetryInitialDelay, logger)
	}

	// Initialize SQLite cache
	if cfg.Cache.Enabled {
		cache, err := store.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open price cache, continuing without it")
		} else {
			app.Cache = cache
			app.Health.Register("cache", resilience.DatabaseHealthCheck(cache.Ping))
			provider = marketdata.NewCachedProvider(provider, cache, cfg.Cache.TTL, logger)
			logger.Debug().Str("path", cfg.Cache.Path).Dur("ttl", cfg.Cache.TTL).Msg("Price cache initialized")
		}
	}

	app.Market = market.NewService(provider, market.Options{
		DefaultPeriod:   cfg.Market.DefaultPeriod,
		DefaultInterval: cfg.Market.DefaultInterval,
		ParallelFetch:   cfg.Market.ParallelFetch,
	}, logger)

	tools, err := agents.NewToolExecutor(app.Market, logger)
	if err != nil {
		return nil, err
	}
	app.Tools = tools

	// Initialize the advisor if an API key is available
	if cfg.HasAPIKey() {
		var client agents.ChatCompleter = agents.NewLLMClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		if cfg.LLM.BreakerThreshold > 0 {
			breaker := agents.NewBreakerCompleter(client, cfg.LLM.BreakerThreshold, cfg.LLM.BreakerCooldown)
			app.Health.Register("llm", resilience.CircuitBreakerHealthCheck(breaker.Breaker()))
			client = breaker
		}
		app.Advisor = agents.NewAdvisor(client, tools, agents.AdvisorConfig{
			Model:         cfg.LLM.Model,
			MaxTokens:     cfg.LLM.MaxTokens,
			MaxIterations: cfg.Agent.MaxIterations,
			SystemPrompt:  cfg.Agent.SystemPrompt,
			ParallelTools: cfg.Agent.ParallelTools,
		}, logger)
		logger.Debug().Str("model", cfg.LLM.Model).Str("base_url", cfg.LLM.BaseURL).Msg("Advisor initialized")
	} else {
		app.Health.Register("llm", resilience.StaticHealthCheck(resilience.HealthStatusDegraded, "no API key configured, chat is disabled"))
	}

	return app, nil
}

// Close releases the cache.
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// requireAdvisor returns an error explaining how to enable chat.
func (a *App) requireAdvisor() error {
	if a.Advisor == nil {
		return fmt.Errorf("advisor not configured: set GROQ_API_KEY or OPENAI_API_KEY")
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) (*cobra.Command, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	rootCmd := &cobra.Command{
		Use:   "markyt",
		Short: "Markyt - AI stock market advisor",
		Long: `Markyt is a conversational stock market advisor.

It answers questions about stocks by letting a language model call market
data tools (prices, period analysis and portfolio summaries) and serves the
same capabilities over an HTTP API for the web frontend.

Use 'markyt <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/markyt)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addMarketDataCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addAdvisorCommands(rootCmd, app)
	addServerCommands(rootCmd, app)

	return rootCmd, nil
}

// ConfigDirFromArgs finds the --config flag before cobra parses the
// command line, since configuration is loaded first.
func ConfigDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Markyt v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := configDir(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir, "file": filepath.Join(dir, "config.toml")})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true, "chat_enabled": app.Config.HasAPIKey()})
			} else {
				output.Success("✓ Configuration is valid")
				if !app.Config.HasAPIKey() {
					output.Warning("No LLM API key configured; chat is disabled")
				}
			}
			return nil
		},
	})

	return cmd
}

func configDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("config"); dir != "" {
		return dir
	}
	return config.DefaultConfigDir()
}

// redacted returns a copy of cfg that is safe to print.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = security.MaskCredential(c.LLM.APIKey)
	}
	return c
}

func showConfig(output *Output, cfg *config.Config) error {
	if cfg.File != "" {
		output.Dim("Loaded from %s", cfg.File)
	} else {
		output.Dim("Using built-in defaults")
	}
	output.Println()

	output.Bold("LLM")
	output.Printf("  Base URL:        %s\n", cfg.LLM.BaseURL)
	output.Printf("  Model:           %s\n", cfg.LLM.Model)
	output.Printf("  Max Tokens:      %d\n", cfg.LLM.MaxTokens)
	if cfg.HasAPIKey() {
		output.Printf("  API Key:         %s\n", security.MaskCredential(cfg.LLM.APIKey))
	} else {
		output.Printf("  API Key:         %s\n", output.Yellow("not set"))
	}
	output.Println()

	output.Bold("Advisor")
	output.Printf("  Max Iterations:  %d\n", cfg.Agent.MaxIterations)
	output.Printf("  Parallel Tools:  %v\n", cfg.Agent.ParallelTools)
	output.Printf("  Custom Prompt:   %v\n", cfg.Agent.SystemPrompt != "")
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Default Period:  %s\n", cfg.Market.DefaultPeriod)
	output.Printf("  Interval:        %s\n", cfg.Market.DefaultInterval)
	output.Printf("  Retry Attempts:  %d\n", cfg.Market.RetryAttempts)
	output.Printf("  Parallel Fetch:  %d\n", cfg.Market.ParallelFetch)
	output.Println()

	output.Bold("Cache")
	output.Printf("  Enabled:         %v\n", cfg.Cache.Enabled)
	output.Printf("  Path:            %s\n", cfg.Cache.Path)
	output.Printf("  TTL:             %s\n", cfg.Cache.TTL)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr())
	output.Printf("  Allowed Origins: %s\n", strings.Join(cfg.Server.AllowedOrigins, ", "))

	return nil
}
