package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Markyt Advisor Configuration
# Secrets are better kept in the environment or a .env file:
#   GROQ_API_KEY / OPENAI_API_KEY, LLM_BASE_URL, LLM_MODEL, ALLOWED_ORIGINS, PORT

[llm]
# Any OpenAI-compatible endpoint
base_url = "https://api.groq.com/openai/v1"
api_key = ""
model = "llama-3.3-70b-versatile"
max_tokens = 4096
# Pause chat after this many consecutive endpoint outages (0 disables)
breaker_threshold = 5
breaker_cooldown = "30s"

[agent]
# Model completions per chat turn before giving up
max_iterations = 5
# Run the tool calls of one model response concurrently
parallel_tools = false
# Leave empty to use the built-in advisor prompt
system_prompt = ""

[market]
# 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max
default_period = "3mo"
# 1m, 2m, 5m, 15m, 30m, 60m, 90m, 1h, 1d, 5d, 1wk, 1mo, 3mo
default_interval = "1d"
# 1 disables retries
retry_attempts = 1
retry_initial_delay = "500ms"
# Concurrent fetches for portfolio summaries (0 or 1 is sequential)
parallel_fetch = 4

[cache]
# SQLite cache for price history
enabled = false
path = ""
ttl = "15m"

[server]
host = "0.0.0.0"
port = 8000
allowed_origins = ["http://localhost:5173", "http://localhost:3000"]

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
file_path = ""
max_size = 100
max_backups = 7
max_age = 30
`

// createTemplateConfig writes config.toml with every option documented.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
