package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"markyt-agent/internal/agents"
	"markyt-agent/internal/config"
	"markyt-agent/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM:    config.LLMConfig{Model: "test-model", MaxTokens: 256},
		Agent:  config.AgentConfig{MaxIterations: 5},
		Market: config.MarketConfig{DefaultPeriod: "3mo", DefaultInterval: "1d", RetryAttempts: 1, ParallelFetch: 2},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8000},
	}
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCmd(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, testConfig(), "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("expected JSON, got %q", out)
	}
	if v["version"] != Version {
		t.Errorf("unexpected version %v", v)
	}
}

func TestToolsList(t *testing.T) {
	out, err := execute(t, testConfig(), "tools", "list")
	if err != nil {
		t.Fatalf("tools list: %v", err)
	}
	for _, name := range []string{"get_stock_price", "get_stock_analysis", "get_portfolio_summary"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %s in output:\n%s", name, out)
		}
	}
}

func TestToolsCallUnknown(t *testing.T) {
	if _, err := execute(t, testConfig(), "tools", "call", "get_news"); err == nil {
		t.Error("expected an error for an unknown tool")
	}
}

func TestChatRequiresKey(t *testing.T) {
	_, err := execute(t, testConfig(), "chat", "hola")
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestConfigShowRedactsKey(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.APIKey = "gsk-secret-1234"

	out, err := execute(t, cfg, "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret") || !strings.Contains(out, "gsk-*******1234") {
		t.Errorf("api key not redacted:\n%s", out)
	}
}

func TestConfigDirFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"serve"}, ""},
		{[]string{"--config", "/tmp/markyt", "serve"}, "/tmp/markyt"},
		{[]string{"chat", "--config=/etc/markyt"}, "/etc/markyt"},
		{[]string{"chat", "--config"}, ""},
	}
	for _, tt := range tests {
		if got := ConfigDirFromArgs(tt.args); got != tt.want {
			t.Errorf("ConfigDirFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestSplitSymbols(t *testing.T) {
	got := splitSymbols([]string{"AAPL,MSFT", " NVDA ", ",", "tsla"})
	if strings.Join(got, " ") != "AAPL MSFT NVDA tsla" {
		t.Errorf("unexpected symbols %v", got)
	}
}

// echoClient answers every completion with the number of messages it saw.
type echoClient struct {
	seen []int
}

func (c *echoClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.seen = append(c.seen, len(req.Messages))
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "ok"},
		}},
	}, nil
}

type scriptedReader struct {
	lines []string
}

func (r *scriptedReader) ReadLine() (string, error) {
	if len(r.lines) == 0 {
		return "", errEndOfInput
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func TestChatSessionKeepsAndResetsHistory(t *testing.T) {
	app, err := NewApp(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	client := &echoClient{}
	app.Advisor = agents.NewAdvisor(client, app.Tools, agents.AdvisorConfig{}, zerolog.Nop())

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	output := NewOutput(cmd)

	reader := &scriptedReader{lines: []string{"hola", "", "¿y AAPL?", "/reset", "adiós", "/exit", "never read"}}
	if err := runChatSession(context.Background(), output, app, reader, time.Minute, false); err != nil {
		t.Fatalf("session: %v", err)
	}

	// system+user, then system+user+assistant+user, then a fresh system+user.
	want := []int{2, 4, 2}
	if len(client.seen) != len(want) {
		t.Fatalf("expected %d completions, got %v", len(want), client.seen)
	}
	for i := range want {
		if client.seen[i] != want[i] {
			t.Errorf("turn %d: expected %d messages, got %d", i, want[i], client.seen[i])
		}
	}
	if len(reader.lines) != 1 {
		t.Errorf("expected /exit to stop the session, %d lines left", len(reader.lines))
	}
	if !strings.Contains(buf.String(), "Markyt: ok") {
		t.Errorf("expected answers in output:\n%s", buf.String())
	}
}

func TestChatSessionJSON(t *testing.T) {
	app, err := NewApp(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	app.Advisor = agents.NewAdvisor(&echoClient{}, app.Tools, agents.AdvisorConfig{}, zerolog.Nop())

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", true, "")
	cmd.SetOut(&buf)

	reader := &scriptedReader{lines: []string{"hola"}}
	if err := runChatSession(context.Background(), NewOutput(cmd), app, reader, 0, false); err != nil {
		t.Fatalf("session: %v", err)
	}

	var got chatOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected one JSON object, got %q", buf.String())
	}
	if got.Response != "ok" || got.Iterations != 1 || len(got.History) != 1 || got.History[0].Role != models.RoleUser {
		t.Errorf("unexpected output %+v", got)
	}
}
