// ABOUTME: Entry point for the kook-gateway bot client
// ABOUTME: Runs the gateway session and offers REST and health inspection commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/bot"
	"github.com/2389/kook-gateway/internal/config"
	"github.com/2389/kook-gateway/internal/dispatch"
	"github.com/2389/kook-gateway/internal/echo"
	"github.com/2389/kook-gateway/internal/wire"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _               _                      _
| | _____   ___ | | __      __ _  __ _| |_ _____      ____ _ _   _
| |/ / _ \ / _ \| |/ /____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
|   < (_) | (_) |   <_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|\_\___/ \___/|_|\_\     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

// getConfigPath returns the path to the config file.
// Priority: KOOK_CONFIG env var > XDG_CONFIG_HOME/kook/gateway.yaml > ~/.config/kook/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("KOOK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "kook", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: kook-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Connect to the gateway and handle events")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  me        Show the bot identity")
		fmt.Println("  gateway   Print the gateway URL")
		fmt.Println("  guilds    List joined guilds")
		fmt.Println("  health    Check a running bot's health")
		fmt.Println("  ready     Check whether a running bot's session is established")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "me":
		err = runMe(ctx)
	case "gateway":
		err = runGateway(ctx)
	case "guilds":
		err = runGuilds(ctx)
	case "health":
		err = runProbe(ctx, "/health")
	case "ready":
		err = runProbe(ctx, "/health/ready")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("API:       %s\n", cfg.Bot.APIBase)
	if cfg.Server.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Dispatch:  ")
	if cfg.Dispatch.MaxInFlight > 0 {
		fmt.Printf("%d workers, queue %d", cfg.Dispatch.MaxInFlight, cfg.Dispatch.QueueSize)
	} else {
		fmt.Print("unbounded")
	}
	if cfg.Gateway.Compress {
		yellow.Print(" [compressed]")
	}
	fmt.Println()
	fmt.Println()

	var handler dispatch.Handler
	if cfg.Bot.Echo {
		h := echo.New(logger)
		h.SkipSelf = cfg.Bot.SkipSelfAuthored()
		handler = h
	} else {
		handler = logOnly{skipSelf: cfg.Bot.SkipSelfAuthored(), logger: logger}
	}

	b, err := bot.New(cfg, handler, bot.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	logger.Info("starting kook-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"echo", cfg.Bot.Echo,
	)
	return b.Run(ctx)
}

func newClient(cfg *config.Config) (*api.Client, error) {
	kind, err := api.ParseTokenKind(cfg.Bot.TokenType)
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Bot.APIBase, api.Token{Kind: kind, Value: cfg.Bot.Token}), nil
}

func runMe(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	me, err := client.Me(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  %s#%s\n", me.Username, me.IdentifyNum)
	fmt.Printf("  ID:     %s\n", me.ID)
	fmt.Printf("  Bot:    %t\n", me.Bot)
	fmt.Printf("  Online: %t\n", me.Online)
	return nil
}

func runGateway(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	url, err := client.GatewayURL(ctx, cfg.Gateway.Compress)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func runGuilds(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	guilds, err := client.Guilds(ctx)
	if err != nil {
		return err
	}
	if len(guilds) == 0 {
		fmt.Println("no guilds")
		return nil
	}
	gray := color.New(color.FgHiBlack)
	for _, g := range guilds {
		fmt.Printf("  %s  ", g.ID)
		fmt.Print(g.Name)
		gray.Printf("  (owner %s)\n", g.UserID)
	}
	return nil
}

func runProbe(ctx context.Context, path string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "kook-gateway configuration setup")
	fmt.Fprintln(out, "================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Bot ---")
	token := prompt(reader, out, "Bot token (or ${ENV_VAR})", "${KOOK_TOKEN}")
	echoOn := isYes(prompt(reader, out, "Echo messages back?", "yes"))

	fmt.Fprintln(out, "\n--- Gateway ---")
	compress := isYes(prompt(reader, out, "Request compressed frames?", "no"))

	fmt.Fprintln(out, "\n--- Server ---")
	httpAddr := prompt(reader, out, "Health/metrics address (empty disables)", "127.0.0.1:9102")

	fmt.Fprintln(out, "\n--- Logging ---")
	logLevel := prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, out, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# kook-gateway configuration\n")
	cfg.WriteString("# Generated by kook-gateway init\n\n")

	cfg.WriteString("bot:\n")
	cfg.WriteString(fmt.Sprintf("  token: %q\n", token))
	cfg.WriteString("  token_type: \"bot\"\n")
	cfg.WriteString(fmt.Sprintf("  api_base: %q\n", api.DefaultBaseURL))
	cfg.WriteString("  skip_self: true\n")
	cfg.WriteString(fmt.Sprintf("  echo: %t\n", echoOn))
	cfg.WriteString("\n")

	cfg.WriteString("gateway:\n")
	cfg.WriteString(fmt.Sprintf("  compress: %t\n", compress))
	cfg.WriteString("  handshake_timeout: \"6s\"\n")
	cfg.WriteString("  heartbeat_interval: \"6s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("dispatch:\n")
	cfg.WriteString("  max_in_flight: 0\n")
	cfg.WriteString("  queue_size: 256\n")
	cfg.WriteString("  dedupe_ttl: \"5m\"\n")
	cfg.WriteString("  dedupe_size: 4096\n")
	cfg.WriteString("\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the bot:")
	fmt.Fprintln(out, "  kook-gateway serve")
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

// logOnly logs every event it receives. Used when echo is disabled.
type logOnly struct {
	skipSelf bool
	logger   *slog.Logger
}

func (l logOnly) SkipSelfAuthored() bool { return l.skipSelf }

func (l logOnly) HandleEvent(_ context.Context, _ *dispatch.Session, evt *wire.Event) error {
	l.logger.Info("event",
		"type", evt.Type.String(),
		"channel_type", evt.ChannelType,
		"target_id", evt.TargetID,
		"author_id", evt.AuthorID,
		"msg_id", evt.MsgID,
	)
	return nil
}
