// Companiond is the conversational companion backend.
//
// It persists per-user companion conversations as checkpoints in
// SQLite, talks to an OpenAI-compatible (or local Ollama) completion
// provider, and serves an HTTP + WebSocket API for chat, companion
// management, and selfie generation. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); a .env file, if present, is loaded
// before config expansion.
//
// Usage:
//
//	companiond serve             Start the API server
//	companiond version           Print version and build information
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/verdant-labs/companiond/internal/api"
	"github.com/verdant-labs/companiond/internal/avatar"
	"github.com/verdant-labs/companiond/internal/buildinfo"
	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/config"
	"github.com/verdant-labs/companiond/internal/conversation"
	"github.com/verdant-labs/companiond/internal/history"
	"github.com/verdant-labs/companiond/internal/llm"
	"github.com/verdant-labs/companiond/internal/memory"
	"github.com/verdant-labs/companiond/internal/prompt"
	"github.com/verdant-labs/companiond/internal/store"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the companiond command. Arguments
// are parsed by hand: the flag package relies on package-level globals
// that interfere with calling run() concurrently from tests, and the
// argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "companiond - Conversational Companion Backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: companiond [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

// newLogger creates the process logger writing to w, with the TRACE
// level rendered by name.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and loads the YAML config, after loading .env so
// ${VAR} expansion inside the config can see dotenv values.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newCompletionClient builds the provider stack from config: the
// primary provider plus a model-name router when both are configured,
// so local models can be addressed by prefix.
func newCompletionClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Completion.Provider {
	case "openai":
		if cfg.Completion.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("completion.openai.api_key is required for the openai provider")
		}
		openaiClient := llm.NewOpenAIClient(cfg.Completion.OpenAI.APIKey, cfg.Completion.OpenAI.BaseURL, logger)
		if cfg.Completion.Ollama.URL == "" {
			return openaiClient, nil
		}
		multi := llm.NewMultiClient(openaiClient)
		multi.AddProvider("ollama", llm.NewOllamaClient(cfg.Completion.Ollama.URL, logger))
		for _, model := range cfg.Completion.OllamaModels {
			multi.AddModel(model, "ollama")
		}
		return multi, nil
	case "ollama":
		return llm.NewOllamaClient(cfg.Completion.Ollama.URL, logger), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q (expected openai or ollama)", cfg.Completion.Provider)
	}
}

func conversationDefaults(cfg *config.Config) checkpoint.ModelParams {
	return checkpoint.ModelParams{
		Model:             cfg.Conversation.Model,
		MaxTokens:         cfg.Conversation.MaxTokens,
		Temperature:       cfg.Conversation.Temperature,
		TopP:              cfg.Conversation.TopP,
		FrequencyPenalty:  cfg.Conversation.FrequencyPenalty,
		PresencePenalty:   cfg.Conversation.PresencePenalty,
		BestOf:            cfg.Conversation.BestOf,
		Tone:              cfg.Conversation.Tone,
		MemoryTokenBudget: cfg.Conversation.MemoryTokenBudget,
	}
}

// runServe starts the API server and blocks until SIGINT or SIGTERM,
// then flushes every live conversation before exiting.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info("starting", "build", buildinfo.String(), "config", cfgPath)

	client, err := newCompletionClient(cfg, logger)
	if err != nil {
		return err
	}
	client = llm.WithTimeout(client, time.Duration(cfg.Completion.TimeoutSec)*time.Second)

	db, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()

	checkpoints, err := checkpoint.NewStore(db, logger)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}

	defaults := conversationDefaults(cfg)
	modelParams := llm.Params{
		Model:       defaults.Model,
		MaxTokens:   defaults.MaxTokens,
		Temperature: defaults.Temperature,
		TopP:        defaults.TopP,
		BestOf:      defaults.BestOf,
	}

	deps := conversation.Deps{
		Client:     client,
		Summarizer: memory.NewLLMSummarizer(client, modelParams),
		Tones:      prompt.NewToneHandler(client, modelParams),
		Logger:     logger,
	}
	conversations := store.New(checkpoints, deps, logger)

	if err := conversations.LoadAll(ctx); err != nil {
		return fmt.Errorf("load companions: %w", err)
	}

	var auditLog *history.Log
	if cfg.History.Enabled {
		auditLog, err = history.NewLog(db, cfg.History.Env, logger)
		if err != nil {
			return fmt.Errorf("history log: %w", err)
		}
	}

	var selfies *avatar.Service
	if cfg.Avatar.Enabled {
		uploader, err := avatar.NewS3Uploader(ctx, cfg.Avatar.Region, cfg.Avatar.Bucket, cfg.Avatar.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("avatar uploader: %w", err)
		}
		selfies = avatar.NewService(
			avatar.NewPromptHandler(client, modelParams),
			avatar.NewOpenAIImageGenerator(cfg.Completion.OpenAI.APIKey, cfg.Completion.OpenAI.BaseURL, logger),
			uploader, logger)
	}

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, conversations,
		prompt.NewGenerator(client, modelParams),
		defaults, auditLog, selfies, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := conversations.FlushAll(shutdownCtx); err != nil {
		return fmt.Errorf("flush conversations: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
