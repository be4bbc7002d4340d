package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/osceprep/patientsim/internal/attempt"
	"github.com/osceprep/patientsim/internal/generator"
	"github.com/osceprep/patientsim/internal/handler"
	appI18n "github.com/osceprep/patientsim/internal/i18n"
	"github.com/osceprep/patientsim/internal/model"
	"github.com/osceprep/patientsim/internal/scenario"
	"github.com/osceprep/patientsim/internal/voice"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "patientsim",
		Short: "Virtual patient simulator for clinical exam rehearsal",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `patientsim --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP simulation server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "patientsim.db", "SQLite database path")
	f.StringSliceP("scenarios", "s", []string{"scenarios/chest_pain_id.json", "scenarios/asthma_en.json"}, "Paths to scenario JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 20*time.Second, "Per-reply LLM timeout before the canned fallback")
	f.StringP("lang", "l", "en", "UI language (en, id)")
	f.String("mentor-password", "", "Initial mentor password (or set PATIENTSIM_MENTOR_PASSWORD)")
	f.String("stt-url", "", "Whisper-compatible /transcribe endpoint (empty disables voice input)")
	f.String("elevenlabs-key", "", "ElevenLabs API key (empty disables voice output)")
	f.String("voice-id", "", "ElevenLabs voice id for the patient")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "patientsim.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PATIENTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("patientsim")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/patientsim")
	v.AddConfigPath("/etc/patientsim")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	store, err := attempt.NewSQLiteStore(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	// Seed the mentor password hash if none is stored yet.
	if err := seedMentorPassword(store, v.GetString("mentor-password")); err != nil {
		return fmt.Errorf("seed mentor password: %w", err)
	}

	recorder := attempt.NewRecorder(store)
	if attempts, err := recorder.Attempts(); err == nil {
		slog.Info("loaded recorded attempts", "count", len(attempts))
	} else {
		return fmt.Errorf("load attempts: %w", err)
	}

	// Load and validate scenarios.
	catalog, err := scenario.Load(v.GetStringSlice("scenarios"))
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	if catalog.Len() == 0 {
		return fmt.Errorf("no scenarios loaded")
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create the reply generator. A missing or unhealthy LLM endpoint
	// degrades to the canned fallback replies instead of failing startup.
	var primary generator.Generator
	llmClient := generator.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		slog.Warn("LLM endpoint unavailable, using canned replies",
			"url", v.GetString("llm-url"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		primary = llmClient
	}
	gen := generator.NewResilient(primary, generator.NewFallback(), v.GetDuration("llm-timeout"))

	// Optional voice clients.
	voiceCfg := handler.Config{VoiceID: v.GetString("voice-id")}
	if url := v.GetString("stt-url"); url != "" {
		voiceCfg.Transcriber = voice.NewWhisperClient(url)
		slog.Info("voice input enabled", "stt_url", url)
	}
	if key := v.GetString("elevenlabs-key"); key != "" {
		voiceCfg.TTS = voice.NewElevenLabsClient(key)
		slog.Info("voice output enabled")
	}

	h := handler.New(catalog, gen, recorder, store, voiceCfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Mentor-Password"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"scenarios", catalog.Len(),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	store, err := attempt.NewSQLiteStore(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	attempts, err := store.ListAttempts()
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	results := make([]model.AttemptResult, 0, len(attempts))
	for _, a := range attempts {
		results = append(results, model.ExportResult(a))
	}

	export := model.AttemptExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func seedMentorPassword(store attempt.Store, password string) error {
	existing, err := store.GetMetadata(handler.MentorPasswordKey)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	if password == "" {
		return fmt.Errorf("mentor password is required: set --mentor-password flag or PATIENTSIM_MENTOR_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash mentor password: %w", err)
	}
	if err := store.SetMetadata(handler.MentorPasswordKey, string(hash)); err != nil {
		return fmt.Errorf("store mentor password hash: %w", err)
	}

	slog.Info("seeded mentor password")
	return nil
}
