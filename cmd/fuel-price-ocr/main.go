package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/time/rate"

	"github.com/zombor/fuel-price-ocr/internal/logging"
	"github.com/zombor/fuel-price-ocr/internal/pricing"
	"github.com/zombor/fuel-price-ocr/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const defaultStrategies = "gemini,ollama,detect,digits,generic"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("fuel-price-ocr")
	var (
		port            = fs.IntLong("port", 8000, "HTTP server port")
		scanPath        = fs.StringLong("scan", "", "Scan a single image, print the result as JSON and exit")
		strategyList    = fs.StringLong("strategies", defaultStrategies, "Comma-separated fallback order: gemini, ollama, detect, digits, generic, dual")
		strategyTimeout = fs.DurationLong("strategy-timeout", scanning.DefaultStrategyTimeout, "Timeout for a single strategy attempt")
		layoutsPath     = fs.StringLong("layouts", "", "YAML file with named station layouts (optional)")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		geminiRPS       = fs.Float64Long("gemini-rps", 0, "Maximum Gemini requests per second, 0 for unlimited")
		ollamaURL       = fs.StringLong("ollama-url", "", "Ollama API base URL; the ollama strategy is skipped when empty")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, llama3.2-vision)")
		tesseractBin    = fs.StringLong("tesseract", "tesseract", "Tesseract binary name or path")
		tessdataDir     = fs.StringLong("tessdata-dir", "", "Tesseract language data directory (optional)")
		tesseractLangs  = fs.StringLong("tesseract-langs", "deu,fra,ita", "Comma-separated dictionary languages for generic OCR")
		traceDB         = fs.StringLong("trace-db", "", "BoltDB file for scan traces; tracing is off when empty")
		traceDir        = fs.StringLong("trace-dir", "", "Directory for traced scan images (requires --trace-db)")
		submitURL       = fs.StringLong("submit-url", "", "Webhook receiving auto-submitted prices (optional)")
		submitToken     = fs.StringLong("submit-token", "", "Bearer token for the submit webhook (or set SUBMIT_TOKEN env var)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel        = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat       = fs.StringLong("log-format", "text", "Log format: text or json")
		logFile         = fs.StringLong("log-file", "", "Log file path, rotated automatically (default stderr)")
		logMaxSize      = fs.IntLong("log-max-size", 100, "Maximum log file size in megabytes before rotation")
		logMaxAge       = fs.IntLong("log-max-age", 0, "Days to keep rotated log files, 0 to keep all")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FUEL_PRICE_OCR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      *logLevel,
		Format:     *logFormat,
		Output:     *logFile,
		MaxSizeMB:  *logMaxSize,
		MaxAgeDays: *logMaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layouts, err := loadLayouts(*layoutsPath)
	if err != nil {
		slog.Error("Failed to load layouts", "error", err)
		os.Exit(1)
	}

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	strategies, cleanup, err := buildStrategies(ctx, strategyConfig{
		names:       splitList(*strategyList),
		geminiKey:   apiKey,
		geminiModel: *geminiModel,
		geminiRPS:   *geminiRPS,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		timeout:     *strategyTimeout,
		tesseract: scanning.TesseractConfig{
			Binary:      *tesseractBin,
			TessdataDir: *tessdataDir,
			Languages:   splitList(*tesseractLangs),
		},
	})
	if err != nil {
		slog.Error("Failed to initialize strategies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	pipeline := scanning.NewPipeline(strategies,
		scanning.WithLayouts(layouts),
		scanning.WithStrategyTimeout(*strategyTimeout),
	)
	slog.Info("Extraction pipeline ready", "strategies", pipeline.Strategies(), "layouts", layouts.Names())

	if *scanPath != "" {
		if err := scanOnce(ctx, pipeline, *scanPath); err != nil {
			slog.Error("Scan failed", "path", *scanPath, "error", err)
			os.Exit(1)
		}
		return
	}

	// Interface values stay nil unless configured, so the service can tell what is enabled
	var (
		db        pricing.DB
		storage   pricing.Storage
		submitter pricing.Submitter
	)
	if *traceDB != "" {
		slog.Info("Initializing trace database...", "path", *traceDB)
		boltDB, err := pricing.NewBoltDB(*traceDB)
		if err != nil {
			slog.Error("Failed to initialize trace database", "error", err)
			os.Exit(1)
		}
		defer boltDB.Close()
		db = boltDB

		if *traceDir != "" {
			local, err := pricing.NewLocalStorage(*traceDir)
			if err != nil {
				slog.Error("Failed to initialize trace storage", "error", err)
				os.Exit(1)
			}
			storage = local
		}
	}
	if *submitURL != "" {
		token := *submitToken
		if token == "" {
			token = os.Getenv("SUBMIT_TOKEN")
		}
		slog.Info("Auto submit enabled", "url", *submitURL)
		submitter = pricing.NewWebhookSubmitter(*submitURL, token, *strategyTimeout)
	}

	service := pricing.NewService(pipeline, db, storage, submitter)
	server := pricing.NewServer(service, pricing.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadLayouts(path string) (*scanning.Layouts, error) {
	if path == "" {
		return scanning.NewLayouts()
	}
	return scanning.LoadLayouts(path)
}

type strategyConfig struct {
	names       []string
	geminiKey   string
	geminiModel string
	geminiRPS   float64
	ollamaURL   string
	ollamaModel string
	timeout     time.Duration
	tesseract   scanning.TesseractConfig
}

// buildStrategies creates the fallback chain in the configured order.
// Remote strategies without configuration are skipped with a warning rather than failing startup.
func buildStrategies(ctx context.Context, cfg strategyConfig) ([]scanning.Strategy, func(), error) {
	var (
		strategies []scanning.Strategy
		closers    []func() error
		engine     *scanning.Tesseract
	)
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	tesseract := func() *scanning.Tesseract {
		if engine == nil {
			engine = scanning.NewTesseract(cfg.tesseract)
		}
		return engine
	}

	for _, name := range cfg.names {
		switch strings.ToLower(name) {
		case "gemini":
			if cfg.geminiKey == "" {
				slog.Warn("Skipping gemini strategy, no API key. Set --gemini-key flag or GEMINI_API_KEY environment variable")
				continue
			}
			var limiter *rate.Limiter
			if cfg.geminiRPS > 0 {
				limiter = rate.NewLimiter(rate.Limit(cfg.geminiRPS), 1)
			}
			slog.Info("Initializing Gemini strategy...", "model", cfg.geminiModel)
			gemini, err := scanning.NewGemini(cfg.geminiKey, cfg.geminiModel, limiter)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("initializing gemini: %w", err)
			}
			closers = append(closers, gemini.Close)
			strategies = append(strategies, gemini)
		case "ollama":
			if cfg.ollamaURL == "" {
				slog.Warn("Skipping ollama strategy, no --ollama-url")
				continue
			}
			slog.Info("Initializing Ollama strategy...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
			strategies = append(strategies, scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, cfg.timeout))
		case "detect":
			strategies = append(strategies, tesseract().Detector())
		case "digits":
			strategies = append(strategies, tesseract().Digits())
		case "generic":
			strategies = append(strategies, tesseract().Generic())
		case "dual":
			strategies = append(strategies, tesseract().DualPass())
		default:
			cleanup()
			return nil, nil, fmt.Errorf("unknown strategy %q", name)
		}
	}

	// Probe tesseract at startup so the first request does not pay for it
	if engine != nil {
		if err := engine.Ready(ctx); err != nil {
			slog.Warn("Tesseract strategies will be skipped", "error", err)
		}
	}
	if len(strategies) == 0 {
		slog.Warn("No extraction strategies configured; every scan will return no prices")
	}
	return strategies, cleanup, nil
}

// scanOnce runs the pipeline on one file and prints the result
func scanOnce(ctx context.Context, pipeline *scanning.Pipeline, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	result, err := pipeline.Extract(ctx, data, mime.TypeByExtension(strings.ToLower(filepath.Ext(path))))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
