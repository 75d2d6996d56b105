package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vsix-downloader/config"
	"vsix-downloader/db"
	"vsix-downloader/fetcher"
	"vsix-downloader/notifier"
	"vsix-downloader/orchestrator"
	"vsix-downloader/parser"
	"vsix-downloader/report"
	"vsix-downloader/scraper"
	"vsix-downloader/sheets"
)

const version = "1.2"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Path to .env file (ignored if missing)")
	listPath := flag.String("list", "", "Path to the extension list (overrides extensions_file)")
	outputDir := flag.String("out", "", "Output directory (overrides VSIX_DOWNLOAD_PATH)")
	workers := flag.Int("workers", 0, "Maximum concurrent downloads (overrides VSIX_MAX_WORKERS)")
	retries := flag.Int("retries", 0, "Attempts per extension (overrides VSIX_MAX_RETRIES)")
	headful := flag.Bool("show-browser", false, "Run Chrome with a visible window")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Printf("Warning: %v\n", err)
	}

	cfg := loadConfig(*configPath)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatalf("Invalid environment: %v\n", err)
	}

	if *listPath != "" {
		cfg.ExtensionsFile = *listPath
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *workers != 0 {
		cfg.MaxWorkers = *workers
	}
	if *retries != 0 {
		cfg.MaxRetries = *retries
	}
	if *headful {
		cfg.Browser.Headless = false
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}

	logger, closeLog := setupLogger(cfg.LogFile)
	defer closeLog()

	extensions, err := parser.ReadList(cfg.ExtensionsFile)
	if err != nil {
		logger.Fatalf("Failed to read extension list: %v\n", err)
	}

	printBanner(cfg, len(extensions))

	if cfg.Portal.Probe {
		probePortal(cfg, logger)
	}

	if _, err := scraper.SweepSessions(cfg.Browser.SessionDir, cfg.Browser.StaleSessionAge, logger); err != nil {
		logger.Printf("Warning: Failed to sweep stale sessions: %v\n", err)
	}

	sessions := scraper.NewSessionManager(cfg.Browser.SessionDir,
		scraper.LaunchChrome(cfg.Browser.Headless, cfg.Browser.ChromeBin), logger)
	downloader := scraper.NewRodDownloader(sessions, scraperOptions(cfg), logger)

	orch, err := orchestrator.New(downloader, downloader, orchestrator.Options{
		OutputDir:   cfg.OutputDir,
		Concurrency: cfg.MaxWorkers,
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Logger:      logger,
		Progress:    os.Stdout,
	})
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := orch.Run(ctx, extensions)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEnvironment) {
			fmt.Printf("\nError: %v\n", err)
			fmt.Println("Make sure Chrome or Chromium is installed, or set VSIX_CHROME_BIN.")
		}
		logger.Printf("Run failed: %v\n", err)
		closeLog()
		os.Exit(1)
	}

	// sinks still get a chance to report after an interrupt
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	sinks := buildSinks(cfg, logger)
	sinks.Report(reportCtx, res)
	sinks.Close()

	if ctx.Err() != nil {
		logger.Println("Interrupted; extensions that never started were counted as failed")
	}
}

// loadConfig loads configuration from file or returns defaults
func loadConfig(configPath string) *config.Config {
	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			log.Printf("Warning: Failed to load config file: %v. Using defaults.\n", err)
			cfg = config.GetDefaultConfig()
		}
	} else {
		log.Println("Config file not found. Using default configuration.")
		cfg = config.GetDefaultConfig()
	}
	return cfg
}

// setupLogger writes log lines to stderr and, when possible, to logPath
func setupLogger(logPath string) (*log.Logger, func()) {
	if logPath == "" {
		return log.New(os.Stderr, "", log.LstdFlags), func() {}
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Warning: Failed to open log file %s: %v\n", logPath, err)
		return log.New(os.Stderr, "", log.LstdFlags), func() {}
	}

	logger := log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags)
	return logger, func() { f.Close() }
}

func printBanner(cfg *config.Config, count int) {
	out, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		out = cfg.OutputDir
	}

	line := strings.Repeat("=", 50)
	fmt.Println(line)
	fmt.Printf("VSIX Downloader v%s\n", version)
	fmt.Printf("Extension list: %s\n", cfg.ExtensionsFile)
	fmt.Printf("Output directory: %s\n", out)
	fmt.Printf("Max concurrency: %d\n", cfg.MaxWorkers)
	fmt.Printf("Found %d extensions\n", count)
	fmt.Println(line)
}

// probePortal warns early when the portal is unreachable. It never stops
// the run; the environment check decides that.
func probePortal(cfg *config.Config, logger *log.Logger) {
	res, err := fetcher.NewProber(cfg.Portal.ProbeTimeout).
		Probe(cfg.Portal.URL, cfg.Portal.InputSelector, cfg.Portal.ButtonText)
	if err != nil {
		logger.Printf("Warning: Portal probe failed: %v\n", err)
		return
	}
	logger.Printf("Portal %s answered %d (title %q, static form: %v)\n",
		res.URL, res.StatusCode, res.Title, res.Rendered())
}

func scraperOptions(cfg *config.Config) scraper.Options {
	return scraper.Options{
		PortalURL:      cfg.Portal.URL,
		InputSelector:  cfg.Portal.InputSelector,
		ButtonXPath:    cfg.Portal.ButtonXPath,
		ElementTimeout: cfg.Portal.ElementTimeout,
		NavTimeout:     cfg.Portal.NavTimeout,
		PageSettle:     cfg.Portal.PageSettle,
		InputSettle:    cfg.Portal.InputSettle,
		ClickSettle:    cfg.Portal.ClickSettle,
		PollInterval:   cfg.Portal.PollInterval,
		PollChecks:     cfg.Portal.PollChecks,
		SkipExisting:   cfg.Portal.SkipExisting,
		NavRate:        cfg.Portal.NavRate,
	}
}

// buildSinks always includes the console summary. The other sinks are added
// when configured; a sink that cannot start is skipped with a warning.
func buildSinks(cfg *config.Config, logger *log.Logger) *report.Fanout {
	sinks := report.NewFanout(logger, report.NewConsole(os.Stdout))

	if cfg.Report.DatabaseURL != "" {
		database, err := db.NewDB(cfg.Report.DatabaseURL)
		if err != nil {
			logger.Printf("Warning: Failed to connect to database: %v\n", err)
		} else {
			sinks.Add(database)
		}
	}

	if cfg.Report.SpreadsheetURL != "" {
		spreadsheetID := sheets.ExtractSpreadsheetID(cfg.Report.SpreadsheetURL)
		if spreadsheetID == "" {
			logger.Printf("Warning: Could not extract spreadsheet ID from URL: %s\n", cfg.Report.SpreadsheetURL)
		} else if writer, err := sheets.NewWriter(spreadsheetID, cfg.Report.CredentialsPath); err != nil {
			logger.Printf("Warning: Failed to initialize Google Sheets writer: %v\n", err)
		} else {
			sinks.Add(writer)
		}
	}

	if cfg.Report.TelegramToken != "" {
		tg, err := notifier.NewTelegram(cfg.Report.TelegramToken, cfg.Report.TelegramChatID)
		if err != nil {
			logger.Printf("Warning: Failed to initialize Telegram notifier: %v\n", err)
		} else {
			sinks.Add(tg)
		}
	}

	return sinks
}
