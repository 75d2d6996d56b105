package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the downloader
type Config struct {
	OutputDir      string        `yaml:"output_dir"`
	ExtensionsFile string        `yaml:"extensions_file"`
	MaxWorkers     int           `yaml:"max_workers"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	LogFile        string        `yaml:"log_file"`

	Browser struct {
		Headless        bool          `yaml:"headless"`
		ChromeBin       string        `yaml:"chrome_bin"`
		SessionDir      string        `yaml:"session_dir"`
		StaleSessionAge time.Duration `yaml:"stale_session_age"`
	} `yaml:"browser"`

	Portal struct {
		URL            string        `yaml:"url"`
		InputSelector  string        `yaml:"input_selector"`
		ButtonXPath    string        `yaml:"button_xpath"`
		ButtonText     string        `yaml:"button_text"`
		ElementTimeout time.Duration `yaml:"element_timeout"`
		NavTimeout     time.Duration `yaml:"nav_timeout"`
		ProbeTimeout   time.Duration `yaml:"probe_timeout"`
		PageSettle     time.Duration `yaml:"page_settle"`
		InputSettle    time.Duration `yaml:"input_settle"`
		ClickSettle    time.Duration `yaml:"click_settle"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		PollChecks     int           `yaml:"poll_checks"`
		SkipExisting   bool          `yaml:"skip_existing"`
		NavRate        float64       `yaml:"nav_rate"`
		Probe          bool          `yaml:"probe"`
	} `yaml:"portal"`

	Report struct {
		DatabaseURL     string `yaml:"database_url"`
		SpreadsheetURL  string `yaml:"spreadsheet_url"`
		CredentialsPath string `yaml:"credentials_path"`
		TelegramToken   string `yaml:"telegram_token"`
		TelegramChatID  int64  `yaml:"telegram_chat_id"`
	} `yaml:"report"`
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	cfg := &Config{
		OutputDir:      "vsix_files",
		ExtensionsFile: "extensions.txt",
		MaxWorkers:     3,
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Second,
		LogFile:        "download_vsix.log",
	}
	cfg.Browser.Headless = true
	cfg.Browser.SessionDir = "temp_chrome_data"
	cfg.Browser.StaleSessionAge = time.Hour

	cfg.Portal.URL = "https://vsix.2i.gs/"
	cfg.Portal.InputSelector = ".css-1x5jdmq"
	cfg.Portal.ButtonXPath = "//button[contains(text(), '下载')]"
	cfg.Portal.ButtonText = "下载"
	cfg.Portal.ElementTimeout = 10 * time.Second
	cfg.Portal.NavTimeout = 30 * time.Second
	cfg.Portal.ProbeTimeout = 15 * time.Second
	cfg.Portal.PageSettle = 3 * time.Second
	cfg.Portal.InputSettle = 1 * time.Second
	cfg.Portal.ClickSettle = 5 * time.Second
	cfg.Portal.PollInterval = 2 * time.Second
	cfg.Portal.PollChecks = 30
	cfg.Portal.Probe = true
	return cfg
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is
// ignored.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LookupFunc returns the value of an environment variable and whether it is set
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the VSIX_* and report variables found by lookup
func (cfg *Config) ApplyEnv(lookup LookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("VSIX_DOWNLOAD_PATH", &cfg.OutputDir)
	env.str("VSIX_EXTENSIONS_FILE", &cfg.ExtensionsFile)
	env.integer("VSIX_MAX_WORKERS", &cfg.MaxWorkers)
	env.integer("VSIX_MAX_RETRIES", &cfg.MaxRetries)
	env.duration("VSIX_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	env.str("VSIX_LOG_FILE", &cfg.LogFile)

	env.boolean("VSIX_HEADLESS", &cfg.Browser.Headless)
	env.str("VSIX_CHROME_BIN", &cfg.Browser.ChromeBin)
	env.str("VSIX_SESSION_DIR", &cfg.Browser.SessionDir)

	env.str("VSIX_PORTAL_URL", &cfg.Portal.URL)
	env.duration("VSIX_NAV_TIMEOUT", &cfg.Portal.NavTimeout)
	env.duration("VSIX_PROBE_TIMEOUT", &cfg.Portal.ProbeTimeout)
	env.duration("VSIX_POLL_INTERVAL", &cfg.Portal.PollInterval)
	env.integer("VSIX_POLL_CHECKS", &cfg.Portal.PollChecks)
	env.boolean("VSIX_SKIP_EXISTING", &cfg.Portal.SkipExisting)
	env.number("VSIX_NAV_RATE", &cfg.Portal.NavRate)
	env.boolean("VSIX_PROBE", &cfg.Portal.Probe)

	env.str("DATABASE_URL", &cfg.Report.DatabaseURL)
	if cfg.Report.DatabaseURL == "" {
		if _, ok := lookup("DB_HOST"); ok {
			cfg.Report.DatabaseURL = buildConnString(lookup)
		}
	}
	env.str("VSIX_SPREADSHEET_URL", &cfg.Report.SpreadsheetURL)
	env.str("GOOGLE_SHEETS_CREDENTIALS_FILE", &cfg.Report.CredentialsPath)
	env.str("VSIX_TELEGRAM_TOKEN", &cfg.Report.TelegramToken)
	env.integer64("VSIX_TELEGRAM_CHAT_ID", &cfg.Report.TelegramChatID)

	return env.err
}

// Validate checks values that cannot be defaulted
func (cfg *Config) Validate() error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be a positive integer, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("max retries must be a positive integer, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive, got %s", cfg.RetryBaseDelay)
	}
	if cfg.Portal.PollChecks < 1 {
		return fmt.Errorf("poll checks must be a positive integer, got %d", cfg.Portal.PollChecks)
	}
	if cfg.Portal.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", cfg.Portal.PollInterval)
	}
	if cfg.Portal.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive, got %s", cfg.Portal.NavTimeout)
	}
	if cfg.Portal.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %s", cfg.Portal.ProbeTimeout)
	}
	if cfg.Browser.SessionDir == "" {
		return fmt.Errorf("session directory must not be empty")
	}
	return nil
}

func buildConnString(lookup LookupFunc) string {
	get := func(key, defaultValue string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return defaultValue
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		get("DB_HOST", "localhost"),
		get("DB_PORT", "5432"),
		get("DB_USER", "vsix_downloader"),
		get("DB_PASSWORD", ""),
		get("DB_NAME", "vsix_downloader"),
		get("DB_SSLMODE", "disable"))
}

// envReader applies variables and keeps the first parse error
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.value(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) integer64(key string, dst *int64) {
	if v, ok := e.value(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) number(key string, dst *float64) {
	if v, ok := e.value(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.value(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.value(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
