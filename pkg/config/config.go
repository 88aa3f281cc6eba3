package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the archiver
type Config struct {
	// Page automation
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Asset download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// CSS selectors used by the X adapter
	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`

	// Optional site adapters
	Adapters AdaptersConfig `yaml:"adapters" json:"adapters"`

	// Optional S3 mirror of finished bundles
	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig holds headless browser configuration
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	NavigationRetries int           `yaml:"navigation_retries" json:"navigation_retries"`
	WaitUntil         string        `yaml:"wait_until" json:"wait_until"`
	ScrollSteps       int           `yaml:"scroll_steps" json:"scroll_steps"`
	ScrollPixels      int           `yaml:"scroll_pixels" json:"scroll_pixels"`
	ScrollPause       time.Duration `yaml:"scroll_pause" json:"scroll_pause"`
	HydrationPause    time.Duration `yaml:"hydration_pause" json:"hydration_pause"`
	CookiesFile       string        `yaml:"cookies_file" json:"cookies_file"`
	ExecPath          string        `yaml:"exec_path" json:"exec_path"`
}

// DownloadConfig holds asset download configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	RecordsFile       string `yaml:"records_file" json:"records_file"`
	FailuresFile      string `yaml:"failures_file" json:"failures_file"`
	SaveMarkdown      bool   `yaml:"save_markdown" json:"save_markdown"`
	SavePDF           bool   `yaml:"save_pdf" json:"save_pdf"`
	SaveEPUB          bool   `yaml:"save_epub" json:"save_epub"`
	MaxTitleLength    int    `yaml:"max_title_length" json:"max_title_length"`
	MaxFilenameLength int    `yaml:"max_filename_length" json:"max_filename_length"`
}

// SelectorConfig holds the CSS selectors for X pages
type SelectorConfig struct {
	Article   string `yaml:"article" json:"article"`
	Time      string `yaml:"time" json:"time"`
	UserName  string `yaml:"user_name" json:"user_name"`
	TweetText string `yaml:"tweet_text" json:"tweet_text"`
	Images    string `yaml:"images" json:"images"`
}

// AdaptersConfig holds settings for optional site adapters
type AdaptersConfig struct {
	Readability ReadabilityConfig `yaml:"readability" json:"readability"`
}

// ReadabilityConfig enables the generic article adapter for listed hosts
type ReadabilityConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Hosts   []string `yaml:"hosts" json:"hosts"`
}

// MirrorConfig holds S3 mirror settings
type MirrorConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Bucket       string `yaml:"bucket" json:"bucket"`
	Prefix       string `yaml:"prefix" json:"prefix"`
	Region       string `yaml:"region" json:"region"`
	Profile      string `yaml:"profile" json:"profile"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" json:"use_path_style"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			ViewportWidth:     1280,
			ViewportHeight:    2000,
			NavigationTimeout: 20 * time.Second,
			NavigationRetries: 3,
			WaitUntil:         "domcontentloaded",
			ScrollSteps:       5,
			ScrollPixels:      1000,
			ScrollPause:       1200 * time.Millisecond,
			HydrationPause:    3 * time.Second,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 8,
			DownloadTimeout:     20 * time.Second,
			RetryAttempts:       3,
			RetryBaseDelay:      500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
		},
		Output: OutputConfig{
			BaseDirectory:     "./archive",
			RecordsFile:       "records.csv",
			FailuresFile:      "failures.json",
			SaveMarkdown:      true,
			MaxTitleLength:    100,
			MaxFilenameLength: 100,
		},
		Selectors: SelectorConfig{
			Article:   "article",
			Time:      "time[datetime]",
			UserName:  "div[data-testid='User-Name']",
			TweetText: "div[data-testid='tweetText']",
			Images:    "img[src]",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// RecordsPath resolves the ledger path against the output directory
func (c *Config) RecordsPath() string {
	return c.resolve(c.Output.RecordsFile)
}

// FailuresPath resolves the failure report path against the output directory
func (c *Config) FailuresPath() string {
	return c.resolve(c.Output.FailuresFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.BaseDirectory, name)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if userAgent := os.Getenv("XARCHIVER_USER_AGENT"); userAgent != "" {
		c.Browser.UserAgent = userAgent
	}
	if headless := os.Getenv("XARCHIVER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if cookies := os.Getenv("XARCHIVER_COOKIES_FILE"); cookies != "" {
		c.Browser.CookiesFile = cookies
	}
	if execPath := os.Getenv("XARCHIVER_CHROME_PATH"); execPath != "" {
		c.Browser.ExecPath = execPath
	}
	if timeout := os.Getenv("XARCHIVER_NAVIGATION_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("XARCHIVER_NAVIGATION_TIMEOUT: %w", err))
		} else {
			c.Browser.NavigationTimeout = d
		}
	}
	if steps := os.Getenv("XARCHIVER_SCROLL_STEPS"); steps != "" {
		val, err := strconv.Atoi(steps)
		if err != nil {
			errs = append(errs, fmt.Errorf("XARCHIVER_SCROLL_STEPS: %w", err))
		} else {
			c.Browser.ScrollSteps = val
		}
	}

	// Rate limiting
	if rpm := os.Getenv("XARCHIVER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	// Output directory
	if outputDir := os.Getenv("XARCHIVER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if records := os.Getenv("XARCHIVER_RECORDS_FILE"); records != "" {
		c.Output.RecordsFile = records
	}

	// Concurrent downloads
	if concurrent := os.Getenv("XARCHIVER_CONCURRENT_DOWNLOADS"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}

	// Mirror
	if bucket := os.Getenv("XARCHIVER_S3_BUCKET"); bucket != "" {
		c.Mirror.Bucket = bucket
		c.Mirror.Enabled = true
	}
	if region := os.Getenv("XARCHIVER_S3_REGION"); region != "" {
		c.Mirror.Region = region
	}
	if endpoint := os.Getenv("XARCHIVER_S3_ENDPOINT"); endpoint != "" {
		c.Mirror.Endpoint = endpoint
	}

	// Notifications
	if notifEnabled := os.Getenv("XARCHIVER_NOTIFICATIONS_ENABLED"); notifEnabled != "" {
		c.Notifications.Enabled = strings.ToLower(notifEnabled) == "true"
	}

	// Logging level
	if logLevel := os.Getenv("XARCHIVER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("XARCHIVER_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"xarchiver.yaml",
		".xarchiver.yaml",
		".xarchiver.yml",
		filepath.Join(home, ".config", "xarchiver", "config.yaml"),
		filepath.Join(home, ".config", "xarchiver", "config.yml"),
		filepath.Join(home, ".xarchiver.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Browser
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.NavigationRetries < 1 {
		errs = append(errs, errors.New("navigation retries must be at least 1"))
	}
	if c.Browser.ScrollSteps < 0 {
		errs = append(errs, errors.New("scroll steps cannot be negative"))
	}
	validWait := map[string]bool{"load": true, "domcontentloaded": true, "networkidle": true}
	if !validWait[strings.ToLower(c.Browser.WaitUntil)] {
		errs = append(errs, fmt.Errorf("invalid wait_until %q", c.Browser.WaitUntil))
	}

	// Rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	// Download settings
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 32 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 32"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}

	// Output settings
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.RecordsFile == "" {
		errs = append(errs, errors.New("records file is required"))
	}
	if c.Output.MaxTitleLength <= 0 || c.Output.MaxFilenameLength <= 0 {
		errs = append(errs, errors.New("title and filename lengths must be positive"))
	}

	if c.Selectors.Article == "" {
		errs = append(errs, errors.New("article selector is required"))
	}

	if c.Adapters.Readability.Enabled && len(c.Adapters.Readability.Hosts) == 0 {
		errs = append(errs, errors.New("readability adapter enabled without hosts"))
	}

	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		errs = append(errs, errors.New("mirror enabled without bucket"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	// Notification type
	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if records, ok := flags["records"].(string); ok && records != "" {
		c.Output.RecordsFile = records
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if cookies, ok := flags["cookies"].(string); ok && cookies != "" {
		c.Browser.CookiesFile = cookies
	}
	if scroll, ok := flags["scroll"].(int); ok && scroll >= 0 {
		c.Browser.ScrollSteps = scroll
	}
	if timeout, ok := flags["timeout"].(int); ok && timeout > 0 {
		c.Browser.NavigationTimeout = time.Duration(timeout) * time.Second
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if md, ok := flags["markdown"].(bool); ok {
		c.Output.SaveMarkdown = md
	}
	if pdf, ok := flags["pdf"].(bool); ok {
		c.Output.SavePDF = pdf
	}
	if epub, ok := flags["epub"].(bool); ok {
		c.Output.SaveEPUB = epub
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xarchiver.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
