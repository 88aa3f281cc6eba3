package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"xarchiver/pkg/config"
	"xarchiver/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage xarchiver configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (XARCHIVER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as 'xarchiver.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Output and log directory accessibility
  - The cookie file, when one is configured`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
}

const exampleConfig = `# xarchiver configuration file
#
# Every option can also be set with an XARCHIVER_ environment variable,
# for example XARCHIVER_OUTPUT_DIR or XARCHIVER_COOKIES_FILE.

browser:
  headless: true
  # Leave empty for the built-in Chrome user agent
  user_agent: ""
  viewport_width: 1280
  viewport_height: 2000
  # Per attempt; a post is given up after navigation_retries attempts
  navigation_timeout: 20s
  navigation_retries: 3
  # load, domcontentloaded or networkidle
  wait_until: domcontentloaded
  # Scrolling loads lazy images and replies
  scroll_steps: 5
  scroll_pixels: 1000
  scroll_pause: 1.2s
  hydration_pause: 3s
  # JSON (Playwright or EditThisCookie) or Netscape cookie export
  cookies_file: ""
  # Chrome binary; empty searches the usual locations
  exec_path: ""

download:
  concurrent_downloads: 8
  download_timeout: 20s
  retry_attempts: 3
  retry_base_delay: 500ms

rate_limit:
  # Page loads and image downloads share this budget
  requests_per_minute: 120

output:
  base_directory: ./archive
  # Relative names resolve inside base_directory
  records_file: records.csv
  failures_file: failures.json
  save_markdown: true
  save_pdf: false
  save_epub: false
  max_title_length: 100
  max_filename_length: 100

adapters:
  readability:
    # Archive plain articles on these hosts with a readability extractor
    enabled: false
    hosts: []

mirror:
  # Copy finished folders to S3 or an S3-compatible store
  enabled: false
  bucket: ""
  prefix: ""
  region: ""
  profile: ""
  endpoint: ""
  use_path_style: false

notifications:
  enabled: true
  on_complete: true
  on_error: true
  # terminal, desktop or none
  notification_type: terminal

logging:
  # debug, info, warn or error
  level: info
  # JSON log lines are appended here when set
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "xarchiver.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your X session with 'xarchiver auth login' or set cookies_file")
	fmt.Println("2. Run 'xarchiver config validate' to check the configuration")
	fmt.Println("3. Archive posts with 'xarchiver download <url|file>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(displayConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (XARCHIVER_*)")
	switch found := config.FindConfigFile(); {
	case configFile != "":
		fmt.Printf("3. Configuration file: %s\n", configFile)
	case found != "":
		fmt.Printf("3. Configuration file: %s\n", found)
	default:
		fmt.Println("3. Configuration file: (none found)")
	}
	fmt.Println("4. Default values")
	return nil
}

// displayConfig renders durations as strings so the output can be pasted
// back into a config file
func displayConfig(cfg *config.Config) map[string]interface{} {
	b := cfg.Browser
	d := cfg.Download
	return map[string]interface{}{
		"browser": map[string]interface{}{
			"headless":           b.Headless,
			"user_agent":         b.UserAgent,
			"viewport_width":     b.ViewportWidth,
			"viewport_height":    b.ViewportHeight,
			"navigation_timeout": b.NavigationTimeout.String(),
			"navigation_retries": b.NavigationRetries,
			"wait_until":         b.WaitUntil,
			"scroll_steps":       b.ScrollSteps,
			"scroll_pixels":      b.ScrollPixels,
			"scroll_pause":       b.ScrollPause.String(),
			"hydration_pause":    b.HydrationPause.String(),
			"cookies_file":       b.CookiesFile,
			"exec_path":          b.ExecPath,
		},
		"download": map[string]interface{}{
			"concurrent_downloads": d.ConcurrentDownloads,
			"download_timeout":     d.DownloadTimeout.String(),
			"retry_attempts":       d.RetryAttempts,
			"retry_base_delay":     d.RetryBaseDelay.String(),
		},
		"rate_limit":    cfg.RateLimit,
		"output":        cfg.Output,
		"selectors":     cfg.Selectors,
		"adapters":      cfg.Adapters,
		"mirror":        cfg.Mirror,
		"notifications": cfg.Notifications,
		"logging":       cfg.Logging,
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return fmt.Errorf("no configuration file found; specify one with --config")
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}

	var problems, warnings []string

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if cfg.Browser.CookiesFile != "" {
		if _, err := os.Stat(cfg.Browser.CookiesFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("cookie file not readable: %v", err))
		}
	}
	if cfg.Browser.NavigationRetries > 10 {
		warnings = append(warnings, "more than 10 navigation retries makes failed posts very slow")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Ledger: %s\n", cfg.RecordsPath())
	fmt.Printf("  Navigation: %s x %d attempts\n", cfg.Browser.NavigationTimeout, cfg.Browser.NavigationRetries)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
