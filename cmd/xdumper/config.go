package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thomasgazzoni/xdumper/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage xdumper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (XDUMPER_*)
  - Configuration file
  - Default values (lowest priority)

Account cookies never live in the configuration file; see 'xdumper auth'.`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.xdumper.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the resolved configuration including values from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".xdumper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(os.Stderr, "Error: configuration file already exists: %s\n", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# xdumper configuration file
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with XDUMPER_
# For example: XDUMPER_STORE, XDUMPER_BACKEND, XDUMPER_LOG_LEVEL
#
# Account cookies are NOT configured here. Store them securely with:
#   xdumper auth add

# Post database
store:
  # Path to the SQLite database. Created on first use.
  # Default: ~/.xdumper/posts.db
  path: ""

# Fetch backend
backend:
  # Backend kind: api or browser
  kind: "api"

  # Proxy URL for backend requests (optional)
  proxy: ""

  # Request timeout
  timeout: 30s

  # User agent string (optional)
  # Leave empty to use default
  user_agent: ""

  # Stored account whose cookies authenticate the backend (optional)
  # Leave empty to use the first stored account or environment cookies
  account: ""

# Browser backend
browser:
  # Persistent Chrome profile directory; keeps the login session across runs
  # Default: ~/.xdumper/chrome-profile
  profile_dir: ""

  # Run Chrome without a visible window
  headless: true

# Rate limiting for backend calls
rate_limit:
  # Requests per minute
  # Range: 1-120
  requests_per_minute: 60

  # Burst size (number of requests allowed in burst)
  burst_size: 10

# Retry configuration for failed page fetches
retry:
  # Maximum number of retry attempts
  # Range: 0-10
  max_attempts: 3

  # Initial backoff duration
  base_delay: 1s

  # Maximum backoff duration
  max_delay: 60s

# Logging configuration
logging:
  # Log level: debug, info, warn, error, disabled
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create configuration file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file to taste")
	fmt.Println("2. Run 'xdumper config validate' to check it")
	fmt.Println("3. Store account cookies with 'xdumper auth add'")
	fmt.Println("4. Start collecting with 'xdumper scrape <url>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	path := configFile

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: configuration is invalid:\n%v\n", err)
		os.Exit(1)
	}

	if path == "" {
		fmt.Println("Configuration is valid (defaults plus any discovered config file)")
	} else {
		fmt.Println("Configuration is valid: " + path)
	}
}
