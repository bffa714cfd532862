package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/thomasgazzoni/xdumper/pkg/config"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
)

var (
	// Version information, set at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	storePath  string
	backend    string
	account    string
	proxy      string
	rateLimit  int
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xdumper",
	Short: "Collect and archive X/Twitter timelines into a local database",
	Long: `xdumper collects posts from X/Twitter lists, user profiles, and
conversation threads into a local SQLite database.

Features:
  - Paginated collection with resumable deduplication
  - Self-thread reconstruction across conversations
  - API and browser backends behind one engine
  - Secure cookie storage using the system keychain
  - Offline viewing of everything already collected

Every post is stored exactly once; re-running a scrape only fetches
what is new.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and runs it
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .xdumper.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the post database")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "fetch backend: api or browser")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "stored account whose cookies authenticate the backend")
	rootCmd.PersistentFlags().StringVar(&proxy, "proxy", "", "proxy URL for backend requests")
	rootCmd.PersistentFlags().IntVar(&rateLimit, "rate-limit", 0, "backend requests per minute")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`xdumper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves configuration from flags, environment, and files
func loadConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if storePath != "" {
		flags["store"] = storePath
	}
	if backend != "" {
		flags["backend"] = backend
	}
	if account != "" {
		flags["account"] = account
	}
	if proxy != "" {
		flags["proxy"] = proxy
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	logger.Initialize(&logger.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})

	return cfg, nil
}
