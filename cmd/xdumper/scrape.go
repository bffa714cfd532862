package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomasgazzoni/xdumper/pkg/auth"
	"github.com/thomasgazzoni/xdumper/pkg/config"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
	"github.com/thomasgazzoni/xdumper/pkg/scraper"
	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
	"github.com/thomasgazzoni/xdumper/pkg/twitter/api"
	"github.com/thomasgazzoni/xdumper/pkg/twitter/browser"
)

var (
	// Scrape command flags
	scrapeLimit   int
	scrapePages   int
	scrapeOld     string
	expandThreads bool
	noStore       bool
	prettyOutput  bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Collect posts from a list, user profile, or conversation",
	Long: `Collect posts from an X/Twitter timeline into the local database.

The argument is a timeline URL: a list (x.com/i/lists/<id>), a user
profile (x.com/<name>), or a single conversation (x.com/<name>/status/<id>).
Pages are fetched until the timeline is exhausted, a limit is hit, or
nothing new turns up. Every collected post is printed to stdout as a
JSON line; a run summary goes to stderr.

The api backend needs account cookies, stored with 'xdumper auth add'
or supplied through XDUMPER_AUTH_TOKEN and XDUMPER_CT0.`,
	Example: `  # Collect a list timeline
  xdumper scrape https://x.com/i/lists/1409181262510690310

  # Collect a user's posts and replies, newest 200 only
  xdumper scrape https://x.com/jack --limit 200

  # Only posts from the last week, with self threads reconstructed
  xdumper scrape https://x.com/jack --old 7d --expand-threads

  # Dry run: print what would be collected without storing anything
  xdumper scrape https://x.com/jack --no-store --limit 20

  # Use the browser backend through a visible Chrome window
  xdumper scrape https://x.com/i/lists/123 --backend browser`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runScrape(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().IntVarP(&scrapeLimit, "limit", "n", 0, "stop after this many new posts (0 = unlimited)")
	scrapeCmd.Flags().IntVar(&scrapePages, "pages", 0, "maximum number of pages to fetch (0 = unlimited)")
	scrapeCmd.Flags().StringVar(&scrapeOld, "old", "", "age cutoff, e.g. 7d, 24h, 30m; stop at the first older post")
	scrapeCmd.Flags().BoolVar(&expandThreads, "expand-threads", false, "fetch full conversations for discovered self threads")
	scrapeCmd.Flags().BoolVar(&noStore, "no-store", false, "emit posts without writing to the database")
	scrapeCmd.Flags().BoolVar(&prettyOutput, "pretty", false, "indent JSON output")
}

func runScrape(cmd *cobra.Command, args []string) {
	target, err := twitter.ParseURL(strings.TrimSpace(args[0]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	maxAge, err := parseAge(scrapeOld)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --old value: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	backend, cleanup, err := newBackend(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := scraper.New(backend, st, cfg, log)
	run := engine.Start(ctx, target, scraper.Options{
		MaxCount:      scrapeLimit,
		MaxAge:        maxAge,
		MaxPages:      scrapePages,
		ExpandThreads: expandThreads,
		NoStore:       noStore,
	})

	enc := json.NewEncoder(os.Stdout)
	if prettyOutput {
		enc.SetIndent("", "  ")
	}
	for post := range run.Posts() {
		if err := enc.Encode(post); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write post: %v\n", err)
			os.Exit(1)
		}
	}

	result, runErr := run.Wait()
	printSummary(target, result)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// newBackend builds the fetch backend selected by the configuration.
// The returned cleanup releases backend resources (browser sessions).
func newBackend(cfg *config.Config, log logger.Logger) (twitter.Backend, func(), error) {
	account, err := resolveAccount(cfg)
	if err != nil {
		return nil, nil, err
	}

	userAgent := cfg.Backend.UserAgent
	if account.UserAgent != "" {
		userAgent = account.UserAgent
	}

	switch cfg.Backend.Kind {
	case "browser":
		b := browser.NewBackend(browser.Options{
			ProfileDir: cfg.Browser.ProfileDir,
			Headless:   cfg.Browser.Headless,
			UserAgent:  userAgent,
			AuthToken:  account.AuthToken,
			CT0:        account.CT0,
		}, log)
		return b, b.Close, nil
	default:
		b, err := api.NewBackend(api.ClientOptions{
			Credentials: api.Credentials{
				AuthToken: account.AuthToken,
				CT0:       account.CT0,
			},
			UserAgent: userAgent,
			Proxy:     cfg.Backend.Proxy,
			Timeout:   cfg.Backend.Timeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}
}

// resolveAccount finds the cookies the backend authenticates with
func resolveAccount(cfg *config.Config) (*auth.Account, error) {
	manager, err := auth.NewManager()
	if err != nil {
		return nil, fmt.Errorf("credential manager unavailable: %w", err)
	}

	if cfg.Backend.Account != "" {
		account, err := manager.Retrieve(cfg.Backend.Account)
		if err != nil {
			return nil, fmt.Errorf("%w\nStore it with: xdumper auth add", err)
		}
		return account, nil
	}

	account, err := manager.RetrieveDefault()
	if err != nil {
		return nil, fmt.Errorf("no account cookies found: %w\nStore them with: xdumper auth add", err)
	}
	return account, nil
}

// parseAge parses an age cutoff like "7d", "24h", or "30m". The "d"
// suffix means whole days; everything else is a Go duration.
func parseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("expected a positive day count, got %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("cutoff must be positive, got %q", s)
	}
	return d, nil
}

func printSummary(target twitter.Target, result *scraper.Result) {
	if result == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %d new, %d already stored, %d skipped, %d pages",
		target.Key(), result.Inserted, result.Duplicates, result.Skipped, result.Pages)
	if result.Expanded > 0 {
		fmt.Fprintf(os.Stderr, ", %d from thread expansion", result.Expanded)
	}
	fmt.Fprintf(os.Stderr, " (stopped: %s)\n", result.StopReason)
	if result.Incomplete {
		fmt.Fprintln(os.Stderr, "run ended early; rerun to continue where it left off")
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning: "+w)
	}
}
