package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
	"github.com/thomasgazzoni/xdumper/pkg/view"
)

var (
	// View command flags
	viewLimit       int
	viewOldestFirst bool
	viewNoRetweets  bool
	viewThreadsOnly bool
	viewThread      string
	viewSummary     bool
	viewPretty      bool
)

// viewCmd represents the view command
var viewCmd = &cobra.Command{
	Use:   "view <url>",
	Short: "Read collected posts from the local database",
	Long: `Read posts already collected for a timeline, without touching the
network. Posts are printed newest first as JSON lines.

A target that has never been scraped is an error; a scraped timeline
that happened to be empty prints nothing and exits cleanly.`,
	Example: `  # Everything stored for a list, newest first
  xdumper view https://x.com/i/lists/1409181262510690310

  # Oldest 50 posts from a user, retweets excluded
  xdumper view https://x.com/jack --oldest-first --limit 50 --no-retweets

  # One reconstructed self thread, in reading order
  xdumper view https://x.com/jack --thread 1754170548482154784

  # Scrape history and stored count for a target
  xdumper view https://x.com/jack --summary`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runView(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().IntVarP(&viewLimit, "limit", "n", 0, "maximum number of posts to print (0 = everything)")
	viewCmd.Flags().BoolVar(&viewOldestFirst, "oldest-first", false, "print oldest posts first")
	viewCmd.Flags().BoolVar(&viewNoRetweets, "no-retweets", false, "exclude retweets")
	viewCmd.Flags().BoolVar(&viewThreadsOnly, "threads-only", false, "only posts belonging to reconstructed self threads")
	viewCmd.Flags().StringVar(&viewThread, "thread", "", "print one conversation by its root post id")
	viewCmd.Flags().BoolVar(&viewSummary, "summary", false, "print scrape history instead of posts")
	viewCmd.Flags().BoolVar(&viewPretty, "pretty", false, "indent JSON output")
}

func runView(cmd *cobra.Command, args []string) {
	target, err := twitter.ParseURL(strings.TrimSpace(args[0]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	viewer := view.New(st)
	ctx := context.Background()

	enc := json.NewEncoder(os.Stdout)
	if viewPretty {
		enc.SetIndent("", "  ")
	}

	switch {
	case viewSummary:
		summary, err := viewer.Summary(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printViewSummary(summary)

	case viewThread != "":
		posts, err := viewer.Thread(ctx, viewThread)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		encodePosts(enc, posts)

	default:
		posts, err := viewer.Posts(ctx, target, view.Options{
			Limit:           viewLimit,
			OldestFirst:     viewOldestFirst,
			ExcludeRetweets: viewNoRetweets,
			SelfThreadOnly:  viewThreadsOnly,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		encodePosts(enc, posts)
	}
}

func encodePosts(enc *json.Encoder, posts []twitter.Post) {
	for i := range posts {
		if err := enc.Encode(posts[i]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write post: %v\n", err)
			os.Exit(1)
		}
	}
}

func printViewSummary(s *view.Summary) {
	fmt.Printf("Target:        %s\n", s.Target.Key())
	fmt.Printf("Stored posts:  %d\n", s.PostCount)
	if !s.FirstScrapedAt.IsZero() {
		fmt.Printf("First scraped: %s\n", s.FirstScrapedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if !s.LastScrapedAt.IsZero() {
		fmt.Printf("Last scraped:  %s\n", s.LastScrapedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if s.NewestPostID != "" {
		fmt.Printf("Newest post:   %s\n", s.NewestPostID)
	}
	if s.OldestPostID != "" {
		fmt.Printf("Oldest post:   %s\n", s.OldestPostID)
	}
}
