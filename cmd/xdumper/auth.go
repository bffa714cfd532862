package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thomasgazzoni/xdumper/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X/Twitter account cookies",
	Long: `Manage the account cookies the backends authenticate with.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (XDUMPER_AUTH_TOKEN, XDUMPER_CT0)

Never share your cookies or config files!`,
}

// authAddCmd represents the auth add command
var authAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Store account cookies securely",
	Long: `Store the auth_token and ct0 cookies of a logged-in X/Twitter
session in the system keychain or an encrypted file.

You will be prompted for:
  - Account username (if not provided)
  - auth_token cookie value
  - ct0 cookie value
  - User Agent (optional, press Enter for default)

Copy the cookie values from a browser where you are logged in; the
command walks you through finding them.`,
	Example: `  # Interactive
  xdumper auth add

  # With the username up front
  xdumper auth add myaccount`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthAdd,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with sanitized cookie values.`,
	Run:   runAuthList,
}

// authRemoveCmd represents the auth remove command
var authRemoveCmd = &cobra.Command{
	Use:   "remove [username]",
	Short: "Remove stored account cookies",
	Long: `Remove stored account cookies.

If no username is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Example: `  # Interactive
  xdumper auth remove

  # Remove a specific account
  xdumper auth remove myaccount`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authAddCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authRemoveCmd)
}

func runAuthAdd(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	auth.ShowCookieExtractionGuide()

	fmt.Print("Ready to enter your cookies? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'xdumper auth add' when you're ready.")
		return
	}

	fmt.Println()

	if username == "" {
		fmt.Print("📱 Account username (without @): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read username: %v\n", err)
			os.Exit(1)
		}
		username = strings.TrimSpace(strings.TrimPrefix(input, "@"))
	}

	if username == "" {
		fmt.Fprintln(os.Stderr, "Error: username is required")
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("\n⚠️  Account '%s' already exists. Update cookies? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\n🔐 Enter your cookie values (they will be hidden as you type):")
	fmt.Println()

	var authToken string
	for {
		fmt.Print("auth_token cookie value: ")
		authToken, err = readPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read auth_token: %v\n", err)
			os.Exit(1)
		}

		// auth_token is a 40-character hex string
		if len(authToken) != 40 || !isHex(authToken) {
			fmt.Println("\n❌ That doesn't look like a valid auth_token.")
			fmt.Println("   It should be exactly 40 hexadecimal characters.")
			fmt.Println("   Example: 5d3f1c9e8b7a6f4d2e1c0b9a8f7e6d5c4b3a2f1e")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	var ct0 string
	for {
		fmt.Print("\nct0 cookie value: ")
		ct0, err = readPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read ct0: %v\n", err)
			os.Exit(1)
		}

		// ct0 is a hex string, 32 or 160 characters depending on session age
		if len(ct0) < 32 || !isHex(ct0) {
			fmt.Println("\n❌ That doesn't look like a valid ct0.")
			fmt.Println("   It should be a hexadecimal string of at least 32 characters.")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	fmt.Print("\n\n🌐 User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	fmt.Println("\n📋 Summary:")
	fmt.Printf("   Username: %s\n", username)
	fmt.Printf("   auth_token: %s...%s (hidden)\n", authToken[:4], authToken[len(authToken)-4:])
	fmt.Printf("   ct0: %s...%s (hidden)\n", ct0[:4], ct0[len(ct0)-4:])
	if userAgent != "" {
		fmt.Printf("   User Agent: %s\n", userAgent)
	}

	account := &auth.Account{
		Username:  username,
		AuthToken: authToken,
		CT0:       ct0,
		UserAgent: userAgent,
	}

	fmt.Println("\n💾 Storing cookies securely...")
	if err := manager.Store(account); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to store cookies: %v\n", err)
		os.Exit(1)
	}

	accounts, _ := manager.List()
	if len(accounts) == 1 {
		fmt.Printf("✅ '%s' is now the default account\n", username)
	}

	fmt.Println("\n🎉 Cookies stored successfully!")

	fmt.Println("\n🔒 Security Information:")
	fmt.Println("   Your cookies are encrypted and stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("   • System keychain (primary)")
	}
	fmt.Println("   • Encrypted file (backup)")

	fmt.Println("\n📖 Quick Start Guide:")
	fmt.Println("   Collect any timeline you can see while logged in:")
	fmt.Println("   $ xdumper scrape https://x.com/i/lists/<list_id>")
	fmt.Println("\n   Use this specific account:")
	fmt.Printf("   $ xdumper scrape <url> --account %s\n", username)
	fmt.Println("\n⚠️  Never share your cookies or config files!")
}

func runAuthList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list accounts: %v\n", err)
		os.Exit(1)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'xdumper auth add' to add one.")
		return
	}

	fmt.Println("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   auth_token: %s\n", sanitized.AuthToken)
		fmt.Printf("   ct0: %s\n", sanitized.CT0)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

func runAuthRemove(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	if len(args) > 0 {
		username := args[0]
		if err := manager.Delete(username); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to remove account: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account removed: " + username)
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored accounts found.")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove account '%s'? (y/N): ", account.Username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}

		if err := manager.Delete(account.Username); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to remove account: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account removed: " + account.Username)
		return
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Username)
	}
	fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	switch {
	case choice == 0:
		return
	case choice == len(accounts)+1:
		fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
		confirm, _ := reader.ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return
		}

		if err := manager.DeleteAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to remove all accounts: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("All accounts removed")
	case choice > 0 && choice <= len(accounts):
		account := accounts[choice-1]
		if err := manager.Delete(account.Username); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to remove account: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account removed: " + account.Username)
	default:
		fmt.Fprintln(os.Stderr, "Error: invalid choice")
		os.Exit(1)
	}
}

// readPassword reads a cookie value from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	// Fallback for piped input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
