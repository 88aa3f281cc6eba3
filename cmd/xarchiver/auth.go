package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xarchiver/pkg/auth"
	"xarchiver/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X session credentials",
	Long: `Manage stored X session cookies (auth_token and ct0).

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables XARCHIVER_AUTH_TOKEN and XARCHIVER_CT0

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store X session cookies securely",
	Long: `Store the auth_token and ct0 cookies of a logged-in X session.

You will be prompted for:
  - A name for the account (if not provided)
  - auth_token cookie value
  - ct0 cookie value
  - User Agent (optional, press Enter for default)

Type 'help' at the auth_token prompt for step-by-step instructions.`,
	Example: `  # Interactive login
  xarchiver auth login

  # Name the account up front
  xarchiver auth login personal`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"logout"},
	Short:   "Remove stored credentials",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, listCmd, removeCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	auth.ShowQuickExtractGuide(out)

	var username string
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		fmt.Fprint(out, "Account name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read account name: %w", err)
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		return fmt.Errorf("account name is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Fprintf(out, "\nAccount '%s' already exists. Update credentials? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Fprintln(out, "\nEnter your cookie values (they will be hidden as you type):")

	var authToken string
	for {
		fmt.Fprint(out, "auth_token: ")
		if authToken, err = readSecret(reader); err != nil {
			return fmt.Errorf("failed to read auth_token: %w", err)
		}
		if !strings.EqualFold(authToken, "help") {
			break
		}
		auth.ShowCookieExtractionGuide(out)
	}
	if len(authToken) < 20 {
		ui.PrintWarning("auth_token looks short; it is usually 40 hex characters")
	}

	fmt.Fprint(out, "ct0: ")
	ct0, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read ct0: %w", err)
	}

	fmt.Fprint(out, "User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Username:  username,
		AuthToken: authToken,
		CT0:       ct0,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	sanitized := auth.SanitizeAccount(account)
	ui.PrintSuccess("Account saved: " + username)
	ui.PrintInfo("auth_token", sanitized.AuthToken)
	ui.PrintInfo("ct0", sanitized.CT0)
	fmt.Fprintln(out, "\nArchive a post with:")
	fmt.Fprintln(out, "  xarchiver download https://x.com/<user>/status/<id>")
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'xarchiver auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		marker := ""
		if i == 0 {
			marker = " (default)"
		}
		fmt.Printf("\n%d. %s%s\n", i+1, sanitized.Username, marker)
		fmt.Printf("   auth_token: %s\n", sanitized.AuthToken)
		fmt.Printf("   ct0: %s\n", sanitized.CT0)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

// readSecret reads a value without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
