package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with the running server's access token.

Use this when you've scrolled past the startup message or need to
share the dashboard link.

Example:
  mindlog token`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "port the server listens on")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: mindlog serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: mindlog serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", port, token)
	fmt.Fprintf(out, "API:       curl -H 'Authorization: Bearer %s' http://localhost:%d/api/summary\n", token, port)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: Bookmark this URL or run 'mindlog token' anytime.")
	return nil
}
