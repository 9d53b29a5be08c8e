package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL string
	token     string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Terminal client for the kaskada voice chat server",
	Long: `voicechat - send recordings to a kaskada server and receive the
spoken reply as it is generated.

The server address and bearer token default to the VOICECHAT_SERVER and
VOICECHAT_TOKEN environment variables.

Examples:
  # Start a new conversation from a recording
  voicechat stream question.wav -o reply.wav

  # Continue an existing conversation
  voicechat stream -c 3f6c... followup.webm --voice nova

  # Mint a token for a server started with JWT_SECRET
  voicechat token --secret "$JWT_SECRET" --subject alice`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("VOICECHAT_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("VOICECHAT_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newAPIClient() *apiClient {
	return &apiClient{baseURL: serverURL, token: token}
}
