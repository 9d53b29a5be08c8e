package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/kaskada/internal/httpapi"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List or create conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your most recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		convs, err := newAPIClient().listConversations(ctx)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no conversations")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCREATED")
		for _, c := range convs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.CreatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a conversation and print its ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		conv, err := newAPIClient().createConversation(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
		return nil
	},
}

var (
	tokenSecret  string
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a server secret",
	Long: `Mint an HS256 bearer token accepted by a server started with the same
JWT_SECRET. Use it with --token or VOICECHAT_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("secret is required, use --secret")
		}
		if tokenSubject == "" {
			return fmt.Errorf("subject is required, use --subject")
		}
		tok, expiresAt, err := httpapi.IssueToken(tokenSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsCreateCmd)

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", envOr("JWT_SECRET", ""), "signing secret")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "user the token identifies")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(conversationsCmd, tokenCmd)
}
