package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"collaboraid-sync/internal/app"
	"collaboraid-sync/internal/domain"
)

func newConversationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := oneShot(cmd)
			defer cancel()

			a, err := loadApp(ctx, cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Engine.Refresh(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return renderSummaries(cmd.OutOrStdout(), a.Engine.Conversations(), time.Now())
		},
	}
}

func renderSummaries(w io.Writer, summaries []domain.ConversationSummary, now time.Time) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No conversations yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE\tWHEN")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.Counterpart.ID,
			s.Counterpart.DisplayName(),
			s.UnreadCount,
			preview(s.LastMessage.Content, 40),
			humanize.RelTime(s.LastActivityAt, now, "ago", "from now"),
		)
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
