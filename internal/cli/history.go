package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"collaboraid-sync/internal/app"
	"collaboraid-sync/internal/domain"
)

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <userID>",
		Short: "Show the conversation with a user and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserArg(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := oneShot(cmd)
			defer cancel()

			a, err := loadApp(ctx, cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.Engine.Open(ctx, domain.Participant{ID: id})
			if err != nil && conv.Counterpart.ID == 0 {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return renderConversation(cmd.OutOrStdout(), a.Self.ID, conv)
		},
	}
}

func renderConversation(w io.Writer, self domain.UserID, conv domain.Conversation) error {
	if len(conv.Messages) == 0 {
		_, err := fmt.Fprintf(w, "No messages with %s.\n", conv.Counterpart.DisplayName())
		return err
	}
	for _, m := range conv.Messages {
		who := m.Sender.DisplayName()
		if m.Sender.ID == self {
			who = "you"
		}
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("2006-01-02 15:04"), who, m.Content)
		if m.TaskTitle != "" {
			line += fmt.Sprintf(" (task: %s)", m.TaskTitle)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func parseUserArg(s string) (domain.UserID, error) {
	id, err := domain.ParseUserID(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
