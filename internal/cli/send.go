package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"collaboraid-sync/internal/app"
	"collaboraid-sync/internal/domain"
)

func newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <userID> <text...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
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

			pending, err := a.Engine.Send(ctx, domain.Participant{ID: id}, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if pending == nil {
				return fmt.Errorf("nothing to send")
			}
			ref := pending.Message.ID
			if ref == "" {
				ref = pending.ClientID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s to %s via %s (%s)\n", pending.Status, id, pending.Transport, ref)
			return nil
		},
	}
}
