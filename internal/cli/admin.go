package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"collaboraid-sync/internal/app"
	collab_errors "collaboraid-sync/pkg/errors"
)

func newAdminsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "admins",
		Short: "List support admins you can message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := oneShot(cmd)
			defer cancel()

			a, err := loadApp(ctx, cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			admins, err := a.REST.Admins(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
			for _, p := range admins {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.DisplayName(), p.Email)
			}
			return tw.Flush()
		},
	}
}

func newRequestAdminCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "request-admin",
		Short: "Ask for the admin role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := oneShot(cmd)
			defer cancel()

			a, err := loadApp(ctx, cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Session.RequestAdminRole(ctx)
			var ce *collab_errors.CooldownError
			if errors.As(err, &ce) {
				return fmt.Errorf("admin request already sent, try again in %s", ce.Remaining.Round(time.Second))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Admin role requested.")
			return nil
		},
	}
}
