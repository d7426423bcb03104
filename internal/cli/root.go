package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"collaboraid-sync/config"
	"collaboraid-sync/internal/app"
	"collaboraid-sync/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// commandTimeout bounds one-shot commands.
const commandTimeout = 30 * time.Second

// NewRootCommand builds the collabsync command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "collabsync",
		Short: "CollaborAid messaging client",
		Long: `collabsync keeps a local, de-duplicated view of your CollaborAid
conversations in sync with the backend and exposes it to a UI over a
local HTTP and WebSocket bridge.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringP("config", "c", "", "YAML config file path")

	root.AddCommand(
		newServeCommand(),
		newConversationsCommand(),
		newHistoryCommand(),
		newSendCommand(),
		newAdminsCommand(),
		newRequestAdminCommand(),
	)
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads config and flags and builds the application.
func loadApp(ctx context.Context, cmd *cobra.Command, opts app.Options) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	mode := cfg.LogMode
	if verbose {
		mode = logger.DevelopmentMode
	}
	var l *logger.Logger
	if verbose || opts.WithPush {
		l = logger.New(mode)
	} else {
		l = logger.NewNop()
	}
	logger.SetGlobalLogger(l)

	return app.New(ctx, cfg, l, opts)
}

func oneShot(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), commandTimeout)
}
