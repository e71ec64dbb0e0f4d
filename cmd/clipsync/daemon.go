package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/daemon"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon in the foreground",
		Long: `Runs the clipsync daemon: watches the local clipboard, keeps the
relay session alive, and serves the local control socket used by the other
subcommands.

Requires a completed "clipsync setup". Normally started by the service
installed with "clipsync install" rather than by hand.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, _ []string) error {
			setupLogging(v)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return daemon.Run(cfg)
		},
	}

	addLoggingFlags(cmd)
	return cmd
}
