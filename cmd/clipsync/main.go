// clipsync: end-to-end encrypted clipboard sync across machines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipsync-dev/clipsync/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipsync",
		Short: "Clipboard sync across machines",
		Long: `clipsync keeps the clipboard in sync across all of a user's devices.

Run "clipsync setup <username>" once per device, then "clipsync daemon"
(or "clipsync install" to run it as a user service). Clipboard content is
end-to-end encrypted; the relay only ever stores ciphertext.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newSetupCmd(),
		newCopyCmd(),
		newPasteCmd(),
		newStatusCmd(),
		newDevicesCmd(),
		newConfigCmd(),
		newInviteCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipsync %s\n", Version)
		},
	}
}

// bindViper wires a command's flags into a viper instance with the
// CLIPSYNC_* env var prefix.
//
// Precedence (lowest → highest): defaults → CLIPSYNC_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix("CLIPSYNC")
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "info", "log level: debug|info|warn|error")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	logging.Setup(
		logging.ParseFormat(v.GetString("log-format")),
		logging.ParseLevel(v.GetString("log-level")),
	)
}
