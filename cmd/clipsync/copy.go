package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy",
		Short: "Sync clipboard content to the relay",
		Long: `Pushes content to all of your devices. With piped stdin the piped bytes
are synced as text (like pbcopy); otherwise the current system clipboard
content is synced.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error { return runCopy() },
	}
}

func runCopy() error {
	req := protocol.Request{Type: protocol.RequestCopy}

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > 0 {
			req.Data = &data
		}
	}

	if _, err := callDaemon(req); err != nil {
		return err
	}
	fmt.Println("Clipboard synced.")
	return nil
}
