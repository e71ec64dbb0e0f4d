package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

func newPasteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paste",
		Short: "Print the latest synced clip to stdout",
		Long: `Fetches the user's latest clip from the relay, decrypts it, and writes
it to stdout (like pbpaste). Image clips are written as raw PNG bytes; pipe
to a file:

  clipsync paste > screenshot.png`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error { return runPaste() },
	}
}

func runPaste() error {
	resp, err := callDaemon(protocol.Request{Type: protocol.RequestPaste})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseClipData || resp.Clip == nil {
		return fmt.Errorf("unexpected response from daemon")
	}

	if resp.Clip.ContentType != "text" && isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("refusing to write %s data to a terminal; redirect to a file", resp.Clip.ContentType)
	}
	if _, err := os.Stdout.Write(resp.Clip.Data); err != nil {
		return err
	}
	if resp.Clip.ContentType == "text" && isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println()
	}
	return nil
}
