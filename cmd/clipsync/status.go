package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/protocol"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE:  func(_ *cobra.Command, _ []string) error { return runStatus(jsonOut) },
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output raw JSON")
	return cmd
}

func runStatus(jsonOut bool) error {
	resp, err := callDaemon(protocol.Request{Type: protocol.RequestStatus})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseStatus || resp.Status == nil {
		return fmt.Errorf("unexpected response from daemon")
	}
	st := resp.Status

	if jsonOut {
		enc, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(enc))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Socket:\t%s\n", config.SocketPath())
	fmt.Fprintf(w, "Connected:\t%v\n", st.Connected)
	if st.Username != nil {
		fmt.Fprintf(w, "Username:\t%s\n", *st.Username)
	}
	if st.UserID != nil {
		fmt.Fprintf(w, "User id:\t%d\n", *st.UserID)
	}
	fmt.Fprintf(w, "Device id:\t%s\n", st.DeviceID)
	fmt.Fprintf(w, "Watching:\t%v\n", st.Watching)
	return w.Flush()
}
