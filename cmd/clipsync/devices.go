package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/protocol"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List this account's registered devices",
		Args:  cobra.NoArgs,
		RunE:  func(_ *cobra.Command, _ []string) error { return runDevices() },
	}
}

func runDevices() error {
	resp, err := callDaemon(protocol.Request{Type: protocol.RequestListDevices})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseDevices {
		return fmt.Errorf("unexpected response from daemon")
	}
	if len(resp.Devices) == 0 {
		fmt.Println("No devices registered.")
		return nil
	}

	ownID, _, _ := config.LoadDeviceID()

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\tID\tDEVICE\tNAME\n")
	for _, d := range resp.Devices {
		marker := ""
		if d.DeviceID == ownID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", marker, d.ID, d.DeviceID, d.DeviceName)
	}
	return w.Flush()
}
