package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

func newInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite",
		Short: "Create a single-use invite code",
		Long: `Creates a single-use invite code on the relay. Invite codes are required
for account enrollment and expire after 24 hours.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error { return runInvite() },
	}
}

func runInvite() error {
	code := uuid.NewString()

	resp, err := callDaemon(protocol.Request{Type: protocol.RequestCreateInvite, Code: code})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseInviteCreated {
		return fmt.Errorf("unexpected response from daemon")
	}

	fmt.Printf("Invite code: %s\n\n", resp.Code)
	fmt.Println("Share this with the person you want to invite. It is valid for 24 hours.")
	return nil
}
