package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/crypto"
	"github.com/clipsync-dev/clipsync/internal/relay"
)

const setupTimeout = 30 * time.Second

func newSetupCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "setup <username>",
		Short: "Set up this device",
		Long: `Prepares this device for syncing: generates a stable device UUID and an
age encryption keypair, connects to the relay to obtain a session token, and
records the account's user id.

The account itself must already exist on the relay (created through its
enrollment flow, with an invite code from "clipsync invite" on an existing
device). Setup prints this device's public key so it can be attached to the
account if the relay requires it.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			setupLogging(v)
			return runSetup(args[0])
		},
	}

	addLoggingFlags(cmd)
	return cmd
}

func runSetup(username string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Device UUID: stable across runs, generated once.
	deviceID, ok, err := config.LoadDeviceID()
	if err != nil {
		return err
	}
	if !ok {
		deviceID = uuid.NewString()
		if err := config.SaveDeviceID(deviceID); err != nil {
			return err
		}
		fmt.Printf("Generated device id %s\n", deviceID)
	} else {
		fmt.Printf("Using existing device id %s\n", deviceID)
	}

	// Encryption identity: generated once and never regenerated implicitly,
	// since replacing it would orphan clips encrypted to the old key.
	idPath, err := config.IdentityPath()
	if err != nil {
		return err
	}
	identity, err := crypto.LoadIdentity(idPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		id, _, genErr := crypto.GenerateKeypair()
		if genErr != nil {
			return genErr
		}
		if err := crypto.StoreIdentity(idPath, id); err != nil {
			return err
		}
		identity = id
		fmt.Println("Generated encryption keypair")
	}
	fmt.Printf("Public key: %s\n", identity.Recipient())

	// Connect once to obtain a session token and the account's user id.
	events := make(chan relay.Event, 32)
	commands := make(chan relay.Command, 32)
	defer close(commands)

	relay.Start(relay.Config{
		ServerURL: cfg.ServerURL,
		Database:  cfg.DatabaseName,
		Username:  username,
		LoadToken: func() (string, bool) {
			token, ok, err := config.LoadToken()
			if err != nil || !ok {
				return "", false
			}
			return token, true
		},
	}, events, commands)

	deadline := time.After(setupTimeout)
	for {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case relay.Connected:
				if err := config.SaveToken(e.Token); err != nil {
					return err
				}
			case relay.SubscriptionApplied:
				reply := make(chan *relay.Profile, 1)
				commands <- relay.GetProfile{Reply: reply}
				profile := <-reply
				if profile == nil {
					return fmt.Errorf("no account for %q on the relay; complete enrollment first", username)
				}
				if profile.Username != username {
					return fmt.Errorf("relay session belongs to %q, not %q", profile.Username, username)
				}
				if err := config.SaveUserID(profile.UserID); err != nil {
					return err
				}
				fmt.Printf("Logged in as %s (user id %d)\n", profile.Username, profile.UserID)
				fmt.Println("Setup complete. Start the daemon with `clipsync daemon` or `clipsync install`.")
				return nil
			case relay.Disconnected:
				// Worker retries with backoff; keep waiting until the deadline.
			}
		case <-deadline:
			return fmt.Errorf("timed out connecting to relay at %s", cfg.ServerURL)
		}
	}
}
