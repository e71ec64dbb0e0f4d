package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipsync-dev/clipsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set config values",
		Long: `Without arguments, prints all config values. With a key, prints that
value. With a key and value, updates config.toml.

Keys: watch_clipboard, poll_interval_ms, server_url, database_name, notify.
The daemon reads the config at startup; restart it after changing values.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error { return runConfig(args) },
	}
}

func runConfig(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch len(args) {
	case 0:
		for _, key := range config.Keys {
			value, _ := cfg.Get(key)
			fmt.Printf("%s = %s\n", key, value)
		}
		return nil
	case 1:
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	default:
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	}
}
