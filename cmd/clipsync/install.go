package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

const serviceName = "clipsync.service"

const unitTemplate = `[Unit]
Description=clipsync clipboard sync daemon
After=graphical-session.target

[Service]
ExecStart=%s daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the daemon as a user service",
		Long: `Installs a systemd user unit running "clipsync daemon" and starts it.
The daemon will start automatically on login.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error { return runInstall() },
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the user service",
		Args:  cobra.NoArgs,
		RunE:  func(_ *cobra.Command, _ []string) error { return runUninstall() },
	}
}

func unitPath() (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("service install is only supported on Linux; run `clipsync daemon` directly")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", serviceName), nil
}

func runInstall() error {
	path, err := unitPath()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf(unitTemplate, exe)), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := systemctl("enable", "--now", serviceName); err != nil {
		return err
	}

	fmt.Println("Service installed and started.")
	fmt.Println("The daemon will start automatically on login.")
	return nil
}

func runUninstall() error {
	path, err := unitPath()
	if err != nil {
		return err
	}

	// Stop first; ignore failure if the service was never running.
	_ = systemctl("disable", "--now", serviceName)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	_ = systemctl("daemon-reload")

	fmt.Println("Service uninstalled.")
	return nil
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %v: %w", args, err)
	}
	return nil
}
