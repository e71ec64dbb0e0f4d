// Package notify posts desktop notifications for received clips.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Send posts a desktop notification. Failures are logged at DEBUG only;
// notification support is best-effort and never affects the sync path.
func Send(title, body string) {
	if err := beeep.Notify(title, body, ""); err != nil {
		slog.Debug("desktop notification failed", "err", err)
	}
}
