// Package clipboard implements the clipboard worker: a dedicated goroutine
// that owns the system clipboard, polls it for changes, applies writes from
// the coordinator, and suppresses the echo of its own writes.
//
// The OS clipboard itself sits behind the Backend interface so the engine is
// testable without a display server. The system backend trades text as UTF-8
// bytes and images as PNG bytes in both directions; the worker hashes exactly
// the bytes exchanged with the backend, which keeps the dedup hashes
// consistent between writes and subsequent poll observations.
package clipboard

import (
	"errors"
	"log/slog"

	xclipboard "golang.design/x/clipboard"
)

// Backend is the minimal clipboard surface the worker needs.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ReadText returns the clipboard's text content, or nil if absent.
	ReadText() []byte

	// ReadImage returns the clipboard's image content as PNG bytes, or nil.
	ReadImage() []byte

	// WriteText replaces the clipboard content with text.
	WriteText(data []byte) error

	// WriteImage replaces the clipboard content with a PNG image.
	WriteImage(png []byte) error
}

// NewSystem returns the real OS clipboard backend, or a headless no-op
// backend when the display environment is unavailable. A headless worker
// polls nothing and fails writes, so the daemon keeps running without
// clipboard integration.
func NewSystem() Backend {
	if err := xclipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return headlessBackend{}
	}
	return systemBackend{}
}

type systemBackend struct{}

func (systemBackend) Name() string      { return "system clipboard" }
func (systemBackend) ReadText() []byte  { return xclipboard.Read(xclipboard.FmtText) }
func (systemBackend) ReadImage() []byte { return xclipboard.Read(xclipboard.FmtImage) }

func (systemBackend) WriteText(data []byte) error {
	xclipboard.Write(xclipboard.FmtText, data)
	return nil
}

func (systemBackend) WriteImage(png []byte) error {
	xclipboard.Write(xclipboard.FmtImage, png)
	return nil
}

var errHeadless = errors.New("no clipboard available")

type headlessBackend struct{}

func (headlessBackend) Name() string            { return "headless" }
func (headlessBackend) ReadText() []byte        { return nil }
func (headlessBackend) ReadImage() []byte       { return nil }
func (headlessBackend) WriteText([]byte) error  { return errHeadless }
func (headlessBackend) WriteImage([]byte) error { return errHeadless }
