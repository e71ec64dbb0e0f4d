package clipboard

import (
	"bytes"
	"image"
	_ "image/png" // register PNG for image.DecodeConfig
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/clipsync-dev/clipsync/internal/logging"
	"github.com/clipsync-dev/clipsync/internal/payload"
)

// Event is emitted to the coordinator when the user changes the clipboard.
type Event struct {
	Payload payload.Payload
}

// Command is the sum of commands the coordinator sends to the worker.
type Command interface{ isCommand() }

// SetClipboard writes a payload to the system clipboard. The worker records
// the hash of the written bytes so its own poll does not re-emit them.
type SetClipboard struct {
	Payload payload.Payload
}

// ReadClipboard reads the clipboard once and replies with the payload, or
// nil when the clipboard is empty.
type ReadClipboard struct {
	Reply chan<- *payload.Payload
}

func (SetClipboard) isCommand()  {}
func (ReadClipboard) isCommand() {}

// Worker owns the clipboard backend and the two dedup hashes. All clipboard
// mutation funnels through its goroutine, so the hashes need no locking.
type Worker struct {
	backend  Backend
	interval time.Duration
	events   chan<- Event
	commands <-chan Command
	log      *slog.Logger

	lastSeen      uint64
	lastSeenOK    bool
	lastWritten   uint64
	lastWrittenOK bool
}

// Start launches the worker goroutine. It runs until the command channel is
// closed. Events are emitted on events; the coordinator must keep draining.
func Start(backend Backend, pollInterval time.Duration, events chan<- Event, commands <-chan Command) {
	w := &Worker{
		backend:  backend,
		interval: pollInterval,
		events:   events,
		commands: commands,
		log:      slog.With("worker", "clipboard"),
	}
	go w.run()
}

func (w *Worker) run() {
	w.log.Info("clipboard worker started", "backend", w.backend.Name(), "poll_interval", w.interval)
	for {
		if !w.drainCommands() {
			w.log.Info("command channel closed, clipboard worker exiting")
			return
		}
		w.poll()
		time.Sleep(w.interval)
	}
}

// drainCommands processes all pending commands without blocking. Returns
// false when the command channel has been closed.
func (w *Worker) drainCommands() bool {
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				return false
			}
			w.handleCommand(cmd)
		default:
			return true
		}
	}
}

func (w *Worker) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case SetClipboard:
		w.setClipboard(c.Payload)
	case ReadClipboard:
		c.Reply <- w.read()
	}
}

func (w *Worker) setClipboard(p payload.Payload) {
	switch p.Kind {
	case payload.KindText:
		data := []byte(p.Text)
		w.recordWrite(xxhash.Sum64(data))
		if err := w.backend.WriteText(data); err != nil {
			w.log.Error("failed to set clipboard text", "err", err)
		}
	case payload.KindImage:
		w.recordWrite(xxhash.Sum64(p.Image.PNG))
		if err := w.backend.WriteImage(p.Image.PNG); err != nil {
			w.log.Error("failed to set clipboard image", "err", err)
		}
	case payload.KindFiles:
		// No OS write-back for file payloads.
		w.log.Warn("file payloads are not written to the clipboard", "files", len(p.Files))
	}
}

func (w *Worker) recordWrite(h uint64) {
	w.lastWritten, w.lastWrittenOK = h, true
	w.lastSeen, w.lastSeenOK = h, true
}

// read returns the current clipboard payload without touching the hashes.
func (w *Worker) read() *payload.Payload {
	p, _, ok := w.snapshot()
	if !ok {
		return nil
	}
	return &p
}

// snapshot reads the clipboard, preferring text over images, and returns the
// payload together with the bytes to hash for dedup.
func (w *Worker) snapshot() (payload.Payload, []byte, bool) {
	if text := w.backend.ReadText(); len(text) > 0 {
		return payload.NewText(string(text)), text, true
	}
	if png := w.backend.ReadImage(); len(png) > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
		if err != nil {
			w.log.Warn("undecodable clipboard image", "err", err)
			return payload.Payload{}, nil, false
		}
		return payload.NewImage(uint32(cfg.Width), uint32(cfg.Height), png), png, true
	}
	return payload.Payload{}, nil, false
}

func (w *Worker) poll() {
	p, hashBytes, ok := w.snapshot()
	if !ok {
		return
	}
	h := xxhash.Sum64(hashBytes)
	if w.lastSeenOK && h == w.lastSeen {
		return
	}

	if w.lastWrittenOK && h == w.lastWritten {
		// Our own write coming back around: observe it, never emit.
		w.lastSeen, w.lastSeenOK = h, true
		w.lastWrittenOK = false
		return
	}

	w.lastSeen, w.lastSeenOK = h, true
	if p.Kind == payload.KindText {
		w.log.Debug("clipboard changed", "kind", p.Kind, "preview", logging.PreviewText(p.Text))
	} else {
		w.log.Debug("clipboard changed", "kind", p.Kind, "bytes", len(hashBytes))
	}
	w.events <- Event{Payload: p}
}
