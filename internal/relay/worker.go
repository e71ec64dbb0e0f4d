package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var errNotConnected = errors.New("not connected to relay")

const (
	initialBackoff          = time.Second
	maxBackoff              = 60 * time.Second
	disconnectCheckInterval = 250 * time.Millisecond
)

// Config carries what the worker needs to build sessions.
type Config struct {
	ServerURL string
	Database  string

	// Username is sent with the authenticate message so the relay can bind
	// a first-time connection identity to the user's account.
	Username string

	// LoadToken is consulted before every connect attempt; the previous
	// attempt's connect callback may have persisted a newer token.
	LoadToken func() (string, bool)
}

// Worker owns the relay session lifecycle: connect with the persisted token,
// serve commands while connected, and reconnect with doubling backoff
// (1s → 60s, reset on success) when the session drops.
type Worker struct {
	cfg      Config
	view     *View
	events   chan<- Event
	commands <-chan Command
	log      *slog.Logger
}

// Start launches the worker goroutine. It runs until the command channel is
// closed.
func Start(cfg Config, events chan<- Event, commands <-chan Command) {
	w := &Worker{
		cfg:      cfg,
		view:     NewView(),
		events:   events,
		commands: commands,
		log:      slog.With("worker", "relay"),
	}
	go w.run()
}

func (w *Worker) run() {
	backoff := initialBackoff

	for {
		// Reload the token before every attempt: a previous connect may
		// have persisted a newer one.
		var token string
		if w.cfg.LoadToken != nil {
			token, _ = w.cfg.LoadToken()
		}

		sess, err := dial(w.cfg, token, w.view, w.events)
		if err != nil {
			w.log.Error("relay connect failed", "err", err, "retry_in", backoff)
			if !w.waitRetry(&backoff) {
				return
			}
			continue
		}
		backoff = initialBackoff

		if !w.serve(sess) {
			sess.close()
			w.log.Info("command channel closed, relay worker exiting")
			return
		}
		sess.close()

		w.log.Info("reconnecting to relay", "in", backoff)
		if !w.waitRetry(&backoff) {
			return
		}
	}
}

// waitRetry sleeps the current backoff, then doubles it for the next failure.
// Returns false when the command channel closed during the wait.
func (w *Worker) waitRetry(backoff *time.Duration) bool {
	if !w.sleepDropping(*backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff)
	return true
}

// serve handles commands until the session disconnects (returns true) or the
// command channel closes (returns false).
func (w *Worker) serve(sess *session) bool {
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				return false
			}
			w.handle(sess, cmd)
		case <-time.After(disconnectCheckInterval):
		}
		if sess.disconnected.Load() {
			w.log.Info("disconnect detected, will reconnect")
			return true
		}
	}
}

// sleepDropping waits out a backoff interval while draining commands, which
// cannot be served without a session. Read commands are answered with empty
// results; mutations are dropped with a logged error. Returns false when the
// command channel closes.
func (w *Worker) sleepDropping(d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return true
		case cmd, ok := <-w.commands:
			if !ok {
				return false
			}
			w.drop(cmd)
		}
	}
}

func (w *Worker) drop(cmd Command) {
	switch c := cmd.(type) {
	case ListDevices:
		c.Reply <- nil
	case GetCurrentClip:
		c.Reply <- nil
	case GetUsername:
		c.Reply <- nil
	case GetProfile:
		c.Reply <- nil
	case CreateInviteCode:
		c.Reply <- errNotConnected
	default:
		w.log.Error("dropping relay command while disconnected", "cmd", fmt.Sprintf("%T", cmd))
	}
}

func (w *Worker) handle(sess *session, cmd Command) {
	switch c := cmd.(type) {
	case SyncClip:
		if len(c.EncryptedData) > MaxSyncSize {
			w.log.Error("clip exceeds relay size cap, dropped",
				"size", len(c.EncryptedData), "cap", MaxSyncSize)
			return
		}
		if err := sess.call("sync_clip", syncClipArgs{
			DeviceID:      c.DeviceID,
			ContentType:   c.ContentType,
			EncryptedData: c.EncryptedData,
			SizeBytes:     c.SizeBytes,
		}); err != nil {
			w.log.Error("sync_clip failed", "err", err)
		}
	case RegisterDevice:
		if err := sess.call("register_device", registerDeviceArgs{
			DeviceID:   c.DeviceID,
			DeviceName: c.DeviceName,
		}); err != nil {
			w.log.Error("register_device failed", "err", err)
		}
	case ListDevices:
		c.Reply <- w.view.Devices()
	case GetCurrentClip:
		c.Reply <- w.view.CurrentClip()
	case GetUsername:
		c.Reply <- w.view.Username()
	case GetProfile:
		c.Reply <- w.view.Profile()
	case CreateInviteCode:
		c.Reply <- sess.callWait("create_invite_code", createInviteArgs{Code: c.Code})
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

type syncClipArgs struct {
	DeviceID      string `json:"device_id"`
	ContentType   string `json:"content_type"`
	EncryptedData []byte `json:"encrypted_data"`
	SizeBytes     uint64 `json:"size_bytes"`
}

type registerDeviceArgs struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type createInviteArgs struct {
	Code string `json:"code"`
}
