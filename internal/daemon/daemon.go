// Package daemon implements the coordinator: the single event loop that wires
// the clipboard worker, the relay worker, and the IPC server together, and
// carries the encrypt/decrypt sync path between them.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"filippo.io/age"

	"github.com/clipsync-dev/clipsync/internal/clipboard"
	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/crypto"
	"github.com/clipsync-dev/clipsync/internal/ipc"
	"github.com/clipsync-dev/clipsync/internal/notify"
	"github.com/clipsync-dev/clipsync/internal/payload"
	"github.com/clipsync-dev/clipsync/internal/protocol"
	"github.com/clipsync-dev/clipsync/internal/relay"
)

const (
	eventChanCap   = 32
	commandChanCap = 256
	replyTimeout   = 5 * time.Second
)

// Daemon is the coordinator state. All fields are owned by the event loop;
// nothing here is shared across goroutines.
type Daemon struct {
	cfg      config.Config
	deviceID string
	userID   uint64
	identity *age.X25519Identity

	connected bool
	watching  bool
	quit      bool

	relayEvents <-chan relay.Event
	relayCmds   chan<- relay.Command
	clipEvents  <-chan clipboard.Event
	clipCmds    chan<- clipboard.Command
	requests    <-chan ipc.Request

	saveToken func(string) error
	log       *slog.Logger
}

// Run starts the workers and drives the coordinator loop until shutdown.
// Missing device or user state is fatal: the user has to run setup first.
func Run(cfg config.Config) error {
	deviceID, ok, err := config.LoadDeviceID()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device not set up, run `clipsync setup` first")
	}
	userID, ok, err := config.LoadUserID()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not logged in, run `clipsync setup` first")
	}

	slog.Info("starting daemon", "device_id", deviceID, "user_id", userID)

	var identity *age.X25519Identity
	if path, err := config.IdentityPath(); err == nil {
		identity, err = crypto.LoadIdentity(path)
		if err != nil {
			slog.Warn("failed to load private key", "err", err)
			identity = nil
		}
	}

	relayEvents := make(chan relay.Event, eventChanCap)
	relayCmds := make(chan relay.Command, commandChanCap)
	clipEvents := make(chan clipboard.Event, eventChanCap)
	clipCmds := make(chan clipboard.Command, commandChanCap)
	requests := make(chan ipc.Request, eventChanCap)

	relay.Start(relay.Config{
		ServerURL: cfg.ServerURL,
		Database:  cfg.DatabaseName,
		LoadToken: func() (string, bool) {
			token, ok, err := config.LoadToken()
			if err != nil {
				slog.Warn("failed to reload token", "err", err)
				return "", false
			}
			return token, ok
		},
	}, relayEvents, relayCmds)

	clipboard.Start(
		clipboard.NewSystem(),
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		clipEvents,
		clipCmds,
	)

	socketPath := config.SocketPath()
	srv, err := ipc.Listen(socketPath, requests)
	if err != nil {
		return err
	}
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve() }()

	d := &Daemon{
		cfg:         cfg,
		deviceID:    deviceID,
		userID:      userID,
		identity:    identity,
		watching:    cfg.WatchClipboard,
		relayEvents: relayEvents,
		relayCmds:   relayCmds,
		clipEvents:  clipEvents,
		clipCmds:    clipCmds,
		requests:    requests,
		saveToken:   config.SaveToken,
		log:         slog.Default(),
	}

	d.log.Info("daemon main loop started", "watching", d.watching)
	d.loop(serverDone)

	close(clipCmds)
	close(relayCmds)
	srv.Close()
	_ = os.Remove(socketPath)
	return nil
}

// loop multiplexes the four event sources until Shutdown is requested or the
// IPC server dies.
func (d *Daemon) loop(serverDone <-chan error) {
	for !d.quit {
		select {
		case ev := <-d.relayEvents:
			d.handleRelayEvent(ev)
		case ev := <-d.clipEvents:
			if d.watching {
				d.handleClipboardChanged(ev.Payload)
			}
		case req := <-d.requests:
			req.Reply <- d.handleRequest(req.Req)
		case err := <-serverDone:
			if err != nil {
				d.log.Error("socket server failed", "err", err)
			} else {
				d.log.Info("socket server shut down")
			}
			return
		}
	}
}

func (d *Daemon) handleRelayEvent(ev relay.Event) {
	switch e := ev.(type) {
	case relay.Connected:
		d.log.Info("connected to relay", "identity", e.Identity)
		d.connected = true
		if err := d.saveToken(e.Token); err != nil {
			d.log.Warn("failed to save token", "err", err)
		}
		d.relayCmds <- relay.RegisterDevice{
			DeviceID:   d.deviceID,
			DeviceName: hostname(),
		}
	case relay.Disconnected:
		d.log.Warn("disconnected from relay")
		d.connected = false
	case relay.SubscriptionApplied:
		d.log.Info("subscription applied, ready to sync")
	case relay.ClipUpdated:
		d.handleClipUpdated(e.Clip)
	}
}

// handleClipUpdated applies a remote clip locally. Updates sent by this
// device are skipped; writing them back would bounce the content around the
// relay forever.
func (d *Daemon) handleClipUpdated(clip relay.CurrentClip) {
	if clip.SenderDeviceID == d.deviceID {
		return
	}
	d.log.Info("received clip update", "sender", clip.SenderDeviceID, "type", clip.ContentType)

	if d.identity == nil {
		return
	}
	plaintext, err := crypto.Decrypt(clip.EncryptedData, d.identity)
	if err != nil {
		d.log.Error("failed to decrypt clip", "err", err)
		return
	}
	p, err := payload.Unmarshal(plaintext)
	if err != nil {
		d.log.Error("failed to deserialize clip", "err", err)
		return
	}
	d.clipCmds <- clipboard.SetClipboard{Payload: p}
	if d.cfg.Notify {
		notify.Send("clipsync", fmt.Sprintf("Clipboard updated from %s", clip.SenderDeviceID))
	}
}

// handleClipboardChanged uploads a local clipboard change.
func (d *Daemon) handleClipboardChanged(p payload.Payload) {
	if !d.connected || d.identity == nil {
		return
	}
	if resp := d.syncPayload(p); resp.Type == protocol.ResponseError {
		d.log.Error("failed to sync clip", "err", resp.Message)
	}
}

// syncPayload serializes, encrypts, and ships a payload to the relay. Shared
// by the watch path and the IPC Copy path.
func (d *Daemon) syncPayload(p payload.Payload) protocol.Response {
	data, err := p.Marshal()
	if err != nil {
		return protocol.Errorf("serialization failed: %v", err)
	}
	encrypted, err := crypto.Encrypt(data, d.identity.Recipient())
	if err != nil {
		return protocol.Errorf("encryption failed: %v", err)
	}
	d.relayCmds <- relay.SyncClip{
		DeviceID:      d.deviceID,
		ContentType:   p.ContentTypeString(),
		EncryptedData: encrypted,
		SizeBytes:     uint64(len(data)),
	}
	return protocol.Response{Type: protocol.ResponseOk}
}

func (d *Daemon) handleRequest(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.RequestStatus:
		return d.handleStatus()
	case protocol.RequestCopy:
		return d.handleCopy(req.Data)
	case protocol.RequestPaste:
		return d.handlePaste()
	case protocol.RequestListDevices:
		return d.handleListDevices()
	case protocol.RequestCreateInvite:
		return d.handleCreateInvite(req.Code)
	case protocol.RequestShutdown:
		d.log.Info("shutdown requested via socket")
		d.quit = true
		return protocol.Response{Type: protocol.ResponseOk}
	}
	return protocol.Errorf("unknown request type %q", req.Type)
}

func (d *Daemon) handleStatus() protocol.Response {
	var username *string
	reply := make(chan *string, 1)
	d.relayCmds <- relay.GetUsername{Reply: reply}
	select {
	case username = <-reply:
	case <-time.After(replyTimeout):
	}
	userID := d.userID
	return protocol.Response{
		Type: protocol.ResponseStatus,
		Status: &protocol.StatusInfo{
			Connected: d.connected,
			Username:  username,
			UserID:    &userID,
			DeviceID:  d.deviceID,
			Watching:  d.watching,
		},
	}
}

func (d *Daemon) handleCopy(data *[]byte) protocol.Response {
	var p payload.Payload
	if data != nil {
		p = payload.NewText(string(*data))
	} else {
		reply := make(chan *payload.Payload, 1)
		d.clipCmds <- clipboard.ReadClipboard{Reply: reply}
		select {
		case got := <-reply:
			if got == nil {
				return protocol.Errorf("Clipboard is empty")
			}
			p = *got
		case <-time.After(replyTimeout):
			return protocol.Errorf("Clipboard read failed")
		}
	}

	if !d.connected {
		return protocol.Errorf("Not connected to relay")
	}
	if d.identity == nil {
		return protocol.Errorf("No encryption key configured. Run `clipsync setup`.")
	}
	return d.syncPayload(p)
}

func (d *Daemon) handlePaste() protocol.Response {
	if !d.connected {
		return protocol.Errorf("Not connected to relay")
	}

	reply := make(chan *relay.CurrentClip, 1)
	d.relayCmds <- relay.GetCurrentClip{Reply: reply}
	var clip *relay.CurrentClip
	select {
	case clip = <-reply:
	case <-time.After(replyTimeout):
		return protocol.Errorf("Failed to get clip from relay")
	}
	if clip == nil {
		return protocol.Errorf("No clip available")
	}
	if d.identity == nil {
		return protocol.Errorf("No encryption key configured")
	}

	plaintext, err := crypto.Decrypt(clip.EncryptedData, d.identity)
	if err != nil {
		return protocol.Errorf("Failed to decrypt clip: %v", err)
	}
	p, err := payload.Unmarshal(plaintext)
	if err != nil {
		return protocol.Errorf("Failed to deserialize clip: %v", err)
	}

	var data []byte
	switch p.Kind {
	case payload.KindText:
		data = []byte(p.Text)
	case payload.KindImage:
		data = p.Image.PNG
	case payload.KindFiles:
		data, err = p.Marshal()
		if err != nil {
			return protocol.Errorf("Failed to serialize files: %v", err)
		}
	}
	return protocol.Response{
		Type: protocol.ResponseClipData,
		Clip: &protocol.ClipData{ContentType: p.ContentTypeString(), Data: data},
	}
}

func (d *Daemon) handleListDevices() protocol.Response {
	reply := make(chan []relay.Device, 1)
	d.relayCmds <- relay.ListDevices{Reply: reply}
	var devices []relay.Device
	select {
	case devices = <-reply:
	case <-time.After(replyTimeout):
		return protocol.Errorf("Failed to list devices")
	}
	out := make([]protocol.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		out = append(out, protocol.DeviceInfo{
			ID:         dev.ID,
			DeviceID:   dev.DeviceID,
			DeviceName: dev.DeviceName,
		})
	}
	return protocol.Response{Type: protocol.ResponseDevices, Devices: out}
}

func (d *Daemon) handleCreateInvite(code string) protocol.Response {
	if code == "" {
		return protocol.Errorf("invite code must not be empty")
	}
	if !d.connected {
		return protocol.Errorf("Not connected to relay")
	}
	reply := make(chan error, 1)
	d.relayCmds <- relay.CreateInviteCode{Code: code, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			return protocol.Errorf("%v", err)
		}
	case <-time.After(replyTimeout):
		return protocol.Errorf("No response from relay")
	}
	return protocol.Response{Type: protocol.ResponseInviteCreated, Code: code}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
