package daemon

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipsync-dev/clipsync/internal/clipboard"
	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/crypto"
	"github.com/clipsync-dev/clipsync/internal/payload"
	"github.com/clipsync-dev/clipsync/internal/protocol"
	"github.com/clipsync-dev/clipsync/internal/relay"
)

type testHarness struct {
	d           *Daemon
	relayCmds   chan relay.Command
	clipCmds    chan clipboard.Command
	savedTokens []string
}

func newTestDaemon(t *testing.T) *testHarness {
	t.Helper()
	id, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	h := &testHarness{
		relayCmds: make(chan relay.Command, 32),
		clipCmds:  make(chan clipboard.Command, 32),
	}
	h.d = &Daemon{
		cfg:       config.Default(),
		deviceID:  "A",
		userID:    7,
		identity:  id,
		connected: true,
		watching:  true,
		relayCmds: h.relayCmds,
		clipCmds:  h.clipCmds,
		saveToken: func(tok string) error {
			h.savedTokens = append(h.savedTokens, tok)
			return nil
		},
		log: slog.Default(),
	}
	return h
}

func (h *testHarness) encrypt(t *testing.T, p payload.Payload) []byte {
	t.Helper()
	data, err := p.Marshal()
	require.NoError(t, err)
	enc, err := crypto.Encrypt(data, h.d.identity.Recipient())
	require.NoError(t, err)
	return enc
}

func (h *testHarness) nextRelayCmd(t *testing.T) relay.Command {
	t.Helper()
	select {
	case cmd := <-h.relayCmds:
		return cmd
	case <-time.After(time.Second):
		t.Fatal("expected a relay command")
		return nil
	}
}

func (h *testHarness) requireNoClipCmd(t *testing.T) {
	t.Helper()
	select {
	case cmd := <-h.clipCmds:
		t.Fatalf("unexpected clipboard command: %#v", cmd)
	default:
	}
}

func (h *testHarness) requireNoRelayCmd(t *testing.T) {
	t.Helper()
	select {
	case cmd := <-h.relayCmds:
		t.Fatalf("unexpected relay command: %#v", cmd)
	default:
	}
}

func TestConnectedPersistsTokenAndRegisters(t *testing.T) {
	h := newTestDaemon(t)
	h.d.connected = false

	h.d.handleRelayEvent(relay.Connected{Identity: "deadbeef", Token: "fresh-token"})

	require.True(t, h.d.connected)
	require.Equal(t, []string{"fresh-token"}, h.savedTokens)

	cmd := h.nextRelayCmd(t)
	reg, ok := cmd.(relay.RegisterDevice)
	require.True(t, ok, "expected RegisterDevice, got %#v", cmd)
	require.Equal(t, "A", reg.DeviceID)
	require.NotEmpty(t, reg.DeviceName)
}

func TestDisconnectedClearsConnected(t *testing.T) {
	h := newTestDaemon(t)
	h.d.handleRelayEvent(relay.Disconnected{})
	require.False(t, h.d.connected)
}

func TestSelfFilter(t *testing.T) {
	h := newTestDaemon(t)

	clip := relay.CurrentClip{
		SenderDeviceID: "A", // our own device
		ContentType:    "text",
		EncryptedData:  h.encrypt(t, payload.NewText("hello")),
	}
	h.d.handleClipUpdated(clip)

	h.requireNoClipCmd(t)
}

func TestInboundClipSetsClipboard(t *testing.T) {
	h := newTestDaemon(t)

	clip := relay.CurrentClip{
		SenderDeviceID: "B",
		ContentType:    "text",
		EncryptedData:  h.encrypt(t, payload.NewText("hello")),
	}
	h.d.handleClipUpdated(clip)

	select {
	case cmd := <-h.clipCmds:
		set, ok := cmd.(clipboard.SetClipboard)
		require.True(t, ok)
		require.Equal(t, payload.KindText, set.Payload.Kind)
		require.Equal(t, "hello", set.Payload.Text)
	case <-time.After(time.Second):
		t.Fatal("expected a SetClipboard command")
	}
}

func TestInboundClipIdempotent(t *testing.T) {
	h := newTestDaemon(t)

	clip := relay.CurrentClip{
		SenderDeviceID: "B",
		ContentType:    "text",
		EncryptedData:  h.encrypt(t, payload.NewText("dup")),
	}
	// Insert-then-update duplication: both deliveries must be harmless.
	h.d.handleClipUpdated(clip)
	h.d.handleClipUpdated(clip)

	require.Len(t, h.clipCmds, 2)
}

func TestInboundUndecryptableClipDropped(t *testing.T) {
	h := newTestDaemon(t)

	h.d.handleClipUpdated(relay.CurrentClip{
		SenderDeviceID: "B",
		EncryptedData:  []byte("garbage ciphertext"),
	})
	h.requireNoClipCmd(t)
}

func TestOutboundClipSyncs(t *testing.T) {
	h := newTestDaemon(t)

	h.d.handleClipboardChanged(payload.NewText("hello"))

	cmd := h.nextRelayCmd(t)
	sync, ok := cmd.(relay.SyncClip)
	require.True(t, ok, "expected SyncClip, got %#v", cmd)
	require.Equal(t, "A", sync.DeviceID)
	require.Equal(t, "text", sync.ContentType)

	plaintext, err := crypto.Decrypt(sync.EncryptedData, h.d.identity)
	require.NoError(t, err)
	require.Equal(t, uint64(len(plaintext)), sync.SizeBytes)

	p, err := payload.Unmarshal(plaintext)
	require.NoError(t, err)
	require.Equal(t, "hello", p.Text)
}

func TestOutboundClipIgnoredWhileDisconnected(t *testing.T) {
	h := newTestDaemon(t)
	h.d.connected = false

	h.d.handleClipboardChanged(payload.NewText("hello"))
	h.requireNoRelayCmd(t)
}

func TestCopyFromStdin(t *testing.T) {
	h := newTestDaemon(t)

	data := []byte("xyz")
	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestCopy, Data: &data})
	require.Equal(t, protocol.ResponseOk, resp.Type)

	sync, ok := h.nextRelayCmd(t).(relay.SyncClip)
	require.True(t, ok)
	require.Equal(t, "text", sync.ContentType)

	plaintext, err := crypto.Decrypt(sync.EncryptedData, h.d.identity)
	require.NoError(t, err)
	p, err := payload.Unmarshal(plaintext)
	require.NoError(t, err)
	require.Equal(t, "xyz", p.Text)
}

func TestCopyReadsClipboardWhenNoData(t *testing.T) {
	h := newTestDaemon(t)

	go func() {
		cmd := <-h.clipCmds
		read := cmd.(clipboard.ReadClipboard)
		p := payload.NewText("from clipboard")
		read.Reply <- &p
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestCopy})
	require.Equal(t, protocol.ResponseOk, resp.Type)

	sync := h.nextRelayCmd(t).(relay.SyncClip)
	plaintext, err := crypto.Decrypt(sync.EncryptedData, h.d.identity)
	require.NoError(t, err)
	p, err := payload.Unmarshal(plaintext)
	require.NoError(t, err)
	require.Equal(t, "from clipboard", p.Text)
}

func TestCopyEmptyClipboard(t *testing.T) {
	h := newTestDaemon(t)

	go func() {
		read := (<-h.clipCmds).(clipboard.ReadClipboard)
		read.Reply <- nil
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestCopy})
	require.Equal(t, protocol.ResponseError, resp.Type)
	require.Equal(t, "Clipboard is empty", resp.Message)
}

func TestCopyWhileDisconnected(t *testing.T) {
	h := newTestDaemon(t)
	h.d.connected = false

	data := []byte("xyz")
	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestCopy, Data: &data})
	require.Equal(t, protocol.ResponseError, resp.Type)
}

func TestPasteNoClipAvailable(t *testing.T) {
	h := newTestDaemon(t)

	go func() {
		get := (<-h.relayCmds).(relay.GetCurrentClip)
		get.Reply <- nil
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestPaste})
	require.Equal(t, protocol.ResponseError, resp.Type)
	require.Equal(t, "No clip available", resp.Message)
}

func TestPasteReturnsDecryptedClip(t *testing.T) {
	h := newTestDaemon(t)
	enc := h.encrypt(t, payload.NewText("pasted"))

	go func() {
		get := (<-h.relayCmds).(relay.GetCurrentClip)
		get.Reply <- &relay.CurrentClip{SenderDeviceID: "B", ContentType: "text", EncryptedData: enc}
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestPaste})
	require.Equal(t, protocol.ResponseClipData, resp.Type)
	require.Equal(t, "text", resp.Clip.ContentType)
	require.Equal(t, []byte("pasted"), resp.Clip.Data)
}

func TestPasteImageReturnsPNGBytes(t *testing.T) {
	h := newTestDaemon(t)
	png, err := payload.RGBAToPNG(make([]byte, 4), 1, 1)
	require.NoError(t, err)
	enc := h.encrypt(t, payload.NewImage(1, 1, png))

	go func() {
		get := (<-h.relayCmds).(relay.GetCurrentClip)
		get.Reply <- &relay.CurrentClip{SenderDeviceID: "B", ContentType: "image", EncryptedData: enc}
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestPaste})
	require.Equal(t, protocol.ResponseClipData, resp.Type)
	require.Equal(t, "image", resp.Clip.ContentType)
	require.Equal(t, png, resp.Clip.Data)
}

func TestStatus(t *testing.T) {
	h := newTestDaemon(t)

	go func() {
		get := (<-h.relayCmds).(relay.GetUsername)
		name := "alice"
		get.Reply <- &name
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestStatus})
	require.Equal(t, protocol.ResponseStatus, resp.Type)
	require.True(t, resp.Status.Connected)
	require.Equal(t, "alice", *resp.Status.Username)
	require.Equal(t, uint64(7), *resp.Status.UserID)
	require.Equal(t, "A", resp.Status.DeviceID)
	require.True(t, resp.Status.Watching)
}

func TestListDevices(t *testing.T) {
	h := newTestDaemon(t)

	go func() {
		list := (<-h.relayCmds).(relay.ListDevices)
		list.Reply <- []relay.Device{
			{ID: 1, DeviceID: "A", DeviceName: "desktop"},
			{ID: 2, DeviceID: "B", DeviceName: "laptop"},
		}
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestListDevices})
	require.Equal(t, protocol.ResponseDevices, resp.Type)
	require.Len(t, resp.Devices, 2)
	require.Equal(t, "laptop", resp.Devices[1].DeviceName)
}

func TestCreateInvite(t *testing.T) {
	h := newTestDaemon(t)

	codes := make(chan string, 1)
	go func() {
		inv := (<-h.relayCmds).(relay.CreateInviteCode)
		codes <- inv.Code
		inv.Reply <- nil
	}()

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestCreateInvite, Code: "code-1"})
	require.Equal(t, protocol.ResponseInviteCreated, resp.Type)
	require.Equal(t, "code-1", resp.Code)
	require.Equal(t, "code-1", <-codes)
}

func TestShutdown(t *testing.T) {
	h := newTestDaemon(t)

	resp := h.d.handleRequest(protocol.Request{Type: protocol.RequestShutdown})
	require.Equal(t, protocol.ResponseOk, resp.Type)
	require.True(t, h.d.quit)
}
