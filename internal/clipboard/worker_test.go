package clipboard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipsync-dev/clipsync/internal/payload"
)

const testPoll = 5 * time.Millisecond

// fakeBackend is an in-memory clipboard.
type fakeBackend struct {
	mu   sync.Mutex
	text []byte
	png  []byte

	writeErr error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ReadText() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeBackend) ReadImage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.png
}

func (f *fakeBackend) WriteText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.text, f.png = data, nil
	return nil
}

func (f *fakeBackend) WriteImage(png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.text, f.png = nil, png
	return nil
}

// setUserText simulates the user copying text outside the daemon.
func (f *fakeBackend) setUserText(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.png = []byte(s), nil
}

func startWorker(t *testing.T) (*fakeBackend, chan Event, chan Command) {
	t.Helper()
	backend := &fakeBackend{}
	events := make(chan Event, 32)
	commands := make(chan Command, 32)
	Start(backend, testPoll, events, commands)
	t.Cleanup(func() { close(commands) })
	return backend, events, commands
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for clipboard event")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected clipboard event: %+v", ev.Payload)
	case <-time.After(20 * testPoll):
	}
}

func TestPollEmitsOnUserChange(t *testing.T) {
	backend, events, _ := startWorker(t)

	backend.setUserText("hello")
	ev := waitEvent(t, events)
	require.Equal(t, payload.KindText, ev.Payload.Kind)
	require.Equal(t, "hello", ev.Payload.Text)

	// Same content: no re-emit.
	requireNoEvent(t, events)

	backend.setUserText("world")
	ev = waitEvent(t, events)
	require.Equal(t, "world", ev.Payload.Text)
}

func TestEchoSuppression(t *testing.T) {
	backend, events, commands := startWorker(t)

	commands <- SetClipboard{Payload: payload.NewText("from remote")}

	// The worker wrote the clipboard itself; its polls must stay silent.
	requireNoEvent(t, events)
	require.Equal(t, []byte("from remote"), backend.ReadText())

	// A genuine user change afterwards is still detected.
	backend.setUserText("typed by user")
	ev := waitEvent(t, events)
	require.Equal(t, "typed by user", ev.Payload.Text)
}

func TestEchoSuppressionImage(t *testing.T) {
	png, err := payload.RGBAToPNG(make([]byte, 4*2*2), 2, 2)
	require.NoError(t, err)

	backend, events, commands := startWorker(t)
	commands <- SetClipboard{Payload: payload.NewImage(2, 2, png)}

	requireNoEvent(t, events)
	require.Equal(t, png, backend.ReadImage())
}

func TestPollEmitsImage(t *testing.T) {
	rgba := []byte{255, 0, 0, 255, 0, 255, 0, 255, 0, 0, 255, 255, 1, 2, 3, 255}
	png, err := payload.RGBAToPNG(rgba, 2, 2)
	require.NoError(t, err)

	backend, events, _ := startWorker(t)
	backend.mu.Lock()
	backend.png = png
	backend.mu.Unlock()

	ev := waitEvent(t, events)
	require.Equal(t, payload.KindImage, ev.Payload.Kind)
	require.Equal(t, uint32(2), ev.Payload.Image.Width)
	require.Equal(t, uint32(2), ev.Payload.Image.Height)
	require.Equal(t, png, ev.Payload.Image.PNG)
}

func TestReadClipboard(t *testing.T) {
	backend, _, commands := startWorker(t)
	backend.setUserText("current")

	reply := make(chan *payload.Payload, 1)
	commands <- ReadClipboard{Reply: reply}

	select {
	case p := <-reply:
		require.NotNil(t, p)
		require.Equal(t, "current", p.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read reply")
	}
}

func TestReadClipboardEmpty(t *testing.T) {
	_, _, commands := startWorker(t)

	reply := make(chan *payload.Payload, 1)
	commands <- ReadClipboard{Reply: reply}

	select {
	case p := <-reply:
		require.Nil(t, p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read reply")
	}
}

func TestFilesPayloadIgnored(t *testing.T) {
	backend, events, commands := startWorker(t)

	commands <- SetClipboard{Payload: payload.NewFiles([]payload.FileEntry{
		{Name: "a.txt", Data: []byte("a")},
	})}

	requireNoEvent(t, events)
	require.Nil(t, backend.ReadText())
	require.Nil(t, backend.ReadImage())
}

func TestTextPreferredOverImage(t *testing.T) {
	png, err := payload.RGBAToPNG(make([]byte, 4), 1, 1)
	require.NoError(t, err)

	backend, events, _ := startWorker(t)
	backend.mu.Lock()
	backend.text = []byte("both")
	backend.png = png
	backend.mu.Unlock()

	ev := waitEvent(t, events)
	require.Equal(t, payload.KindText, ev.Payload.Kind)
}
