package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffSchedule(t *testing.T) {
	// Failed attempts i=1,2,... sleep min(2^(i-1)·1s, 60s).
	d := initialBackoff
	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, d)
		d = nextBackoff(d)
	}
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	require.Equal(t, want, got)
}

func TestSessionURL(t *testing.T) {
	for _, tc := range []struct {
		in, database, want string
	}{
		{"wss://relay.example.com", "clipsync", "wss://relay.example.com/v1/database/clipsync/session"},
		{"https://relay.example.com", "clipsync", "wss://relay.example.com/v1/database/clipsync/session"},
		{"http://127.0.0.1:9000", "testdb", "ws://127.0.0.1:9000/v1/database/testdb/session"},
		{"ws://localhost:3000/base/", "db", "ws://localhost:3000/base/v1/database/db/session"},
	} {
		got, err := sessionURL(tc.in, tc.database)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}

	_, err := sessionURL("ftp://nope", "db")
	require.Error(t, err)
}
