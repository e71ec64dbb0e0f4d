package main

import (
	"fmt"

	"github.com/clipsync-dev/clipsync/internal/config"
	"github.com/clipsync-dev/clipsync/internal/ipc"
	"github.com/clipsync-dev/clipsync/internal/protocol"
)

// callDaemon sends one request to the running daemon over the IPC socket.
// A protocol-level Error response is folded into the returned error so
// subcommands only handle their success variant.
func callDaemon(req protocol.Request) (protocol.Response, error) {
	resp, err := ipc.Call(config.SocketPath(), req)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.Type == protocol.ResponseError {
		return protocol.Response{}, fmt.Errorf("%s", resp.Message)
	}
	return resp, nil
}
