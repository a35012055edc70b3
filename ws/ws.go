// Package ws implements the WebSocket protocol (RFC 6455) for both the
// client and server roles: the HTTP upgrade handshake, the frame codec,
// the connection state machine, and message reassembly.
//
// Extensions such as permessage-deflate, multiplexing, message persistence
// across reconnects and automatic reconnection are out of scope; callers
// that need them should layer them on top of a *Conn.
package ws

import (
	"log"
	"os"
)

// Log is the package-level logger used for internal diagnostics (currently
// only a failed hijack during a server-side upgrade). It does not
// receive handler errors — those are delivered on Server.Diagnostics.
// Callers may replace it, e.g. with log.New(io.Discard, "", 0) to silence it.
var Log = log.New(os.Stderr, "ws: ", log.LstdFlags)

// Message kinds, equal to the wire opcode of the frame that carries them.
const (
	TextMessage   = 1
	BinaryMessage = 2
	CloseMessage  = 8
	PingMessage   = 9
	PongMessage   = 10
)

// Role identifies which side of a connection a Conn is playing. It governs
// masking direction: clients mask outgoing frames, servers never do.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is the connection's position in the close handshake.
type State int32

const (
	StateOpen State = iota
	StateClosingSentLocal
	StateClosingReceivedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosingSentLocal:
		return "closing (sent)"
	case StateClosingReceivedRemote:
		return "closing (received)"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
