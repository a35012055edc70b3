package ws

import (
	"bufio"
	"crypto/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a single WebSocket connection: the session façade over the frame
// codec and the close-handshake state machine. A Conn is safe for
// concurrent use by one reader and any number of writers — WriteMessage,
// Ping, Pong and Close all serialize on the same write lock so frames from
// concurrent callers are never interleaved, though the order in which
// concurrent writers win that lock is not guaranteed.
type Conn struct {
	nc   net.Conn
	role Role
	br   *bufio.Reader
	bw   *bufio.Writer

	subprotocol string
	readTimeout time.Duration
	chunkSize   int

	writeMu sync.Mutex
	readMu  sync.Mutex

	state     atomic.Int32
	closeOnce sync.Once

	asm assembler

	localCode, remoteCode     uint16
	localReason, remoteReason string
}

func newConn(nc net.Conn, role Role, subprotocol string, readTimeout time.Duration, chunkSize int) *Conn {
	c := &Conn{
		nc:          nc,
		role:        role,
		br:          bufio.NewReader(nc),
		bw:          bufio.NewWriter(nc),
		subprotocol: subprotocol,
		readTimeout: readTimeout,
		chunkSize:   chunkSize,
	}
	c.state.Store(int32(StateOpen))
	return c
}

// Subprotocol returns the subprotocol negotiated during the handshake, or
// "" if none was.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// RemoteAddr returns the underlying transport's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *Conn) currentState() State { return State(c.state.Load()) }

// newMaskKey generates a fresh masking key for one outgoing frame. Only
// clients mask; servers never do (RFC 6455 §5.3).
func newMaskKey() (*[4]byte, error) {
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// writeFrameLocked writes one frame, masking it first if this Conn plays
// the client role. The caller must hold writeMu — this is the building
// block both writeRaw (one frame, lock taken here) and WriteMessage (many
// chunks of one message, lock held for the whole call so fragments from a
// concurrent writer can never land between them) are built from.
func (c *Conn) writeFrameLocked(opcode byte, fin bool, payload []byte) error {
	var key *[4]byte
	if c.role == RoleClient {
		var err error
		if key, err = newMaskKey(); err != nil {
			return &TransportError{Err: err}
		}
	}
	fh, err := newFrameHeader(fin, opcode, uint64(len(payload)), key)
	if err != nil {
		return err
	}
	if err := writeFrame(c.bw, fh, payload); err != nil {
		return &TransportError{Err: err}
	}
	return c.bw.Flush()
}

// writeRaw writes a single frame under the write lock, masking it first if
// this Conn plays the client role.
func (c *Conn) writeRaw(opcode byte, fin bool, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrameLocked(opcode, fin, payload)
}

// WriteMessage sends data as one logical message of the given kind
// (TextMessage or BinaryMessage). If chunkSize was configured and data
// exceeds it, the message is split across multiple fragments, matching the
// production fragmentation-on-write strategy of splitting large payloads
// into a bounded chunk size rather than always sending a single frame.
func (c *Conn) WriteMessage(kind int, data []byte) error {
	if c.currentState() != StateOpen {
		return c.closedError()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.chunkSize <= 0 || len(data) <= c.chunkSize {
		return c.writeFrameLocked(byte(kind), true, data)
	}
	first := true
	for len(data) > 0 {
		n := c.chunkSize
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]
		fin := len(data) == 0
		op := byte(opContinuation)
		if first {
			op = byte(kind)
			first = false
		}
		if err := c.writeFrameLocked(op, fin, chunk); err != nil {
			return err
		}
	}
	return nil
}

// WriteText sends s as a single TEXT message.
func (c *Conn) WriteText(s string) error { return c.WriteMessage(TextMessage, []byte(s)) }

// WriteBinary sends data as a single BINARY message.
func (c *Conn) WriteBinary(data []byte) error { return c.WriteMessage(BinaryMessage, data) }

// Ping sends a PING control frame carrying data (at most 125 bytes).
func (c *Conn) Ping(data []byte) error {
	if c.currentState() == StateClosed {
		return c.closedError()
	}
	return c.writeRaw(opPing, true, data)
}

// Pong sends a PONG control frame carrying data (at most 125 bytes).
func (c *Conn) Pong(data []byte) error {
	if c.currentState() == StateClosed {
		return c.closedError()
	}
	return c.writeRaw(opPong, true, data)
}

// Close sends a CLOSE frame with StatusNormalClosure. It does not wait for
// the peer's own CLOSE frame; see CloseWithCode.
func (c *Conn) Close() error {
	return c.CloseWithCode(StatusNormalClosure, "")
}

// CloseWithCode initiates the closing handshake with the given code and
// reason. It is idempotent: only the first close of the connection (local,
// peer-initiated or forced) sends anything, and later calls return nil.
func (c *Conn) CloseWithCode(code uint16, reason string) error {
	// CloseWithCode only sends the local half of the handshake and updates
	// state; it does not block waiting for the peer's CLOSE frame. That
	// half is the reader task's job (see ReadMessage's opClose case) —
	// matching the one-reader-task model, where the connection's teardown
	// is always driven by whichever goroutine is reading it. If no read
	// loop is running after a local Close, the transport is only torn
	// down once ReadTimeout next expires on a subsequent read attempt, or
	// never if none is ever made; callers that call Close without an
	// active reader should also close the net.Conn themselves.
	var sendErr error
	c.closeOnce.Do(func() {
		c.localCode, c.localReason = sendableCloseCode(code), reason
		payload := append(make([]byte, 0, 2+len(reason)), byte(c.localCode>>8), byte(c.localCode))
		payload = append(payload, reason...)
		sendErr = c.writeRaw(opClose, true, payload)
		for {
			cur := State(c.state.Load())
			if cur == StateClosed {
				c.finalizeClose()
				return
			}
			next := StateClosingSentLocal
			if cur == StateClosingReceivedRemote {
				next = StateClosed
			}
			if c.state.CompareAndSwap(int32(cur), int32(next)) {
				if next == StateClosed {
					c.finalizeClose()
				}
				return
			}
		}
	})
	return sendErr
}

func (c *Conn) finalizeClose() {
	c.nc.Close()
}

func (c *Conn) closedError() error {
	code := c.localCode
	reason := c.localReason
	if c.remoteCode != 0 {
		code, reason = c.remoteCode, c.remoteReason
	}
	if code == 0 {
		code = StatusAbnormalClosure
	}
	return &CloseError{Code: code, Reason: reason}
}

// ReadMessage blocks until a complete data message has been reassembled,
// handling and absorbing any control frames (PING, PONG, CLOSE) that
// arrive along the way without returning them to the caller. It returns
// *CloseError once the connection has moved to StateClosed.
func (c *Conn) ReadMessage() (kind int, data []byte, err error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.currentState() == StateClosed {
			return 0, nil, c.closedError()
		}
		if c.readTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		fh, err := parseFrameHeader(c.br)
		if err != nil {
			if pe, ok := err.(*ProtocolError); ok {
				c.protocolFail(pe)
				return 0, nil, pe
			}
			c.forceClose(StatusAbnormalClosure, "")
			return 0, nil, &TransportError{Err: err}
		}
		// RFC 6455 §5.1: frames from a client MUST be masked, frames from a
		// server MUST NOT be. A Server Conn expects masked frames; a Client
		// Conn expects unmasked ones — anything else is a protocol error.
		if fh.masked != (c.role == RoleServer) {
			maskErr := &ProtocolError{Reason: "frame mask bit does not match sender's expected role"}
			c.protocolFail(maskErr)
			return 0, nil, maskErr
		}
		payload, err := readPayload(c.br, fh)
		if err != nil {
			c.forceClose(StatusAbnormalClosure, "")
			return 0, nil, &TransportError{Err: err}
		}

		switch fh.opcode {
		case opPing:
			if err := c.writeRaw(opPong, true, payload); err != nil {
				return 0, nil, err
			}
			continue
		case opPong:
			continue
		case opClose:
			c.handleCloseFrame(payload)
			return 0, nil, c.closedError()
		case opText, opBinary:
			if err := c.asm.begin(kindFor(fh.opcode), payload); err != nil {
				c.protocolFail(err)
				return 0, nil, err
			}
			if fh.fin {
				msg, ferr := c.asm.finish()
				if ferr != nil {
					c.protocolFail(ferr)
					return 0, nil, ferr
				}
				return c.asm.kind, msg, nil
			}
		case opContinuation:
			if err := c.asm.append(payload); err != nil {
				c.protocolFail(err)
				return 0, nil, err
			}
			if fh.fin {
				k := c.asm.kind
				msg, ferr := c.asm.finish()
				if ferr != nil {
					c.protocolFail(ferr)
					return 0, nil, ferr
				}
				return k, msg, nil
			}
		}
	}
}

func kindFor(opcode byte) int {
	if opcode == opBinary {
		return BinaryMessage
	}
	return TextMessage
}

func (c *Conn) protocolFail(err error) {
	var reason string
	code := StatusProtocolError
	if pe, ok := err.(*ProtocolError); ok {
		reason = pe.Reason
		if pe.Code != 0 {
			code = pe.Code
		}
	}
	c.forceClose(code, reason)
}

// handleCloseFrame records the peer's close code/reason and completes the
// state transition, echoing a CLOSE frame back if the peer closed first.
func (c *Conn) handleCloseFrame(payload []byte) {
	code := StatusNoStatusReceived
	reason := ""
	if len(payload) >= 2 {
		code = uint16(payload[0])<<8 | uint16(payload[1])
		if !validReceivedCloseCode(code) {
			code = StatusProtocolError
		}
		reason = string(payload[2:])
	} else if len(payload) == 1 {
		code = StatusProtocolError
	}
	c.remoteCode, c.remoteReason = code, reason

	cur := State(c.state.Load())
	if cur == StateClosed {
		c.finalizeClose()
		return
	}
	if cur == StateClosingSentLocal {
		// We already sent our half; the peer's CLOSE completes it.
		c.state.Store(int32(StateClosed))
		c.finalizeClose()
		return
	}
	// Peer closed first (cur == StateOpen): echo their code back and
	// finish the handshake from this side too.
	c.state.Store(int32(StateClosingReceivedRemote))
	c.closeOnce.Do(func() {
		c.localCode = sendableCloseCode(code)
		echo := append(make([]byte, 0, 2), byte(c.localCode>>8), byte(c.localCode))
		c.writeRaw(opClose, true, echo)
		c.state.Store(int32(StateClosed))
		c.finalizeClose()
	})
}

// forceClose abandons the connection immediately, without waiting for a
// peer CLOSE frame — used when the wire stream itself is unusable. It also
// applies after a local Close, so a half-closed connection whose peer never
// answers is torn down and records code.
func (c *Conn) forceClose(code uint16, reason string) {
	c.closeOnce.Do(func() {})
	if State(c.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	c.localCode, c.localReason = code, reason
	c.finalizeClose()
}
