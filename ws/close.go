package ws

import "fmt"

// Close status codes, as assigned by RFC 6455 §7.4.1.
const (
	StatusNormalClosure       uint16 = 1000
	StatusGoingAway           uint16 = 1001
	StatusProtocolError       uint16 = 1002
	StatusUnsupportedData     uint16 = 1003
	StatusNoStatusReceived    uint16 = 1005 // MUST NOT be sent on the wire
	StatusAbnormalClosure     uint16 = 1006 // MUST NOT be sent on the wire
	StatusInvalidFramePayload uint16 = 1007
	StatusPolicyViolation     uint16 = 1008
	StatusMessageTooBig       uint16 = 1009
	StatusMandatoryExtension  uint16 = 1010
	StatusInternalError       uint16 = 1011
	StatusTLSHandshake        uint16 = 1015 // MUST NOT be sent on the wire
)

// CloseError reports the outcome of the close handshake, or why a call on
// a Conn failed because the connection was already closing or closed. It
// also serves as the result of WebSocketClosedError in the wire-level error
// taxonomy: Code holds the best-known close code for the connection (local
// or remote), and Reason holds its UTF-8 reason text.
type CloseError struct {
	Code   uint16
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("ws: closed with code %d", e.Code)
	}
	return fmt.Sprintf("ws: closed with code %d: %s", e.Code, e.Reason)
}

// sendableCloseCode returns the code that may legally appear in a CLOSE
// frame's payload. 1005, 1006 and 1015 are reserved for local use only —
// RFC 6455 §7.4 says they "is not used as a status code in the closing
// handshake" — so they are replaced with 1000 when about to be written.
func sendableCloseCode(code uint16) uint16 {
	switch code {
	case StatusNoStatusReceived, StatusAbnormalClosure, StatusTLSHandshake:
		return StatusNormalClosure
	case 0:
		return StatusNormalClosure
	default:
		return code
	}
}

// validReceivedCloseCode reports whether a code received from a peer in a
// CLOSE frame payload is one a conforming endpoint may send. Codes in the
// 3000-4999 range are reserved for frameworks/applications and accepted;
// codes below 1000, the explicitly reserved 1004/1005/1006, and all codes
// in 1012-2999 (1015 included) are not.
func validReceivedCloseCode(code uint16) bool {
	switch {
	case code < 1000:
		return false
	case code >= 1000 && code <= 1003:
		return true
	case code == 1004, code == 1005, code == 1006, code == 1015:
		return false
	case code >= 1007 && code <= 1011:
		return true
	case code >= 1012 && code <= 2999:
		return false
	case code >= 3000 && code <= 4999:
		return true
	default:
		return false
	}
}
