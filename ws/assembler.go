package ws

import "unicode/utf8"

// assembler reassembles a sequence of CONTINUATION frames into one
// complete message, validating UTF-8 for TEXT messages as bytes arrive
// rather than only once the message is complete — so a TEXT message can be
// failed as soon as an invalid byte sequence appears, without buffering an
// unbounded amount of already-known-bad data.
type assembler struct {
	inProgress bool
	kind       int // TextMessage or BinaryMessage
	buf        []byte
	utf8Carry  []byte // incomplete trailing UTF-8 sequence, held across fragments
}

// begin starts reassembly of a new message of the given kind from its
// first fragment. It is an error to call begin while a message is already
// in progress (a non-continuation data frame arriving mid-fragmentation).
func (a *assembler) begin(kind int, first []byte) error {
	if a.inProgress {
		return &ProtocolError{Reason: "data frame received while continuation expected"}
	}
	a.inProgress = true
	a.kind = kind
	a.buf = append(a.buf[:0], first...)
	a.utf8Carry = a.utf8Carry[:0]
	if kind == TextMessage {
		if err := a.checkUTF8(first); err != nil {
			a.reset()
			return err
		}
	}
	return nil
}

// append appends one continuation fragment to the in-progress message.
func (a *assembler) append(chunk []byte) error {
	if !a.inProgress {
		return &ProtocolError{Reason: "continuation frame received with no message in progress"}
	}
	a.buf = append(a.buf, chunk...)
	if a.kind == TextMessage {
		if err := a.checkUTF8(chunk); err != nil {
			a.reset()
			return err
		}
	}
	return nil
}

// finish completes reassembly, validates that no incomplete UTF-8 sequence
// remains for TEXT messages, and returns the message bytes.
func (a *assembler) finish() ([]byte, error) {
	if !a.inProgress {
		return nil, &ProtocolError{Reason: "FIN frame received with no message in progress"}
	}
	if a.kind == TextMessage && len(a.utf8Carry) > 0 {
		a.reset()
		return nil, &ProtocolError{Reason: "truncated UTF-8 sequence at end of message", Code: StatusInvalidFramePayload}
	}
	out := a.buf
	a.reset()
	return out, nil
}

func (a *assembler) reset() {
	a.inProgress = false
	a.buf = nil
	a.utf8Carry = nil
}

// checkUTF8 validates chunk against the carry held over from the previous
// chunk, carrying forward a new trailing incomplete sequence (if any)
// rather than rejecting it outright, since it may be completed by the next
// fragment.
func (a *assembler) checkUTF8(chunk []byte) error {
	data := chunk
	if len(a.utf8Carry) > 0 {
		data = append(append([]byte(nil), a.utf8Carry...), chunk...)
		a.utf8Carry = a.utf8Carry[:0]
	}
	n := len(data)
	i := 0
	for i < n {
		r, size := utf8.DecodeRune(data[i:])
		if r != utf8.RuneError || size > 1 {
			i += size
			continue
		}
		// size <= 1: either truly invalid, or a sequence truncated at the
		// end of this chunk that may be completed by the next one.
		rest := data[i:]
		if len(rest) <= 3 && looksTruncated(rest) {
			a.utf8Carry = append(a.utf8Carry[:0], rest...)
			return nil
		}
		return &ProtocolError{Reason: "invalid UTF-8 in text message", Code: StatusInvalidFramePayload}
	}
	return nil
}

// looksTruncated reports whether b is a prefix of a well-formed multi-byte
// UTF-8 sequence that simply hasn't arrived in full yet.
func looksTruncated(b []byte) bool {
	lead := b[0]
	var want int
	switch {
	case lead&0xE0 == 0xC0:
		want = 2
	case lead&0xF0 == 0xE0:
		want = 3
	case lead&0xF8 == 0xF0:
		want = 4
	default:
		return false
	}
	return len(b) < want
}
