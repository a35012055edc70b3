package ws

import (
	"bytes"
	"testing"
)

func TestControlEmpty(t *testing.T) {
	if _, err := newFrameHeader(true, opPing, 0, nil); err != nil {
		t.Fatal(err)
	}
}

func TestControlNormal(t *testing.T) {
	if _, err := newFrameHeader(true, opPing, 125, nil); err != nil {
		t.Fatal(err)
	}
}

func TestControlTooBig(t *testing.T) {
	if _, err := newFrameHeader(true, opPing, 126, nil); err == nil {
		t.Fatal("expected error for oversized control frame")
	}
}

func TestControlMustNotFragment(t *testing.T) {
	if _, err := newFrameHeader(false, opClose, 10, nil); err == nil {
		t.Fatal("expected error for fragmented control frame")
	}
}

func TestUnknownOpcodeRejected(t *testing.T) {
	if _, err := newFrameHeader(true, 0x3, 0, nil); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestParseTextFrame(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f})
	fh, err := parseFrameHeader(buf)
	if err != nil {
		t.Fatalf("parseFrameHeader: %v", err)
	}
	if !fh.fin || fh.opcode != opText || fh.masked || fh.payloadLen != 5 {
		t.Fatalf("unexpected header: %+v", fh)
	}
	payload, err := readPayload(buf, fh)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if string(payload) != "Hello" {
		t.Fatalf("got %q, want %q", payload, "Hello")
	}
}

// TestParseMaskedTextFrame uses the exact masked "Hello" example from
// RFC 6455 §5.7.
func TestParseMaskedTextFrame(t *testing.T) {
	buf := bytes.NewBuffer([]byte{
		0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58,
	})
	fh, err := parseFrameHeader(buf)
	if err != nil {
		t.Fatalf("parseFrameHeader: %v", err)
	}
	wantKey := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	if !fh.fin || fh.opcode != opText || !fh.masked || fh.maskKey != wantKey || fh.payloadLen != 5 {
		t.Fatalf("unexpected header: %+v", fh)
	}
	payload, err := readPayload(buf, fh)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if string(payload) != "Hello" {
		t.Fatalf("got %q, want %q", payload, "Hello")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		length int
	}{
		{"empty", 0},
		{"boundary125", 125},
		{"boundary126", 126},
		{"boundary65535", 65535},
		{"boundary65536", 65536},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := make([]byte, tc.length)
			for i := range payload {
				payload[i] = byte(i)
			}
			fh, err := newFrameHeader(true, opBinary, uint64(len(payload)), nil)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := writeFrame(&buf, fh, payload); err != nil {
				t.Fatal(err)
			}
			got, err := parseFrameHeader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if got.payloadLen != uint64(len(payload)) || got.opcode != opBinary || !got.fin {
				t.Fatalf("round-trip header mismatch: %+v", got)
			}
			data, err := readPayload(&buf, got)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data, payload) {
				t.Fatalf("round-trip payload mismatch (len %d)", tc.length)
			}
		})
	}
}

func TestMaskedRoundTrip(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	fh, err := newFrameHeader(true, opText, 11, &key)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, fh, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	got, err := parseFrameHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.masked || got.maskKey != key {
		t.Fatalf("mask key not preserved: %+v", got)
	}
	data, err := readPayload(&buf, got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}

func TestMalformedNonMinimalExtendedLength(t *testing.T) {
	// opcode text, masked=0, len7=126, then extended length 100 (< 126: non-minimal)
	buf := bytes.NewBuffer([]byte{0x81, 126, 0x00, 100})
	if _, err := parseFrameHeader(buf); err == nil {
		t.Fatal("expected error for non-minimal extended length")
	}
}

func TestMalformedReservedBit(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x81 | rsv1Bit, 0x00})
	if _, err := parseFrameHeader(buf); err == nil {
		t.Fatal("expected error for reserved bit without extension")
	}
}
