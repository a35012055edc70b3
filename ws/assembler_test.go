package ws

import "testing"

func TestAssemblerSingleFragment(t *testing.T) {
	var a assembler
	if err := a.begin(TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	msg, err := a.finish()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "hello" {
		t.Fatalf("got %q", msg)
	}
}

func TestAssemblerMultiFragment(t *testing.T) {
	var a assembler
	if err := a.begin(BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := a.append([]byte{3, 4}); err != nil {
		t.Fatal(err)
	}
	msg, err := a.finish()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4}
	if len(msg) != len(want) {
		t.Fatalf("got %v, want %v", msg, want)
	}
	for i := range want {
		if msg[i] != want[i] {
			t.Fatalf("got %v, want %v", msg, want)
		}
	}
}

func TestAssemblerRejectsDataWhileInProgress(t *testing.T) {
	var a assembler
	if err := a.begin(TextMessage, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := a.begin(TextMessage, []byte("b")); err == nil {
		t.Fatal("expected error for nested begin")
	}
}

func TestAssemblerInvalidUTF8(t *testing.T) {
	var a assembler
	if err := a.begin(TextMessage, []byte{0xff, 0xfe}); err == nil {
		t.Fatal("expected invalid UTF-8 error")
	}
}

func TestAssemblerUTF8SplitAcrossFragments(t *testing.T) {
	// "é" is 0xC3 0xA9 in UTF-8; split the two bytes across fragments.
	var a assembler
	if err := a.begin(TextMessage, []byte{0xC3}); err != nil {
		t.Fatal(err)
	}
	if err := a.append([]byte{0xA9}); err != nil {
		t.Fatal(err)
	}
	msg, err := a.finish()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "é" {
		t.Fatalf("got %q", msg)
	}
}

func TestAssemblerTruncatedUTF8AtEnd(t *testing.T) {
	var a assembler
	if err := a.begin(TextMessage, []byte{0xC3}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.finish(); err == nil {
		t.Fatal("expected error for truncated UTF-8 at message end")
	}
}
