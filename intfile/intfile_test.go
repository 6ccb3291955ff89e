package intfile

import (
	"io"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteByte(0x42); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteU64Fixed(0xdeadbeefcafe); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteVarint(300); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got, want := w.Tell(), int64(1+8+2); got != want {
		t.Fatalf("Tell() = %d, want %d", got, want)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	b, err := r.ReadByte()
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte() = %d, %v", b, err)
	}
	u, err := r.ReadU64Fixed()
	if err != nil || u != 0xdeadbeefcafe {
		t.Fatalf("ReadU64Fixed() = %x, %v", u, err)
	}
	vv, err := r.ReadVarint()
	if err != nil || vv != 300 {
		t.Fatalf("ReadVarint() = %d, %v", vv, err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if !r.Eof() {
		t.Fatal("expected Eof() to be set after reading past end")
	}
}

func TestRewriteInPlacePreservesLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	values := []uint64{1, 200, 40000, 5000000}
	for _, v := range values {
		if err := w.WriteVarint(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	originalLen := w.Tell()

	if err := w.Rewind(); err != nil {
		t.Fatal(err)
	}
	for _, v := range values {
		if err := w.WriteVarint(v + 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if w.Tell() != originalLen {
		t.Fatalf("length changed after in-place rewrite: got %d, want %d", w.Tell(), originalLen)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, v := range values {
		got, err := r.ReadVarint()
		if err != nil {
			t.Fatal(err)
		}
		if got != v+1 {
			t.Fatalf("got %d, want %d", got, v+1)
		}
	}
}
