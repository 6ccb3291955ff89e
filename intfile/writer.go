// Package intfile provides a buffered append-only integer stream: a writer
// that accumulates bytes, fixed 64-bit words, and varints into a single
// on-disk file, and a matching reader. Both support rewinding, so the
// same file can be read back, rewritten in place, and read again without
// changing its length.
package intfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zhangboyang/blockdedup/varint"
)

// Writer appends bytes to a single file opened with create+truncate
// semantics. I/O failures are treated as fatal by callers; Writer itself
// just reports them.
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	pos int64
}

// NewWriter creates (or truncates) path for writing.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("intfile: open %q for write: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriter(f)}, nil
}

func (w *Writer) WriteByte(b byte) error {
	if err := w.bw.WriteByte(b); err != nil {
		return fmt.Errorf("intfile: write byte: %w", err)
	}
	w.pos++
	return nil
}

// WriteU64Fixed writes v as 8 raw little-endian bytes.
func (w *Writer) WriteU64Fixed(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	n, err := w.bw.Write(buf[:])
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("intfile: write u64: %w", err)
	}
	return nil
}

// WriteVarint writes v in the self-delimiting varint.Write encoding.
func (w *Writer) WriteVarint(v uint64) error {
	var buf [varint.MaxLen]byte
	enc := varint.Write(buf[:0], v)
	n, err := w.bw.Write(enc)
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("intfile: write varint: %w", err)
	}
	return nil
}

// Tell returns the number of bytes written so far (including buffered,
// not-yet-flushed bytes).
func (w *Writer) Tell() int64 {
	return w.pos
}

// Flush pushes buffered bytes to the underlying file.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("intfile: flush: %w", err)
	}
	return nil
}

// Rewind flushes then seeks the file back to its start, so subsequent
// writes overwrite from the beginning. Used by in-place rewrite passes
// that must preserve the file's original length.
func (w *Writer) Rewind() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("intfile: rewind seek: %w", err)
	}
	w.bw.Reset(w.f)
	w.pos = 0
	return nil
}

func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("intfile: close: %w", err)
	}
	return nil
}
