package intfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zhangboyang/blockdedup/varint"
)

// Reader reads the stream a Writer produced. Reading past the end sets
// the sticky EOF flag; callers must check Eof (or the error) to terminate.
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	eof bool
}

// NewReader opens path for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("intfile: open %q for read: %w", path, err)
	}
	return &Reader{f: f, br: bufio.NewReader(f)}, nil
}

// Eof reports whether the last read hit the end of the stream.
func (r *Reader) Eof() bool {
	return r.eof
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		r.eof = true
		return 0, io.EOF
	}
	return b, nil
}

// ReadU64Fixed reads 8 raw little-endian bytes.
func (r *Reader) ReadU64Fixed() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r.br, buf[:]); err != nil {
		r.eof = true
		return 0, io.EOF
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadVarint reads one varint.Write-encoded value.
func (r *Reader) ReadVarint() (uint64, error) {
	b0, err := r.br.ReadByte()
	if err != nil {
		r.eof = true
		return 0, io.EOF
	}
	width := varint.Width(b0)
	if width == 1 {
		return uint64(b0), nil
	}
	rest := make([]byte, width-1)
	if _, err := io.ReadFull(r.br, rest); err != nil {
		r.eof = true
		return 0, io.EOF
	}
	return varint.Decode(b0, rest), nil
}

// Rewind seeks the file back to its start and clears the EOF flag.
func (r *Reader) Rewind() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("intfile: rewind seek: %w", err)
	}
	r.br.Reset(r.f)
	r.eof = false
	return nil
}

// Tell returns the reader's current offset, accounting for buffered data.
func (r *Reader) Tell() (int64, error) {
	pos, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("intfile: tell: %w", err)
	}
	return pos - int64(r.br.Buffered()), nil
}

func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("intfile: close: %w", err)
	}
	return nil
}
