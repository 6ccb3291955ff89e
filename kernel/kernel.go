// Package kernel wraps the handful of Linux filesystem primitives the
// dedup engine needs: extent enumeration, dedup-range ioctls, a byte
// range copy, and fd-limit tuning. Everything here is Linux-only —
// reflink dedup has no portable equivalent — so the real bodies live
// in the *_linux.go files; this file declares the shared types and the
// plain OpenRW helper.
package kernel

import (
	"fmt"
	"os"
)

// BlockInfo describes one aligned block discovered within a file's
// extent map, as passed to the callback given to EnumerateFileBlocks.
type BlockInfo struct {
	PhysicalOffset uint64
	LogicalOffset  uint64
	DataSize       uint64
}

// ReadFunc lazily fetches the bytes for a BlockInfo. It returns ok=false
// if the read failed; callers should treat that block as unreadable
// rather than aborting the whole file.
type ReadFunc func() (data []byte, ok bool)

// DedupTarget is one destination of a dedup-range request. BytesDeduped
// is filled in by DedupRange; it is left at 0 for any destination the
// kernel did not report as identical.
type DedupTarget struct {
	DestFD         int
	DestOffset     uint64
	BytesDeduped   uint64
	dedupAttempted bool
}

// Deduped reports whether the kernel confirmed this destination range
// as byte-identical and reclaimed it.
func (t *DedupTarget) Deduped() bool { return t.dedupAttempted && t.BytesDeduped > 0 }

// Error wraps a failed syscall with the path or fd it was attempting to
// operate on, matching the "<op> failed on <what>: <errno>" shape the
// original tool logs.
type Error struct {
	Op   string
	What string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kernel: %s %s: %v", e.Op, e.What, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// OpenRW opens path read-write for use as a dedup source or destination.
func OpenRW(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &Error{Op: "open", What: path, Err: err}
	}
	return f, nil
}
