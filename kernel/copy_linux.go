//go:build linux
// +build linux

package kernel

import "golang.org/x/sys/unix"

// warmPageCache faults in a range (at most its first 1 MiB) by reading
// it through pread, ignoring
// any error — it is a best-effort nudge, not a correctness requirement.
func warmPageCache(fd int, offset, length uint64) {
	if length == 0 {
		return
	}
	n := length
	const warmChunk = 1 << 20
	if n > warmChunk {
		n = warmChunk
	}
	buf := make([]byte, n)
	unix.Pread(fd, buf, int64(offset))
}

// CopyRange copies length bytes from srcFD at srcOffset to dstFD at
// dstOffset using copy_file_range, falling back to nothing fancier —
// callers that need reflink-style sharing should dedup instead.
func CopyRange(dstFD int, dstOffset int64, srcFD int, srcOffset int64, length int) (int, error) {
	so := srcOffset
	do := dstOffset
	n, err := unix.CopyFileRange(srcFD, &so, dstFD, &do, length, 0)
	if err != nil {
		return n, &Error{Op: "copy_file_range", What: "range", Err: err}
	}
	return n, nil
}
