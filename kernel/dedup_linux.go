//go:build linux
// +build linux

package kernel

import (
	"unsafe"
)

// pageSize is the buffer size the original tool sized its dedupe_range
// ioctl batches against; a struct file_dedupe_range plus its trailing
// file_dedupe_range_info array must fit inside it.
const pageSize = 4096

const maxDedupeBatch = (pageSize - sizeofDedupeRangeHeader) / sizeofDedupeRangeInfo

// DedupRange submits srcFD[srcOffset:srcOffset+length) against every
// target as a candidate for FIDEDUPERANGE, batching requests so each
// ioctl's info array fits in one page. Targets whose ranges the kernel
// confirms are byte-identical get BytesDeduped filled in; others are
// left at 0.
//
// The source and every destination are read once up front to warm the
// page cache — FIDEDUPERANGE has been observed to silently decline
// ranges that were never faulted in by a prior read.
func DedupRange(srcFD int, srcOffset, length uint64, targets []*DedupTarget) error {
	if len(targets) == 0 {
		return nil
	}
	warmPageCache(srcFD, srcOffset, length)
	for _, t := range targets {
		warmPageCache(t.DestFD, t.DestOffset, length)
	}

	buf := make([]byte, sizeofDedupeRangeHeader+sizeofDedupeRangeInfo*maxDedupeBatch)

	for i := 0; i < len(targets); i += maxDedupeBatch {
		batch := targets[i:min(i+maxDedupeBatch, len(targets))]

		for j := range buf {
			buf[j] = 0
		}
		hdr := (*dedupeRangeHeader)(unsafe.Pointer(&buf[0]))
		hdr.SrcOffset = srcOffset
		hdr.SrcLength = length
		hdr.DestCount = uint16(len(batch))

		for j, t := range batch {
			info := (*dedupeRangeInfo)(unsafe.Pointer(&buf[sizeofDedupeRangeHeader+sizeofDedupeRangeInfo*j]))
			info.DestFD = int64(t.DestFD)
			info.DestOffset = t.DestOffset
			t.dedupAttempted = true
			t.BytesDeduped = 0
		}

		if err := rawIoctl(srcFD, fiDedupeRange, unsafe.Pointer(&buf[0])); err != nil {
			return &Error{Op: "FIDEDUPERANGE", What: "range", Err: err}
		}

		for j, t := range batch {
			info := (*dedupeRangeInfo)(unsafe.Pointer(&buf[sizeofDedupeRangeHeader+sizeofDedupeRangeInfo*j]))
			if info.Status == fileDedupeRangeSame {
				t.BytesDeduped = info.BytesDeduped
			}
		}
	}
	return nil
}
