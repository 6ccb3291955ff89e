package dedup

import (
	"errors"
	"time"

	"github.com/zhangboyang/blockdedup/hashstorage"
	"github.com/zhangboyang/blockdedup/kernel"
	"golang.org/x/sys/unix"
)

// relocateState tracks the contiguous run of singleton blocks
// currently being accumulated into the scratch file, so adjacent
// singletons in the same file can share one dedup-range call instead
// of one ioctl per block.
type relocateState struct {
	destFile    *fileItem
	destFD      int
	rangeOffset uint64
	rangeLength uint64
	chunkOffset uint64

	workaroundProbed bool
	workaroundNeeded bool
}

// phase3RelocateSingletons streams the (already group-sorted) records
// looking for groups of exactly one member, and rewrites contiguous
// runs of those singletons into the scratch file so the filesystem can
// free their original extents once dedup-range repoints the
// destination at the fresh copy.
func (e *Engine) phase3RelocateSingletons() error {
	scratch := newScratchChunk(e.cfg.ChunkFile, e.cfg.ChunkLimit)
	defer scratch.close()
	st := &relocateState{}

	// attemptDedup issues one dedup-range call over the accumulated
	// range at its current chunkOffset, reporting success/EOPNOTSUPP/
	// other-failure so flushRange can decide whether to retry.
	attemptDedup := func() (bytesDeduped uint64, eopnotsupp bool, err error) {
		targets := []*kernel.DedupTarget{{DestFD: st.destFD, DestOffset: st.rangeOffset}}
		if err := kernel.DedupRange(int(scratch.file.Fd()), st.chunkOffset, st.rangeLength, targets); err != nil {
			return 0, errors.Is(err, unix.EOPNOTSUPP), err
		}
		return targets[0].BytesDeduped, false, nil
	}

	flushRange := func() error {
		if st.rangeLength == 0 {
			return nil
		}
		bytesDeduped, eopnotsupp, err := attemptDedup()
		if err != nil && eopnotsupp && !st.workaroundProbed {
			// The kernel refuses to dedup a range starting at the very
			// beginning of the scratch file (seen on some small-file
			// layouts); leave one block of padding and retry once with
			// the whole range shifted past it.
			st.workaroundNeeded = true
			if shiftErr := e.shiftRelocateRangeForWorkaround(scratch, st); shiftErr != nil {
				e.warnf("relocate workaround setup failed: %v", shiftErr)
			} else {
				bytesDeduped, _, err = attemptDedup()
			}
		}
		st.workaroundProbed = true

		if err != nil {
			e.warnf("relocate dedup-range failed: %v", err)
		} else if bytesDeduped == st.rangeLength {
			e.relocateBytes += st.rangeLength
		} else {
			e.warnf("%s: relocate range at offset %d did not fully dedup", st.destFile.name, st.rangeOffset)
		}
		st.rangeLength = 0
		return nil
	}

	restart := func(f *fileItem, fd int, destOff uint64, unaligned bool) error {
		if err := flushRange(); err != nil {
			return err
		}
		if err := scratch.reopen(); err != nil {
			return err
		}
		st.destFile = f
		st.destFD = fd
		st.rangeOffset = destOff
		st.rangeLength = 0
		st.chunkOffset = 0
		if unaligned && st.workaroundProbed && st.workaroundNeeded {
			st.chunkOffset = e.cfg.BlockSize
		}
		return nil
	}

	var group []hashstorage.Record
	handleSingleton := func(rec hashstorage.Record) error {
		f, destOff := e.files.byLogicalID(rec.LogicalID)
		dataSize := e.cfg.BlockSize
		unaligned := false
		if sz, ok := e.unalignedTail[rec.LogicalID]; ok {
			dataSize = sz
			unaligned = true
		}

		fd, ok := e.fds.get(f)
		if !ok {
			e.warnf("%s: could not open for relocation, block skipped", f.name)
			return nil
		}

		needsRestart := st.destFile != f ||
			destOff != st.rangeOffset+st.rangeLength ||
			st.rangeLength >= e.cfg.ChunkLimit ||
			st.rangeLength%e.cfg.BlockSize != 0
		if needsRestart {
			if err := restart(f, int(fd.Fd()), destOff, unaligned); err != nil {
				return err
			}
		}

		if e.progress.shouldPrint(time.Now()) {
			e.logf("  relocating %s at offset %d...", f.name, destOff)
			e.progress.reset(time.Now())
		}

		if _, err := kernel.CopyRange(int(scratch.file.Fd()), int64(st.chunkOffset+st.rangeLength), int(fd.Fd()), int64(destOff), int(dataSize)); err != nil {
			e.warnf("relocate copy failed: %v", err)
			return nil
		}
		st.rangeLength += dataSize
		return nil
	}

	flushGroup := func() error {
		if len(group) == 1 {
			if err := handleSingleton(group[0]); err != nil {
				return err
			}
		}
		group = group[:0]
		return nil
	}

	err := e.storage.IterateSorted(true, func(rec hashstorage.Record) error {
		if len(group) > 0 && group[0].Key != rec.Key {
			if err := flushGroup(); err != nil {
				return err
			}
		}
		group = append(group, rec)
		return nil
	})
	if err != nil {
		return err
	}
	if err := flushGroup(); err != nil {
		return err
	}
	return flushRange()
}

// shiftRelocateRangeForWorkaround re-copies the accumulated range from
// the destination file into the scratch file starting one block in,
// instead of at the very start of the file. flushRange calls it when a
// dedup-range call against chunk offset zero comes back EOPNOTSUPP, and
// then retries the dedup once itself.
func (e *Engine) shiftRelocateRangeForWorkaround(scratch *scratchChunk, st *relocateState) error {
	st.chunkOffset = e.cfg.BlockSize
	_, err := kernel.CopyRange(int(scratch.file.Fd()), int64(st.chunkOffset), st.destFD, int64(st.rangeOffset), int(st.rangeLength))
	return err
}
