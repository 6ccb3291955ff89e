package dedup

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zhangboyang/blockdedup/blockset"
	"github.com/zhangboyang/blockdedup/hashstorage"
	"github.com/zhangboyang/blockdedup/kernel"
)

// phase1HashAndGroup hashes every readable block of every input file,
// then sweeps the sorted hash stream to assign group ids, respecting
// the per-group reference cap.
func (e *Engine) phase1HashAndGroup() error {
	e.storage.SetComparator(e.byHashThenLogicalID)
	e.storage.BeginEmit()

	var physicalSeen blockset.Set

	for _, f := range e.files.files {
		if e.progress.shouldPrint(time.Now()) {
			e.logf("  hashing %s...", f.name)
			e.progress.reset(time.Now())
		}

		gotSize := false
		err := kernel.EnumerateFileBlocks(f.name, e.cfg.BlockSize, e.warnFile(f.name), func(size uint64) {
			gotSize = true
			f.size = size
			f.logicalBase = e.nextLogicalID
			e.nextLogicalID += (size + e.cfg.BlockSize - 1) / e.cfg.BlockSize
		}, func(info kernel.BlockInfo, read kernel.ReadFunc) {
			physicalID := info.PhysicalOffset / e.cfg.BlockSize
			firstSeen := !physicalSeen.Get(physicalID)
			physicalSeen.Set(physicalID, true)
			if firstSeen {
				e.physicalBlocks++
			}

			logicalID := f.logicalBase + info.LogicalOffset/e.cfg.BlockSize

			data, ok := read()
			if !ok {
				e.ignoredBlocks++
				return
			}
			e.hashedBlocks++

			if info.DataSize == e.cfg.BlockSize {
				h := xxhash.Sum64(data)
				if err := e.storage.Emit(hashstorage.Record{Key: h, LogicalID: logicalID}); err != nil {
					panic(fmt.Sprintf("dedup: hash emit failed: %v", err))
				}
			} else {
				e.unalignedTail[logicalID] = info.DataSize
				if err := e.storage.Emit(hashstorage.Record{Key: noneHash, LogicalID: logicalID}); err != nil {
					panic(fmt.Sprintf("dedup: hash emit failed: %v", err))
				}
			}
		})
		if err != nil {
			e.warnf("%v", err)
		}
		if !gotSize {
			f.size = 0
			f.logicalBase = e.nextLogicalID
		}
	}

	if err := e.storage.FinishEmit(); err != nil {
		return err
	}

	return e.groupingSweep()
}

// warnFile adapts Engine's warning sink to the per-file warn callback
// EnumerateFileBlocks expects.
func (e *Engine) warnFile(name string) func(string) {
	return func(msg string) {
		e.warnf("%s: %s", name, msg)
	}
}

// groupingSweep assigns a group id to every record: consecutive records
// sharing a hash become one group, unless the group would exceed
// ref_limit or the record is an unaligned tail (which is always its
// own singleton group).
func (e *Engine) groupingSweep() error {
	groupID := noneID
	var groupHash uint64
	var groupRefCount uint64

	closeGroup := func() {
		if groupRefCount == 0 {
			return
		}
		if groupRefCount > 1 {
			e.sharedBlocks++
		} else {
			e.uniqueBlocks++
		}
	}

	err := e.storage.IterateSortedAndRewrite(true, func(rec *hashstorage.Record) error {
		_, isTail := e.unalignedTail[rec.LogicalID]
		startNew := groupID == noneID || groupRefCount >= e.cfg.RefLimit || rec.Key != groupHash || isTail
		if startNew {
			closeGroup()
			groupID = rec.LogicalID
			groupHash = rec.Key
			groupRefCount = 0
		}
		groupRefCount++
		rec.Key = groupID
		return nil
	})
	if err != nil {
		return err
	}
	closeGroup()
	return nil
}
