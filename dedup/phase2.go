package dedup

import (
	"os"
	"time"

	"github.com/zhangboyang/blockdedup/hashstorage"
	"github.com/zhangboyang/blockdedup/kernel"
)

// scratchChunk is the rolling scratch file phase 2 and phase 3 copy
// canonical block content into before asking the kernel to dedup
// destinations against it.
type scratchChunk struct {
	path   string
	limit  uint64
	file   *os.File
	offset uint64
}

func newScratchChunk(path string, limit uint64) *scratchChunk {
	return &scratchChunk{path: path, limit: limit}
}

// allocBlock advances the cursor by one block, truncating and
// reopening the scratch file whenever it is absent or has hit its
// ceiling.
func (c *scratchChunk) allocBlock(blockSize uint64) error {
	if c.file == nil || c.offset+blockSize >= c.limit {
		if err := c.reopen(); err != nil {
			return err
		}
	} else {
		c.offset += blockSize
	}
	return nil
}

func (c *scratchChunk) reopen() error {
	if c.file != nil {
		c.file.Close()
	}
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &kernel.Error{Op: "create scratch file", What: c.path, Err: err}
	}
	c.file = f
	c.offset = 0
	return nil
}

func (c *scratchChunk) close() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
}

// phase2SubmitDuplicates streams grouped records in (group_id,
// logical_id) order, and for every group with at least two members
// copies the leader's content into the scratch file and asks the
// kernel to dedup every member's destination range against it.
func (e *Engine) phase2SubmitDuplicates() error {
	e.storage.SetComparator(e.byGroupThenLogicalID)

	scratch := newScratchChunk(e.cfg.ChunkFile, e.cfg.ChunkLimit)
	defer scratch.close()

	var group []hashstorage.Record
	flush := func() error {
		if len(group) < 2 {
			group = group[:0]
			return nil
		}
		if e.progress.shouldPrint(time.Now()) {
			e.logf("  submitting group leader at logical id %d...", group[0].Key)
			e.progress.reset(time.Now())
		}
		err := e.submitGroup(scratch, group)
		group = group[:0]
		return err
	}

	err := e.storage.IterateSorted(false, func(rec hashstorage.Record) error {
		if len(group) > 0 && group[0].Key != rec.Key {
			if err := flush(); err != nil {
				return err
			}
		}
		group = append(group, rec)
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (e *Engine) submitGroup(scratch *scratchChunk, group []hashstorage.Record) error {
	if err := scratch.allocBlock(e.cfg.BlockSize); err != nil {
		return err
	}

	type member struct {
		f   *fileItem
		off uint64
	}
	members := make([]member, len(group))
	for i, rec := range group {
		f, off := e.files.byLogicalID(rec.LogicalID)
		members[i] = member{f: f, off: off}
	}

	var srcFD *os.File
	var srcOK bool
	srcIdx := -1
	for i, m := range members {
		if fd, ok := e.fds.get(m.f); ok {
			srcFD = fd
			srcOK = true
			srcIdx = i
			break
		}
	}
	if !srcOK {
		e.warnf("no usable source file descriptor for group leading at logical id %d, group skipped", group[0].Key)
		return nil
	}

	if _, err := kernel.CopyRange(int(scratch.file.Fd()), int64(scratch.offset), int(srcFD.Fd()), int64(members[srcIdx].off), int(e.cfg.BlockSize)); err != nil {
		e.warnf("copying group leader into scratch failed: %v", err)
		return nil
	}

	targets := make([]*kernel.DedupTarget, 0, len(group))
	for _, m := range members {
		fd, ok := e.fds.get(m.f)
		if !ok {
			e.warnf("%s: could not open for dedup target, member skipped", m.f.name)
			continue
		}
		targets = append(targets, &kernel.DedupTarget{DestFD: int(fd.Fd()), DestOffset: m.off})
	}

	if err := kernel.DedupRange(int(scratch.file.Fd()), scratch.offset, e.cfg.BlockSize, targets); err != nil {
		e.warnf("FIDEDUPERANGE failed: %v", err)
		return nil
	}
	for _, t := range targets {
		if t.BytesDeduped == e.cfg.BlockSize {
			e.redirectBytes += t.BytesDeduped
		} else {
			e.warnf("unable to dedup destination fd %d offset %d", t.DestFD, t.DestOffset)
		}
	}
	return nil
}
