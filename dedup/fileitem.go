package dedup

import "sort"

// fileItem tracks one input file's place in the logical id space. Its
// logicalBase is assigned during phase 1 in file insertion order, so
// bases are non-decreasing across the slice and can be binary-searched.
type fileItem struct {
	name        string
	size        uint64
	logicalBase uint64
}

// fileTable resolves a logical id back to the file (and byte offset
// within it) it belongs to, mirroring the original's upper_bound probe
// over a vector sorted by logical_id_base.
type fileTable struct {
	files     []*fileItem
	blockSize uint64
}

func newFileTable(names []string, blockSize uint64) *fileTable {
	files := make([]*fileItem, len(names))
	for i, n := range names {
		files[i] = &fileItem{name: n}
	}
	return &fileTable{files: files, blockSize: blockSize}
}

// byLogicalID returns the file owning logicalID and the byte offset
// within it.
func (t *fileTable) byLogicalID(logicalID uint64) (*fileItem, uint64) {
	i := sort.Search(len(t.files), func(i int) bool {
		return t.files[i].logicalBase > logicalID
	})
	f := t.files[i-1]
	off := (logicalID - f.logicalBase) * t.blockSize
	return f, off
}
