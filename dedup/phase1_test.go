package dedup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/zhangboyang/blockdedup/hashstorage"
)

func newTestEngine(t *testing.T, refLimit uint64) *Engine {
	t.Helper()
	cfg := Config{
		BlockSize:         4096,
		RefLimit:          refLimit,
		ChunkLimit:        1 << 20,
		ChunkFile:         filepath.Join(t.TempDir(), "chunk"),
		HashStoragePrefix: filepath.Join(t.TempDir(), "run"),
		SortMemMiB:        1,
		RelocateEnabled:   false,
		DedupEnabled:      true,
	}
	return New(cfg, nil, &bytes.Buffer{}, &bytes.Buffer{})
}

func emitRaw(t *testing.T, e *Engine, recs []hashstorage.Record) {
	t.Helper()
	e.storage.SetComparator(e.byHashThenLogicalID)
	e.storage.BeginEmit()
	for _, r := range recs {
		if err := e.storage.Emit(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.storage.FinishEmit(); err != nil {
		t.Fatal(err)
	}
}

func collectGroups(t *testing.T, e *Engine) map[uint64][]uint64 {
	t.Helper()
	groups := map[uint64][]uint64{}
	e.storage.SetComparator(e.byGroupThenLogicalID)
	err := e.storage.IterateSorted(false, func(r hashstorage.Record) error {
		groups[r.Key] = append(groups[r.Key], r.LogicalID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return groups
}

func TestGroupingSweepBasic(t *testing.T) {
	e := newTestEngine(t, 500)
	defer e.storage.Close()

	emitRaw(t, e, []hashstorage.Record{
		{Key: 100, LogicalID: 3},
		{Key: 100, LogicalID: 1},
		{Key: 200, LogicalID: 2},
	})

	if err := e.groupingSweep(); err != nil {
		t.Fatal(err)
	}

	groups := collectGroups(t, e)
	if len(groups[1]) != 2 {
		t.Fatalf("expected group led by logical id 1 to have 2 members, got %v", groups)
	}
	if len(groups[2]) != 1 {
		t.Fatalf("expected group led by logical id 2 to be a singleton, got %v", groups)
	}
	if e.sharedBlocks != 1 || e.uniqueBlocks != 1 {
		t.Fatalf("expected 1 shared + 1 unique group, got shared=%d unique=%d", e.sharedBlocks, e.uniqueBlocks)
	}
}

func TestGroupingSweepRefLimitSplit(t *testing.T) {
	e := newTestEngine(t, 2)
	defer e.storage.Close()

	// Five records sharing one hash, ref_limit=2: expect groups of
	// sizes 2, 2, 1 (a new group starts every time the cap is hit).
	recs := make([]hashstorage.Record, 5)
	for i := range recs {
		recs[i] = hashstorage.Record{Key: 42, LogicalID: uint64(i)}
	}
	emitRaw(t, e, recs)

	if err := e.groupingSweep(); err != nil {
		t.Fatal(err)
	}
	groups := collectGroups(t, e)

	sizes := map[int]int{}
	for _, members := range groups {
		sizes[len(members)]++
	}
	if sizes[2] != 2 || sizes[1] != 1 {
		t.Fatalf("expected two groups of 2 and one of 1, got sizes %v (groups=%v)", sizes, groups)
	}
}

// TestLogicalIDAllocationReservesCeilBlocksPerFile guards against a
// regression where a non-block-aligned file's last, partial block
// aliases the logical id of the following file's first block. Logical
// ids are handed out one per block, rounding a file's block count up
// (not down), so every file — aligned or not — gets its own
// non-overlapping span of ids.
func TestLogicalIDAllocationReservesCeilBlocksPerFile(t *testing.T) {
	dir := t.TempDir()
	blockSize := uint64(4096)

	firstPath := filepath.Join(dir, "first")
	firstSize := int(2*blockSize) + 10 // two full blocks plus an unaligned tail
	if err := os.WriteFile(firstPath, make([]byte, firstSize), 0o644); err != nil {
		t.Fatal(err)
	}

	secondPath := filepath.Join(dir, "second")
	secondSize := int(blockSize)
	secondContent := bytes.Repeat([]byte{0xAB}, secondSize)
	if err := os.WriteFile(secondPath, secondContent, 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{
		BlockSize:         blockSize,
		RefLimit:          500,
		ChunkLimit:        1 << 20,
		ChunkFile:         filepath.Join(t.TempDir(), "chunk"),
		HashStoragePrefix: filepath.Join(t.TempDir(), "run"),
		SortMemMiB:        1,
		RelocateEnabled:   false,
		DedupEnabled:      true,
	}, []string{firstPath, secondPath}, &bytes.Buffer{}, &bytes.Buffer{})
	defer e.storage.Close()

	if err := e.phase1HashAndGroup(); err != nil {
		t.Fatal(err)
	}

	first, second := e.files.files[0], e.files.files[1]
	if first.logicalBase != 0 {
		t.Fatalf("first file's logical base = %d, want 0", first.logicalBase)
	}
	// ceil((2*4096+10)/4096) == 3, not floor == 2.
	if second.logicalBase != 3 {
		t.Fatalf("second file's logical base = %d, want 3 (ceil of first file's block count)", second.logicalBase)
	}

	// The tail id of the first file must resolve back into the first
	// file, never into the second file's first block.
	tailID := first.logicalBase + 2
	owner, off := e.files.byLogicalID(tailID)
	if owner != first {
		t.Fatalf("logical id %d resolved to %q, want the first file", tailID, owner.name)
	}
	if off != 2*blockSize {
		t.Fatalf("logical id %d resolved to offset %d, want %d", tailID, off, 2*blockSize)
	}

	secondFirstID := second.logicalBase
	owner, off = e.files.byLogicalID(secondFirstID)
	if owner != second {
		t.Fatalf("logical id %d resolved to %q, want the second file", secondFirstID, owner.name)
	}
	if off != 0 {
		t.Fatalf("logical id %d resolved to offset %d, want 0", secondFirstID, off)
	}
}

func TestGroupingSweepUnalignedTailForcesNewGroup(t *testing.T) {
	e := newTestEngine(t, 500)
	defer e.storage.Close()
	// Only logical id 5 is a genuine unaligned tail; logical id 4 is
	// an ordinary (if unrealistic) record sharing the NONE sentinel
	// hash. The tail entry must still start its own group even though
	// the hash comparison alone would have merged it with id 4.
	e.unalignedTail[5] = 8

	emitRaw(t, e, []hashstorage.Record{
		{Key: noneHash, LogicalID: 4},
		{Key: noneHash, LogicalID: 5},
	})

	if err := e.groupingSweep(); err != nil {
		t.Fatal(err)
	}
	groups := collectGroups(t, e)
	if len(groups) != 2 {
		t.Fatalf("expected the unaligned-tail record to start its own group, got %v", groups)
	}
	if len(groups[5]) != 1 {
		t.Fatalf("expected logical id 5 to lead a singleton group, got %v", groups)
	}
}
