// Package dedup implements the three-phase block-level deduplication
// engine: hash every block and group identical ones (respecting a
// per-group reference cap), submit duplicate groups to the kernel's
// dedup-range ioctl through a scratch file, and optionally relocate
// leftover singleton blocks so the filesystem can actually reclaim
// the freed extents.
package dedup

// Config bundles the tunables a run is parameterized by. There is no
// config file — every field maps directly to a CLI flag.
type Config struct {
	BlockSize         uint64
	RefLimit          uint64
	ChunkLimit        uint64
	ChunkFile         string
	HashStoragePrefix string
	SortMemMiB        uint64
	RelocateEnabled   bool
	DedupEnabled      bool

	// PlanOutFile, if non-empty, receives an atomically-written dump
	// of the phase-1 forecast once hashing finishes. Empty disables it.
	PlanOutFile string
}

// noneHash is a sentinel that never compares equal to a genuine xxhash64
// digest's way of grouping; used to mark unaligned tail blocks so they
// never join an aligned block's group.
const noneHash = ^uint64(0)

// noneID marks "no group yet" / "no file" sentinels over the logical
// id space, which is otherwise densely packed from zero.
const noneID = ^uint64(0)
