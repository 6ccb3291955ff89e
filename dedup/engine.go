package dedup

import (
	"fmt"
	"io"
	"os"
	"strings"

	atomicfile "github.com/natefinch/atomic"
	"github.com/zhangboyang/blockdedup/hashstorage"
)

// Engine runs the three dedup phases over a fixed set of input files.
// It owns every file descriptor it opens and is not safe for
// concurrent use — the whole pipeline is intentionally single-threaded,
// matching the scheduling model it was designed under.
type Engine struct {
	cfg Config
	out io.Writer
	err io.Writer

	files         *fileTable
	nextLogicalID uint64
	storage       *hashstorage.Storage
	unalignedTail map[uint64]uint64

	fds      *fdCache
	progress *progressGate

	physicalBlocks uint64
	ignoredBlocks  uint64
	hashedBlocks   uint64
	sharedBlocks   uint64
	uniqueBlocks   uint64

	redirectBytes uint64
	relocateBytes uint64
}

// New builds an Engine over the given input paths. out/err receive
// progress and warning lines respectively, mirroring the original
// tool's stdout/stderr split.
func New(cfg Config, names []string, out, err io.Writer) *Engine {
	e := &Engine{
		cfg:           cfg,
		out:           out,
		err:           err,
		files:         newFileTable(names, cfg.BlockSize),
		unalignedTail: make(map[uint64]uint64),
		fds:           newFDCache(cfg.RefLimit),
		progress:      newProgressGate(),
	}
	e.storage = hashstorage.New(cfg.HashStoragePrefix, cfg.SortMemMiB, e.byHashThenLogicalID)
	return e
}

func (e *Engine) byHashThenLogicalID(a, b hashstorage.Record) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.LogicalID < b.LogicalID
}

func (e *Engine) byGroupThenLogicalID(a, b hashstorage.Record) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.LogicalID < b.LogicalID
}

func (e *Engine) warnf(format string, args ...any) {
	fmt.Fprintf(e.err, "warning: "+format+"\n", args...)
}

func (e *Engine) logf(format string, args ...any) {
	fmt.Fprintf(e.out, format+"\n", args...)
}

// Run drives all enabled phases in order: hash & group, report the
// forecast, submit duplicates, optionally relocate singletons, and
// finally remove the scratch file.
func (e *Engine) Run() error {
	e.logf("step 1: hash and group blocks...")
	if err := e.phase1HashAndGroup(); err != nil {
		return fmt.Errorf("dedup: phase 1: %w", err)
	}
	e.logf("")

	e.printForecast()
	if e.cfg.PlanOutFile != "" {
		if err := e.writePlanFile(); err != nil {
			e.warnf("could not write plan file %s: %v", e.cfg.PlanOutFile, err)
		}
	}

	if !e.cfg.DedupEnabled {
		if err := e.storage.Close(); err != nil {
			e.warnf("could not remove run files: %v", err)
		}
		e.logf("--no-dedup given, stopping after forecast.")
		return nil
	}

	e.logf("step 2: submit duplicate ranges to the kernel...")
	if err := e.phase2SubmitDuplicates(); err != nil {
		return fmt.Errorf("dedup: phase 2: %w", err)
	}
	e.logf("")

	if e.cfg.RelocateEnabled {
		e.logf("step 3: relocate singleton blocks...")
		if err := e.phase3RelocateSingletons(); err != nil {
			return fmt.Errorf("dedup: phase 3: %w", err)
		}
		e.logf("")
	}

	e.fds.closeAll()
	if err := os.Remove(e.cfg.ChunkFile); err != nil && !os.IsNotExist(err) {
		e.warnf("could not remove scratch file %s: %v", e.cfg.ChunkFile, err)
	}
	if err := e.storage.Close(); err != nil {
		e.warnf("could not remove run files: %v", err)
	}

	e.logf("finished.")
	e.logf("redirected %.3f GiB of data.", float64(e.redirectBytes)/(1<<30))
	if e.cfg.RelocateEnabled {
		e.logf("relocated %.3f GiB of data.", float64(e.relocateBytes)/(1<<30))
	}
	return nil
}

func (e *Engine) printForecast() {
	e.logf("dedup forecast:")
	e.logf("  physical blocks: %d", e.physicalBlocks)
	e.logf("  ignored blocks:  %d", e.ignoredBlocks)
	e.logf("  hashed blocks:   %d", e.hashedBlocks)
	e.logf("  shared blocks:   %d", e.sharedBlocks)
	e.logf("  unique blocks:   %d", e.uniqueBlocks)
	before := e.physicalBlocks
	after := e.sharedBlocks + e.uniqueBlocks
	e.logf("  plan: %d physical blocks -> %d after grouping (delta %d)", before, after, int64(before)-int64(after))
	e.logf("")
}

// writePlanFile dumps the phase-1 forecast to cfg.PlanOutFile using an
// atomic rename so a crash mid-write never leaves a half-written plan
// a caller might already be parsing.
func (e *Engine) writePlanFile() error {
	var b strings.Builder
	fmt.Fprintf(&b, "physical_blocks=%d\n", e.physicalBlocks)
	fmt.Fprintf(&b, "ignored_blocks=%d\n", e.ignoredBlocks)
	fmt.Fprintf(&b, "hashed_blocks=%d\n", e.hashedBlocks)
	fmt.Fprintf(&b, "shared_blocks=%d\n", e.sharedBlocks)
	fmt.Fprintf(&b, "unique_blocks=%d\n", e.uniqueBlocks)
	return atomicfile.WriteFile(e.cfg.PlanOutFile, strings.NewReader(b.String()))
}
