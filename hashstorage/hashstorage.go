// Package hashstorage is an external-memory sorter over fixed-shape
// two-field records. Records are buffered in RAM up to a configured
// budget, flushed as individually-sorted on-disk runs, and later
// streamed back in global sorted order through a k-way merge. The same
// record width lets callers rewrite a record's Key field in place
// while iterating, without perturbing run lengths.
//
// Grounded on the rotating-segment idiom in segmentmanager (numbered
// run files, one writer per run) and on sst.diskSSTWriter's
// accumulate-then-flush data block pattern for the in-RAM buffer.
package hashstorage

import (
	"fmt"
	"os"
	"sort"

	"github.com/zhangboyang/blockdedup/intfile"
)

// Record is the fixed-shape unit the sorter operates on. Key is
// overloaded: it holds the hash value during the first sort phase and
// the group id during the second; LogicalID is the record's identity
// in both.
type Record struct {
	Key       uint64
	LogicalID uint64
}

// recordSize is the nominal in-RAM size of a Record, used only to turn
// a MiB budget into a buffer capacity (mirrors the original's
// sizeof(HashRecord) sizing of file_cap).
const recordSize = 16

// Comparator defines a total order over records. Ties must be broken
// by LogicalID (unique) to make the order deterministic.
type Comparator func(a, b Record) bool

// Storage is an external sorter over a prefix of on-disk run files.
type Storage struct {
	prefix     string
	comparator Comparator

	bufferCapacity int
	buffer         []Record

	runs     []*run
	emitted  uint64
	emitting bool
}

type run struct {
	path   string
	writer *intfile.Writer
	reader *intfile.Reader
	length int64 // byte length recorded at FinishEmit / after a re-sort pass
}

// New creates a Storage that writes run files named "<prefix>.NNNN".
// sortMemMiB bounds emit buffer before it must spill.
func New(prefix string, sortMemMiB uint64, cmp Comparator) *Storage {
	cap := int(sortMemMiB * 1024 * 1024 / recordSize)
	if cap < 1 {
		cap = 1
	}
	return &Storage{
		prefix:         prefix,
		comparator:     cmp,
		bufferCapacity: cap,
	}
}

// SetComparator swaps the ordering used by subsequent sorts. Callers
// must re-sort (iterate with fileAlreadySorted=false) after swapping.
func (s *Storage) SetComparator(cmp Comparator) {
	s.comparator = cmp
}

func (s *Storage) runPath(id int) string {
	return fmt.Sprintf("%s.%04d", s.prefix, id)
}

// BeginEmit prepares the in-RAM buffer for a fresh emit pass.
func (s *Storage) BeginEmit() {
	s.buffer = make([]Record, 0, s.bufferCapacity)
	s.emitting = true
}

// Emit appends rec to the buffer, spilling a sorted run when full.
func (s *Storage) Emit(rec Record) error {
	if !s.emitting {
		s.BeginEmit()
	}
	s.buffer = append(s.buffer, rec)
	s.emitted++
	if len(s.buffer) >= s.bufferCapacity {
		return s.flushBuffer()
	}
	return nil
}

func (s *Storage) flushBuffer() error {
	if len(s.buffer) == 0 {
		return nil
	}
	id := len(s.runs)
	path := s.runPath(id)

	w, err := intfile.NewWriter(path)
	if err != nil {
		return fmt.Errorf("hashstorage: create run %d: %w", id, err)
	}
	r, err := intfile.NewReader(path)
	if err != nil {
		w.Close()
		return fmt.Errorf("hashstorage: open run %d for read: %w", id, err)
	}

	sort.SliceStable(s.buffer, func(i, j int) bool {
		return s.comparator(s.buffer[i], s.buffer[j])
	})
	for _, rec := range s.buffer {
		if err := writeRecord(w, rec); err != nil {
			return fmt.Errorf("hashstorage: write run %d: %w", id, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s.runs = append(s.runs, &run{path: path, writer: w, reader: r, length: w.Tell()})
	s.buffer = s.buffer[:0]
	return nil
}

// FinishEmit flushes any pending buffer and records each run's length.
func (s *Storage) FinishEmit() error {
	if err := s.flushBuffer(); err != nil {
		return err
	}
	s.emitting = false
	for _, rn := range s.runs {
		rn.length = rn.writer.Tell()
	}
	return nil
}

func writeRecord(w *intfile.Writer, rec Record) error {
	if err := w.WriteU64Fixed(rec.Key); err != nil {
		return err
	}
	return w.WriteVarint(rec.LogicalID)
}

func readRecord(r *intfile.Reader) (Record, bool, error) {
	key, err := r.ReadU64Fixed()
	if err != nil {
		return Record{}, false, nil
	}
	logicalID, err := r.ReadVarint()
	if err != nil {
		return Record{}, false, fmt.Errorf("hashstorage: truncated record (key without logical id): %w", err)
	}
	return Record{Key: key, LogicalID: logicalID}, true, nil
}

// resortRunsOnDisk re-sorts each run under the current comparator by
// reading it fully, sorting in RAM, and rewriting it in place.
func (s *Storage) resortRunsOnDisk() error {
	for _, rn := range s.runs {
		if err := rn.reader.Rewind(); err != nil {
			return err
		}
		records := make([]Record, 0, rn.length/recordSize+1)
		for {
			rec, ok, err := readRecord(rn.reader)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			records = append(records, rec)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return s.comparator(records[i], records[j])
		})
		if err := rn.writer.Rewind(); err != nil {
			return err
		}
		for _, rec := range records {
			if err := writeRecord(rn.writer, rec); err != nil {
				return err
			}
		}
		if err := rn.writer.Flush(); err != nil {
			return err
		}
		if rn.writer.Tell() != rn.length {
			panic(fmt.Sprintf("hashstorage: run %s changed length during re-sort: %d -> %d", rn.path, rn.length, rn.writer.Tell()))
		}
	}
	return nil
}

// IterateSorted performs (optionally) a per-run re-sort, then a k-way
// merge across all runs under the current comparator, invoking cb for
// every record in global sorted order.
func (s *Storage) IterateSorted(fileAlreadySorted bool, cb func(Record) error) error {
	if !fileAlreadySorted {
		if err := s.resortRunsOnDisk(); err != nil {
			return err
		}
	}
	for _, rn := range s.runs {
		if err := rn.reader.Rewind(); err != nil {
			return err
		}
	}
	var merged uint64
	err := mergeRuns(s.runs, s.comparator, func(rec Record, _ int) error {
		merged++
		return cb(rec)
	})
	if err != nil {
		return err
	}
	if merged != s.emitted {
		panic(fmt.Sprintf("hashstorage: merge produced %d records, expected %d", merged, s.emitted))
	}
	return nil
}

// IterateSortedAndRewrite merges like IterateSorted, but cb may mutate
// rec.Key (never LogicalID). The mutated record is written back to the
// exact run slot it came from, preserving that run's byte length.
func (s *Storage) IterateSortedAndRewrite(fileAlreadySorted bool, cb func(*Record) error) error {
	if !fileAlreadySorted {
		if err := s.resortRunsOnDisk(); err != nil {
			return err
		}
	}
	for _, rn := range s.runs {
		if err := rn.reader.Rewind(); err != nil {
			return err
		}
		if err := rn.writer.Rewind(); err != nil {
			return err
		}
	}
	var merged uint64
	err := mergeRuns(s.runs, s.comparator, func(rec Record, runIdx int) error {
		merged++
		if err := cb(&rec); err != nil {
			return err
		}
		return writeRecord(s.runs[runIdx].writer, rec)
	})
	if err != nil {
		return err
	}
	for _, rn := range s.runs {
		if err := rn.writer.Flush(); err != nil {
			return err
		}
		if rn.writer.Tell() != rn.length {
			panic(fmt.Sprintf("hashstorage: run %s changed length during rewrite: %d -> %d", rn.path, rn.length, rn.writer.Tell()))
		}
	}
	if merged != s.emitted {
		panic(fmt.Sprintf("hashstorage: merge produced %d records, expected %d", merged, s.emitted))
	}
	return nil
}

// Close deletes the run files. Safe to call once processing is done.
func (s *Storage) Close() error {
	var firstErr error
	for _, rn := range s.runs {
		rn.writer.Close()
		rn.reader.Close()
		if err := os.Remove(rn.path); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("hashstorage: remove run %s: %w", rn.path, err)
		}
	}
	return firstErr
}
