package hashstorage

import "container/heap"

// mergeRuns performs a k-way merge across runs (each individually sorted
// under cmp), invoking visit with each record in global order along with
// the index of the run it came from.
func mergeRuns(runs []*run, cmp Comparator, visit func(rec Record, runIdx int) error) error {
	h := &mergeHeap{cmp: cmp}
	for i, rn := range runs {
		rec, ok, err := readRecord(rn.reader)
		if err != nil {
			return err
		}
		if ok {
			h.items = append(h.items, mergeItem{rec: rec, runIdx: i})
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		top := h.items[0]
		if err := visit(top.rec, top.runIdx); err != nil {
			return err
		}
		rec, ok, err := readRecord(runs[top.runIdx].reader)
		if err != nil {
			return err
		}
		if ok {
			h.items[0] = mergeItem{rec: rec, runIdx: top.runIdx}
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return nil
}

type mergeItem struct {
	rec    Record
	runIdx int
}

type mergeHeap struct {
	items []mergeItem
	cmp   Comparator
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	return h.cmp(h.items[i].rec, h.items[j].rec)
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
