package storage

import "container/heap"

// uint32Heap is a min-heap of block numbers, so allocation hands out
// the smallest previously-freed block first.
type uint32Heap []uint32

func (h uint32Heap) Len() int            { return len(h) }
func (h uint32Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h uint32Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uint32Heap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *uint32Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// freeList tracks reusable blocks. closed holds blocks that have been
// handed back out via allocate and are therefore no longer free, even
// if a stale entry for them still lingers in open — allocate re-rolls
// past anything in closed rather than trusting open alone.
type freeList struct {
	open   uint32Heap
	closed map[uint32]bool
}

func newFreeList() *freeList {
	return &freeList{closed: make(map[uint32]bool)}
}

func (f *freeList) push(block uint32) {
	if block == rootBlock {
		return
	}
	delete(f.closed, block)
	heap.Push(&f.open, block)
}

// pop returns the smallest free block not already marked closed, or
// (0, false) if none remain.
func (f *freeList) pop() (uint32, bool) {
	for f.open.Len() > 0 {
		b := heap.Pop(&f.open).(uint32)
		if f.closed[b] {
			continue
		}
		f.closed[b] = true
		return b, true
	}
	return 0, false
}

// reclaim marks block as reused without it ever having gone through
// pop — used when WriteData is handed a starting block that the
// caller already knows was previously freed.
func (f *freeList) reclaim(block uint32) {
	f.closed[block] = true
	for i, b := range f.open {
		if b == block {
			heap.Remove(&f.open, i)
			break
		}
	}
}
