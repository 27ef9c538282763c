package sstable

// merger.go implements the k-way merge over table readers: a min-heap of
// per-source cursors yields distinct keys in ascending order, accumulating
// every value stored under the same key across sources and reconciling
// multi-value keys through a caller-supplied merge function.
//
// Cursors carry their source index as a deterministic heap tiebreaker, so
// values for a duplicated key always arrive at the merge function in the
// order their readers were supplied. Advancing the top cursor re-sifts it
// with heap.Fix instead of a pop/push round trip.

import (
	"container/heap"

	"github.com/tidesdb/sstable/internal/logging"
)

// MergeFunc reconciles the values stored under one key across multiple
// sources. It is invoked only when values holds at least two elements;
// single-source keys bypass it entirely. The returned slice becomes the
// merged value. key and values must not be retained past the call.
type MergeFunc func(key []byte, values [][]byte) ([]byte, error)

// mergeCursor is one source's position in the merge. It owns copies of the
// current key and value, since the underlying table iterator's slices are
// invalidated by its own Next.
type mergeCursor struct {
	it    *Iterator
	src   int
	key   []byte
	value []byte
}

// fill advances the cursor to its source's next entry, reporting whether
// one exists.
func (c *mergeCursor) fill() (bool, error) {
	if !c.it.Next() {
		return false, c.it.Err()
	}
	c.key = append(c.key[:0], c.it.Key()...)
	c.value = append(c.value[:0], c.it.Value()...)
	return true, nil
}

// cursorHeap orders cursors by current key, breaking ties by source index
// so that equal keys drain in the order their readers were supplied.
type cursorHeap []*mergeCursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if c := BytewiseCompare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	return h[i].src < h[j].src
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*mergeCursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Merger combines multiple readers into one logical ordered sequence of
// distinct keys, reconciling duplicate keys through a MergeFunc. A Merger
// is single-owner; it and the iterators it produces are not safe for
// concurrent use.
type Merger struct {
	sources []*Reader
	merge   MergeFunc
	opts    MergerOptions
}

// NewMerger returns a Merger over sources. merge may be nil only if the
// sources are known to have pairwise-disjoint key sets; encountering a
// duplicate key with a nil merge function fails the iteration.
func NewMerger(sources []*Reader, merge MergeFunc, opts MergerOptions) *Merger {
	return &Merger{sources: sources, merge: merge, opts: opts.normalized()}
}

// initHeap builds the cursor heap, preloading each source's first entry
// and dropping empty sources.
func (m *Merger) initHeap() (*cursorHeap, error) {
	h := make(cursorHeap, 0, len(m.sources))
	for i, src := range m.sources {
		cur := &mergeCursor{it: src.Iter(), src: i}
		ok, err := cur.fill()
		if err != nil {
			return nil, err
		}
		if ok {
			h = append(h, cur)
		}
	}
	heap.Init(&h)
	m.opts.Logger.Debugf("%smerging %d sources (%d non-empty)", logging.NSMerger, len(m.sources), h.Len())
	return &h, nil
}

// Iter returns an iterator yielding each distinct key once, in ascending
// order, with its merged value.
func (m *Merger) Iter() (*MergeIterator, error) {
	h, err := m.initHeap()
	if err != nil {
		return nil, err
	}
	return &MergeIterator{heap: h, merge: m.merge}, nil
}

// MultiIter returns an iterator yielding each distinct key together with
// the full list of values stored under it across all sources, in source
// order, without invoking any merge function.
func (m *Merger) MultiIter() (*MultiIterator, error) {
	h, err := m.initHeap()
	if err != nil {
		return nil, err
	}
	return &MultiIterator{heap: h}, nil
}

// WriteInto drains the merge into w, inserting each distinct key with its
// merged value. w is not finished; the caller decides when to call
// w.Finish (e.g. after draining several mergers into one table).
func (m *Merger) WriteInto(w *Writer) error {
	it, err := m.Iter()
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := w.Insert(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// gatherKey drains the heap's top cursors while they share the smallest
// key, appending their values (in heap tiebreak order) to vals. Returns
// the shared key, the collected values, and whether any entry was taken.
func gatherKey(h *cursorHeap, key []byte, vals [][]byte) ([]byte, [][]byte, bool, error) {
	taken := false
	for h.Len() > 0 {
		top := (*h)[0]
		if !taken {
			key = append(key[:0], top.key...)
			taken = true
		} else if BytewiseCompare(top.key, key) != 0 {
			break
		}
		vals = append(vals, append([]byte(nil), top.value...))

		ok, err := top.fill()
		if err != nil {
			return key, vals, taken, err
		}
		if ok {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return key, vals, taken, nil
}

// MergeIterator yields each distinct key in ascending order with a single
// merged value per key. Returned slices are reused on the next call to
// Next and must be copied to outlive it. Not safe for concurrent use.
type MergeIterator struct {
	heap  *cursorHeap
	merge MergeFunc

	key   []byte
	vals  [][]byte
	value []byte
	err   error
	done  bool

	onClose func() error
}

// Next advances to the next distinct key, reporting whether one exists.
func (it *MergeIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}

	var taken bool
	it.key, it.vals, taken, it.err = gatherKey(it.heap, it.key, it.vals[:0])
	if it.err != nil {
		it.done = true
		return false
	}
	if !taken {
		it.done = true
		return false
	}

	if len(it.vals) == 1 {
		it.value = it.vals[0]
		return true
	}
	if it.merge == nil {
		it.err = &MergeError[error]{Key: append([]byte(nil), it.key...), Cause: errNilMergeFunc}
		it.done = true
		return false
	}
	merged, err := it.merge(it.key, it.vals)
	if err != nil {
		it.err = &MergeError[error]{Key: append([]byte(nil), it.key...), Cause: err}
		it.done = true
		return false
	}
	it.value = merged
	return true
}

// Key returns the current key. Valid only after Next returns true.
func (it *MergeIterator) Key() []byte { return it.key }

// Value returns the current merged value; the same lifetime rules as Key
// apply.
func (it *MergeIterator) Value() []byte { return it.value }

// Err returns the error, if any, that ended iteration early.
func (it *MergeIterator) Err() error { return it.err }

// Close releases the iterator and any resources attached to it (a sorter's
// spill chunks, when the iterator came from Sorter.IntoIter).
func (it *MergeIterator) Close() error {
	it.done = true
	it.heap = nil
	if it.onClose != nil {
		f := it.onClose
		it.onClose = nil
		return f()
	}
	return nil
}

// MultiIterator yields each distinct key with the full list of values
// stored under it, without merging. Returned slices are reused on the next
// call to Next and must be copied to outlive it.
type MultiIterator struct {
	heap *cursorHeap

	key  []byte
	vals [][]byte
	err  error
	done bool
}

// Next advances to the next distinct key, reporting whether one exists.
func (it *MultiIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}

	var taken bool
	it.key, it.vals, taken, it.err = gatherKey(it.heap, it.key, it.vals[:0])
	if it.err != nil || !taken {
		it.done = true
		return false
	}
	return true
}

// Key returns the current key. Valid only after Next returns true.
func (it *MultiIterator) Key() []byte { return it.key }

// Values returns every value stored under the current key, in the order
// the sources holding them were supplied to the Merger.
func (it *MultiIterator) Values() [][]byte { return it.vals }

// Err returns the error, if any, that ended iteration early.
func (it *MultiIterator) Err() error { return it.err }
