package strategy

import "github.com/ASHISH26940/pipekv/internal/store"

// DefaultFIFOCapacity is the queue length used when none is configured.
const DefaultFIFOCapacity = 10

// FIFOStrategy keeps a bounded queue of the most recently inserted tags.
//
// It reacts to successful inserts only. Every other request, including
// searches and updates, passes through untouched: access patterns never
// matter to a FIFO. When the queue is full the oldest tag leaves the queue
// before the new one is appended; the record itself stays in the store.
type FIFOStrategy struct {
	capacity int
	queue    []int64
}

// NewFIFO returns a FIFO strategy holding at most capacity tags.
func NewFIFO(capacity int) *FIFOStrategy {
	if capacity <= 0 {
		capacity = DefaultFIFOCapacity
	}
	return &FIFOStrategy{
		capacity: capacity,
		queue:    make([]int64, 0, capacity),
	}
}

func (f *FIFOStrategy) Name() Name { return FIFO }

func (f *FIFOStrategy) Process(ev Event, _ *store.Store) {
	if ev.Op != OpInsert || !ev.Applied {
		return
	}
	if len(f.queue) >= f.capacity {
		copy(f.queue, f.queue[1:])
		f.queue = f.queue[:len(f.queue)-1]
	}
	f.queue = append(f.queue, ev.Tag)
}

// Victim returns the oldest record in insertion order, which is the
// store's own FIFO order. Records inserted under other strategies count too.
func (f *FIFOStrategy) Victim(st *store.Store) (int64, bool) {
	var (
		tag   int64
		found bool
	)
	st.Each(func(rec *store.Record) {
		if !found {
			tag, found = rec.Tag, true
		}
	})
	return tag, found
}

// Queued returns a copy of the queue, oldest first.
func (f *FIFOStrategy) Queued() []int64 {
	return append([]int64(nil), f.queue...)
}
