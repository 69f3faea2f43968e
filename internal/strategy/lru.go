package strategy

import "github.com/ASHISH26940/pipekv/internal/store"

// LRUStrategy stamps records with a monotonically increasing sequence
// whenever a request touches them. Successful Insert, Search and Update
// count as access; Remove leaves nothing behind to stamp.
type LRUStrategy struct {
	seq uint64
}

func NewLRU() *LRUStrategy { return &LRUStrategy{} }

func (l *LRUStrategy) Name() Name { return LRU }

func (l *LRUStrategy) Process(ev Event, st *store.Store) {
	if !ev.Applied {
		return
	}
	switch ev.Op {
	case OpInsert, OpSearch, OpUpdate:
	default:
		return
	}
	rec, ok := st.Record(ev.Tag)
	if !ok {
		return
	}
	l.seq++
	rec.LastAccess = l.seq
}

// Victim returns the record with the lowest stamp. Records never touched
// under this strategy carry zero and go first, oldest insertion on ties.
func (l *LRUStrategy) Victim(st *store.Store) (int64, bool) {
	var victim *store.Record
	st.Each(func(rec *store.Record) {
		if victim == nil || rec.LastAccess < victim.LastAccess {
			victim = rec
		}
	})
	if victim == nil {
		return 0, false
	}
	return victim.Tag, true
}
