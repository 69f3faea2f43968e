package strategy

import "github.com/ASHISH26940/pipekv/internal/store"

const (
	// DefaultAgingPeriod is the number of requests between decay steps.
	DefaultAgingPeriod = 5
	// DefaultAgingFloor is the lowest age a record can decay to.
	DefaultAgingFloor = -100
)

// AgingStrategy decrements the age of every record once per period of
// processed requests. Ages never drop below the floor. It does not evict.
type AgingStrategy struct {
	period  uint64
	floor   int64
	counter uint64
}

// NewAging returns an aging strategy. A zero period means DefaultAgingPeriod.
func NewAging(period uint64, floor int64) *AgingStrategy {
	if period == 0 {
		period = DefaultAgingPeriod
	}
	return &AgingStrategy{period: period, floor: floor}
}

func (a *AgingStrategy) Name() Name { return Aging }

// Process counts every request, failed and unknown ones included.
func (a *AgingStrategy) Process(_ Event, st *store.Store) {
	a.counter++
	if a.counter%a.period != 0 {
		return
	}
	st.Each(func(rec *store.Record) {
		if rec.Age > a.floor {
			rec.Age--
		}
	})
}

// Victim returns the stalest record, the oldest insertion on ties.
func (a *AgingStrategy) Victim(st *store.Store) (int64, bool) {
	var victim *store.Record
	st.Each(func(rec *store.Record) {
		if victim == nil || rec.Age < victim.Age {
			victim = rec
		}
	})
	if victim == nil {
		return 0, false
	}
	return victim.Tag, true
}

// Processed returns how many requests the strategy has seen.
func (a *AgingStrategy) Processed() uint64 { return a.counter }
