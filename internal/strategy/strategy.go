// Package strategy holds the admission, aging and recency policies that run
// after every request. Strategies only stamp metadata on records; removal
// under a record limit is driven by the caller through Victim.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ASHISH26940/pipekv/internal/store"
)

// ErrUnknownStrategy is returned for a strategy name outside the fixed set.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Name identifies one of the fixed strategy variants.
type Name string

const (
	FIFO  Name = "fifo"
	Aging Name = "aging"
	LRU   Name = "lru"
)

// ParseName maps a case-insensitive name onto a Name.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case FIFO, Aging, LRU:
		return n, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Op is the kind of request a strategy observes.
type Op int

const (
	OpOther Op = iota
	OpInsert
	OpRemove
	OpUpdate
	OpSearch
)

// Event describes a request after its store effect has been applied.
// Applied is false when the store call failed (duplicate, not found) or
// the command was not understood.
type Event struct {
	Op      Op
	Tag     int64
	Applied bool
}

// Strategy is a long-lived policy object. Implementations are not
// goroutine-safe; the server calls them under its request lock.
type Strategy interface {
	Name() Name
	// Process observes a single request against the post-mutation store.
	Process(ev Event, st *store.Store)
	// Victim picks the record this policy would give up first.
	Victim(st *store.Store) (tag int64, ok bool)
}

// Options configures a Set.
type Options struct {
	Default      Name
	FIFOCapacity int
	AgingPeriod  uint64
	AgingFloor   int64
}

// DefaultOptions returns the stock policy parameters.
func DefaultOptions() Options {
	return Options{
		Default:      FIFO,
		FIFOCapacity: DefaultFIFOCapacity,
		AgingPeriod:  DefaultAgingPeriod,
		AgingFloor:   DefaultAgingFloor,
	}
}

// Set owns one instance of every strategy for the lifetime of a server.
// Switching names between requests never resets or merges their state.
type Set struct {
	byName map[Name]Strategy
	def    Name
}

// NewSet creates every strategy once.
func NewSet(opts Options) *Set {
	def := opts.Default
	if def == "" {
		def = FIFO
	}
	return &Set{
		byName: map[Name]Strategy{
			FIFO:  NewFIFO(opts.FIFOCapacity),
			Aging: NewAging(opts.AgingPeriod, opts.AgingFloor),
			LRU:   NewLRU(),
		},
		def: def,
	}
}

// Lookup resolves a request's strategy name. An empty name selects the default.
func (s *Set) Lookup(name string) (Strategy, error) {
	if name == "" {
		return s.byName[s.def], nil
	}
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	return s.byName[n], nil
}

// Get returns the strategy registered under n.
func (s *Set) Get(n Name) Strategy {
	return s.byName[n]
}
