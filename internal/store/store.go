// Package store contains the core logic for the in-memory record store.
// A Store is not safe for concurrent use on its own: the server serializes
// every request behind a single lock before touching it.
package store

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrDuplicateTag is returned when inserting a tag that is already present.
	ErrDuplicateTag = errors.New("store: duplicate tag")
	// ErrNotFound is returned when a tag is absent.
	ErrNotFound = errors.New("store: tag not found")
)

// Record is a single tagged value. Age and LastAccess belong to the
// strategy layer; the CRUD methods never read them.
type Record struct {
	Tag        int64
	Value      string
	Age        int64
	LastAccess uint64
}

// Store is an insertion-ordered collection of Records keyed by tag.
type Store struct {
	records *orderedmap.OrderedMap[int64, *Record]
}

// NewStore initializes and returns a new empty Store.
func NewStore() *Store {
	return &Store{
		records: orderedmap.New[int64, *Record](),
	}
}

// Insert appends a new record at the tail of insertion order.
func (s *Store) Insert(tag int64, value string) error {
	if _, ok := s.records.Get(tag); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateTag, tag)
	}
	s.records.Set(tag, &Record{Tag: tag, Value: value})
	return nil
}

// Remove deletes the record and returns the value it held.
func (s *Store) Remove(tag int64) (string, error) {
	rec, ok := s.records.Delete(tag)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNotFound, tag)
	}
	return rec.Value, nil
}

// Update replaces the value of an existing record in place.
// Its position in insertion order and its strategy metadata are kept.
func (s *Store) Update(tag int64, value string) (string, error) {
	rec, ok := s.records.Get(tag)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNotFound, tag)
	}
	rec.Value = value
	return rec.Value, nil
}

// Search returns the value stored under tag.
func (s *Store) Search(tag int64) (string, error) {
	rec, ok := s.records.Get(tag)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNotFound, tag)
	}
	return rec.Value, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return s.records.Len()
}

// Record returns the live record for tag so the strategy layer can stamp
// its metadata. Callers must not change Tag.
func (s *Store) Record(tag int64) (*Record, bool) {
	return s.records.Get(tag)
}

// Each calls fn for every record, oldest insertion first.
func (s *Store) Each(fn func(rec *Record)) {
	for pair := s.records.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
	}
}

// Snapshot returns a copy of every record in insertion order.
func (s *Store) Snapshot() []Record {
	out := make([]Record, 0, s.records.Len())
	s.Each(func(rec *Record) {
		out = append(out, *rec)
	})
	return out
}

// Restore replaces the whole contents of the store with records, in the
// given order. If records holds a duplicate tag the store is left untouched.
// Recency stamps are reset; ages are kept.
func (s *Store) Restore(records []Record) error {
	next := orderedmap.New[int64, *Record]()
	for _, rec := range records {
		if _, ok := next.Get(rec.Tag); ok {
			return fmt.Errorf("restore: %w: %d", ErrDuplicateTag, rec.Tag)
		}
		next.Set(rec.Tag, &Record{Tag: rec.Tag, Value: rec.Value, Age: rec.Age})
	}
	s.records = next
	return nil
}
