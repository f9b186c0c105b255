// Package store implements the in-memory sorted key/value table: a
// capacity-bounded, strictly-ordered array supporting O(log n) lookup,
// insert-or-replace, and remove. It has no knowledge of concurrency (see
// internal/rwcoord) or persistence (see internal/persistence,
// internal/journal); those are separate concerns layered on top.
package store

import (
	"errors"

	"github.com/dirbookd/server/internal/types"
)

// ErrNotFound is returned by Remove when the key is not present.
var ErrNotFound = errors.New("store: key not found")

// ErrCapacityExceeded is returned by Insert when the store is already at
// its maximum capacity (2^P records) and the key is new.
var ErrCapacityExceeded = errors.New("store: capacity exceeded")

// ErrInvalidKey and ErrInvalidValue are returned when a field fails
// charset/length validation for the store's kind.
var (
	ErrInvalidKey   = errors.New("store: invalid key")
	ErrInvalidValue = errors.New("store: invalid value")
)

// Record is a single (key, value) pair owned by exactly one Store.
type Record struct {
	Key   string
	Value string
}

// Store is a sorted, unique-keyed, capacity-bounded table of records.
// It is not safe for concurrent use; callers coordinate access through an
// rwcoord.Coordinator.
type Store struct {
	kind     types.StoreKind
	records  []Record
	capacity int
}

// New creates an empty store of the given kind with the minimum initial
// capacity.
func New(kind types.StoreKind) *Store {
	return &Store{kind: kind, records: make([]Record, 0, 1), capacity: 1}
}

// NewWithCapacity creates an empty store presized to hold at least
// hintSize records without reallocating, rounded up to the next power of
// two and capped at 2^P. Used by the persistence engine's Import, which
// knows the line count up front.
func NewWithCapacity(kind types.StoreKind, hintSize int) *Store {
	cap := nextPowerOfTwo(hintSize)
	if cap < 1 {
		cap = 1
	}
	if cap > types.StoreCapacityMax {
		cap = types.StoreCapacityMax
	}
	return &Store{kind: kind, records: make([]Record, 0, cap), capacity: cap}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Kind reports the validation kind this store enforces.
func (s *Store) Kind() types.StoreKind { return s.kind }

// Len reports the current number of records.
func (s *Store) Len() int { return len(s.records) }

// Cap reports the current backing capacity (not the 2^P ceiling).
func (s *Store) Cap() int { return s.capacity }

// find performs a binary search over the sorted key array: for
// half = (lo+hi)/2, compare key to the stored key; < moves hi := half,
// > moves lo := half, = returns half. The base case (hi-lo <= 1) picks
// the smaller-equal side and reports whether it is an exact match.
//
// Returns (index, true) when key is present at index. Returns
// (insertionIndex, false) when absent, where insertionIndex is where key
// would need to be inserted to preserve order.
func (s *Store) find(key string) (int, bool) {
	n := len(s.records)
	if n == 0 {
		return 0, false
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		half := (lo + hi) / 2
		switch {
		case key < s.records[half].Key:
			hi = half
		case key > s.records[half].Key:
			lo = half
		default:
			return half, true
		}
	}
	if s.records[lo].Key == key {
		return lo, true
	}
	if s.records[hi].Key == key {
		return hi, true
	}
	// Neither endpoint matches: report the insertion point.
	switch {
	case key < s.records[lo].Key:
		return lo, false
	case key < s.records[hi].Key:
		return hi, false
	default:
		return hi + 1, false
	}
}

// Find looks up key and reports the stored value and whether it was
// present.
func (s *Store) Find(key string) (string, bool) {
	idx, ok := s.find(key)
	if !ok {
		return "", false
	}
	return s.records[idx].Value, true
}

// Insert inserts a new record or replaces the value of an existing one
// with the same key. Both fields are validated against the store's kind
// before anything else happens.
func (s *Store) Insert(key, value string) error {
	if !types.ValidKey(s.kind, key) {
		return ErrInvalidKey
	}
	if !types.ValidValue(s.kind, value) {
		return ErrInvalidValue
	}
	return s.insertUnchecked(key, value)
}

// insertUnchecked performs the insert/replace without field validation.
// Insert calls it after validating both fields.
func (s *Store) insertUnchecked(key, value string) error {
	idx, exists := s.find(key)
	if exists {
		s.records[idx].Value = value
		return nil
	}
	if len(s.records) >= types.StoreCapacityMax {
		return ErrCapacityExceeded
	}
	s.growIfFull()
	s.records = append(s.records, Record{})
	copy(s.records[idx+1:], s.records[idx:len(s.records)-1])
	s.records[idx] = Record{Key: key, Value: value}
	return nil
}

// AppendSorted is the fast path used by Import when the source is known
// to be sorted ascending: every key compares strictly greater than the
// last one, so no shift is required. The caller is responsible for the
// ordering and validation guarantee; this does not re-check either.
func (s *Store) AppendSorted(key, value string) {
	s.growIfFull()
	s.records = append(s.records, Record{Key: key, Value: value})
}

func (s *Store) growIfFull() {
	if len(s.records) < cap(s.records) {
		return
	}
	newCap := s.capacity * 2
	if newCap > types.StoreCapacityMax {
		newCap = types.StoreCapacityMax
	}
	if newCap <= s.capacity {
		return
	}
	grown := make([]Record, len(s.records), newCap)
	copy(grown, s.records)
	s.records = grown
	s.capacity = newCap
}

// Remove deletes the record with the given key. Returns ErrNotFound if
// absent.
func (s *Store) Remove(key string) error {
	idx, ok := s.find(key)
	if !ok {
		return ErrNotFound
	}
	copy(s.records[idx:], s.records[idx+1:])
	s.records = s.records[:len(s.records)-1]
	return nil
}

// Iterate calls fn for every record in ascending key order. Iteration
// stops early if fn returns false.
func (s *Store) Iterate(fn func(Record) bool) {
	for _, r := range s.records {
		if !fn(r) {
			return
		}
	}
}

// Snapshot returns a copy of every record in ascending order, safe for the
// caller to retain after the store mutates further.
func (s *Store) Snapshot() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
