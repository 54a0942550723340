package livesync

import "sync"

// Store is the ordered, keyed collection of records backing one live view.
// The view owns the store exclusively; the mutex only serializes the view's
// mutation callbacks against its feed binding, the way the source
// environment's event loop did. Operations never block on I/O.
type Store[R Record] struct {
	mu      sync.Mutex
	records []R
	index   map[string]int
}

// NewStore constructs an empty record store.
func NewStore[R Record]() *Store[R] {
	return &Store[R]{index: make(map[string]int)}
}

// Append inserts the record at the end of the display order. Appending an id
// that is already present is a no-op, which guards against the same record
// arriving both from a mutation response and from the change feed. It
// reports whether the record was inserted.
func (s *Store[R]) Append(record R) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[record.RecordID()]; ok {
		return false
	}
	s.index[record.RecordID()] = len(s.records)
	s.records = append(s.records, record)
	return true
}

// Get returns the record stored under the identifier.
func (s *Store[R]) Get(id string) (R, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	position, ok := s.index[id]
	if !ok {
		var zero R
		return zero, false
	}
	return s.records[position], true
}

// PatchByID replaces the stored record with the result of applying patch to
// it, keeping its display position. It reports whether the id was present.
func (s *Store[R]) PatchByID(id string, patch func(R) R) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	position, ok := s.index[id]
	if !ok {
		return false
	}
	s.records[position] = patch(s.records[position])
	return true
}

// RemoveByID deletes the record and closes the gap in display order.
func (s *Store[R]) RemoveByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// Replace swaps the tentative record stored under tempID for its confirmed
// counterpart, preserving the display slot the tentative entry occupied.
// When the confirmed id is already present (the change feed reconciled the
// record first) any leftover tentative entry is dropped; when the tempID is
// absent Replace degrades to an idempotent append.
func (s *Store[R]) Replace(tempID string, confirmed R) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[confirmed.RecordID()]; ok {
		s.removeLocked(tempID)
		return
	}

	position, ok := s.index[tempID]
	if !ok {
		s.index[confirmed.RecordID()] = len(s.records)
		s.records = append(s.records, confirmed)
		return
	}

	delete(s.index, tempID)
	s.records[position] = confirmed
	s.index[confirmed.RecordID()] = position
}

// All returns the records in display order.
func (s *Store[R]) All() []R {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]R, len(s.records))
	copy(snapshot, s.records)
	return snapshot
}

// FindBy returns the first record in display order matching the predicate.
func (s *Store[R]) FindBy(match func(R) bool) (R, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if match(record) {
			return record, true
		}
	}
	var zero R
	return zero, false
}

// Len returns the number of records held.
func (s *Store[R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store[R]) removeLocked(id string) bool {
	position, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	s.records = append(s.records[:position], s.records[position+1:]...)
	for i := position; i < len(s.records); i++ {
		s.index[s.records[i].RecordID()] = i
	}
	return true
}
