package conversation

import (
	"fmt"
	"sync"
	"time"
)

// DuplicateIDError is returned by Append when an item with the same ID is
// already stored.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("conversation item already exists: %s", e.ID)
}

// Observer receives store notifications in the order mutations were applied.
// A nil item signals a reset.
type Observer func(item *Item)

// Store is the ordered, append/update conversation log. IDs are unique
// within a store; Upsert replaces in place so an async job can post a
// placeholder and later overwrite it without the consumer seeing two
// entries.
type Store struct {
	mu        sync.Mutex
	items     []Item
	index     map[string]int
	seq       uint64
	observers []Observer
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Subscribe registers an observer. Observers are invoked synchronously under
// the store lock, one notification per mutation, preserving order.
func (s *Store) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Append adds an item to the end of the log. It fails with DuplicateIDError
// if the ID is already present.
func (s *Store) Append(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[item.ID]; exists {
		return &DuplicateIDError{ID: item.ID}
	}
	s.seq++
	item.Seq = s.seq
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.index[item.ID] = len(s.items)
	s.items = append(s.items, item)
	s.notify(&item)
	return nil
}

// Upsert replaces the item with the same ID in place, preserving its
// position and sequence number; otherwise it appends.
func (s *Store) Upsert(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, exists := s.index[item.ID]; exists {
		item.Seq = s.items[pos].Seq
		if item.Timestamp.IsZero() {
			item.Timestamp = time.Now()
		}
		s.items[pos] = item
		s.notify(&item)
		return
	}
	s.seq++
	item.Seq = s.seq
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.index[item.ID] = len(s.items)
	s.items = append(s.items, item)
	s.notify(&item)
}

// Get returns the item with the given ID.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return Item{}, false
	}
	return s.items[pos], true
}

// Items returns a snapshot of the full ordered log. Later mutation does not
// change a previously returned snapshot.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear empties the log and notifies observers with a reset signal.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[string]int)
	s.notify(nil)
}

func (s *Store) notify(item *Item) {
	for _, obs := range s.observers {
		obs(item)
	}
}
