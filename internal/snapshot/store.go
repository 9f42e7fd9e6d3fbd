package snapshot

import "sync/atomic"

// Store publishes the current snapshot. Readers always see a complete
// snapshot; writers replace it whole.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store holding initial, or Empty() when initial is nil.
func NewStore(initial *Snapshot) *Store {
	if initial == nil {
		initial = Empty()
	}
	s := &Store{}
	s.current.Store(initial)
	return s
}

func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}
