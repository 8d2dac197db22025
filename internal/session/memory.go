package session

import "sync"

// MemoryStore is an in-process Store used by tests and the cucumber
// scenarios.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: map[string]Snapshot{}}
}

// Save records the snapshot for a client.
func (s *MemoryStore) Save(clientID string, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[clientID] = snapshot
	return nil
}

// Load returns the snapshot for a client, if present.
func (s *MemoryStore) Load(clientID string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[clientID]
	return snapshot, ok, nil
}

// Clear removes the snapshot for a client.
func (s *MemoryStore) Clear(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, clientID)
	return nil
}
