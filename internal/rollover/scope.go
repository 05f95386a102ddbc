// Package rollover owns the current day bucket and swaps it at local
// midnight.
package rollover

import (
	"sync"
	"time"
)

// Scope is the state that belongs to one day bucket. A new Scope is created
// at every rollover, so nothing cached for one day leaks into the next.
type Scope struct {
	Bucket string
	Start  time.Time

	mu   sync.RWMutex
	seen map[string]int64
}

func newScope(bucket string, start time.Time) *Scope {
	return &Scope{Bucket: bucket, Start: start, seen: make(map[string]int64)}
}

// Lookup returns the row id cached for (bucket, identity).
func (s *Scope) Lookup(bucket, identity string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.seen[bucket+"/"+identity]
	return id, ok
}

// Remember caches the row id of a stub that exists in the store.
func (s *Scope) Remember(bucket, identity string, id int64) {
	s.mu.Lock()
	s.seen[bucket+"/"+identity] = id
	s.mu.Unlock()
}

func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
