package dispatch

import (
	"maps"
	"sync"
)

// slots tracks in-flight runs per agent type. It is the only shared
// counter in the dispatcher; every successful acquire must be paired with
// exactly one release.
type slots struct {
	mu    sync.Mutex
	inUse map[string]int
}

func newSlots() *slots {
	return &slots{inUse: make(map[string]int)}
}

// acquire takes a slot for typeName if fewer than limit are in use. The
// returned release func is idempotent.
func (s *slots) acquire(typeName string, limit int) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse[typeName] >= limit {
		return nil, false
	}
	s.inUse[typeName]++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.inUse[typeName]--
			if s.inUse[typeName] <= 0 {
				delete(s.inUse, typeName)
			}
		})
	}, true
}

func (s *slots) count(typeName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse[typeName]
}

func (s *slots) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.inUse)
}
