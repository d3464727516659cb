package conversation

import "sync"

// keyedMutex provides one mutex per string key. Entries are reference
// counted and removed once the last holder releases, so the map stays
// proportional to the number of in-flight turns rather than the number of
// conversations ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the key's mutex is held and returns the release
// function. Waiters acquire in the order the runtime wakes them; what
// matters here is mutual exclusion per key, not strict FIFO.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
