// Package keylock provides mutual exclusion scoped to a string key.
//
// Entries are created on first use and reclaimed as soon as no goroutine
// holds or waits for them, so the table only ever contains keys that are
// currently contended.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table is a set of mutexes keyed by listing id
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock table
func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Lock blocks until the caller holds the lock for key and returns the
// function that releases it.
func (t *Table) Lock(key string) (unlock func()) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			t.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(t.entries, key)
			}
			t.mu.Unlock()
		})
	}
}

// Len returns the number of live entries
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
