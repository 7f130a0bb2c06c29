package allocation

import (
	"bytes"
	"slices"
	"sync"

	"stockflow/internal/core/id"
)

// LocationLocks serializes capacity read-modify-write per location.
type LocationLocks struct {
	mu    sync.Mutex
	locks map[id.ID]*sync.Mutex
}

// NewLocationLocks creates an empty lock table.
func NewLocationLocks() *LocationLocks {
	return &LocationLocks{locks: make(map[id.ID]*sync.Mutex)}
}

// Lock acquires the locks of every given location in ascending id order and
// returns the function that releases them. Duplicates and nil ids are ignored.
func (l *LocationLocks) Lock(ids ...id.ID) (unlock func()) {
	ordered := make([]id.ID, 0, len(ids))
	for _, lid := range ids {
		if !id.IsNil(lid) {
			ordered = append(ordered, lid)
		}
	}
	slices.SortFunc(ordered, func(a, b id.ID) int { return bytes.Compare(a[:], b[:]) })
	ordered = slices.Compact(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, lid := range ordered {
		m := l.get(lid)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *LocationLocks) get(lid id.ID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[lid]
	if !ok {
		m = &sync.Mutex{}
		l.locks[lid] = m
	}
	return m
}
