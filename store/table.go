package store

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vsariola/beatbox"
)

type (
	// Table is an in-memory collection of records keyed by an int64 id. The
	// id lives inside the record; the table finds it with the accessor given
	// to NewTable. Records are copied in and out with Clone, so callers never
	// share memory with the table.
	Table[T any] struct {
		mu    sync.RWMutex
		rows  map[int64]T
		id    func(*T) *int64
		clone func(T) T
		next  int64
	}
)

// NewTable returns an empty table. clone may be nil if T has no reference
// fields.
func NewTable[T any](id func(*T) *int64, clone func(T) T) *Table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Table[T]{rows: make(map[int64]T), id: id, clone: clone}
}

// NewPlayerTable returns a table of players, deep copying the rules.
func NewPlayerTable() *Table[beatbox.Player] {
	return NewTable(
		func(p *beatbox.Player) *int64 { return &p.ID },
		func(p beatbox.Player) beatbox.Player { return p.Copy() })
}

func NewSessionTable() *Table[beatbox.SessionConfig] {
	return NewTable(func(c *beatbox.SessionConfig) *int64 { return &c.ID }, nil)
}

func (t *Table[T]) FindByID(id int64) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: id %d", beatbox.ErrNotFound, id)
	}
	return t.clone(v), nil
}

// Save inserts or replaces a record. A record with id 0 is given the next
// free id; the saved record is returned.
func (t *Table[T]) Save(record T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record = t.clone(record)
	id := t.id(&record)
	if *id == 0 {
		t.next++
		*id = t.next
	}
	if *id < 0 {
		var zero T
		return zero, fmt.Errorf("negative id %d", *id)
	}
	t.next = max(t.next, *id)
	t.rows[*id] = record
	return t.clone(record), nil
}

func (t *Table[T]) Delete(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%w: id %d", beatbox.ErrNotFound, id)
	}
	delete(t.rows, id)
	return nil
}

// All returns copies of all records in id order.
func (t *Table[T]) All() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ret := make([]T, 0, len(t.rows))
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		ret = append(ret, t.clone(t.rows[id]))
	}
	return ret
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Repository exposes the table through the injectable persistence functions
// of beatbox.Repository.
func (t *Table[T]) Repository() beatbox.Repository[T] {
	return beatbox.Repository[T]{FindByID: t.FindByID, Save: t.Save, Delete: t.Delete}
}
