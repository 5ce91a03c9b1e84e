package world

import "github.com/kamstrup/intmap"

// Table owns the live entities keyed by server id. It has a single writer,
// the frame update decoder, and no locking.
type Table struct {
	entities *intmap.Map[uint16, *Entity]
}

// NewTable creates an empty entity table.
func NewTable() *Table {
	return &Table{entities: intmap.New[uint16, *Entity](256)}
}

// Get returns the entity with the given id.
func (t *Table) Get(id uint16) (*Entity, bool) {
	return t.entities.Get(id)
}

// Put stores e, replacing any entity with the same id.
func (t *Table) Put(e *Entity) {
	t.entities.Put(e.ID, e)
}

// Remove drops the entity with the given id.
func (t *Table) Remove(id uint16) bool {
	return t.entities.Del(id)
}

// Len returns the number of live entities.
func (t *Table) Len() int {
	return t.entities.Len()
}

// Each calls fn for every live entity until fn returns false.
func (t *Table) Each(fn func(e *Entity) bool) {
	t.entities.ForEach(func(_ uint16, e *Entity) bool {
		return fn(e)
	})
}

// Clear drops every entity.
func (t *Table) Clear() {
	t.entities.Clear()
}
