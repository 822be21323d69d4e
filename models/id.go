package models

import "sync"

// A sequential id generator. Vacated ids are handed out again before a fresh
// one, most recently vacated first, so id assignment stays deterministic for
// a given call order.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs []uint32
}

// New returns a sequential id, preferring reusable ones.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if l := len(g.reusableIDs); l != 0 {
		id := g.reusableIDs[l-1]
		g.reusableIDs = g.reusableIDs[:l-1]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Reusable ids are returned in priority
// when using New.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusableIDs = append(g.reusableIDs, id)
}
