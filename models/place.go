package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/geometry"
)

const (
	ErrTypePlaceFull    = "place_full"
	ErrTypePlaceUnknown = "place_unknown"
)

// PlaceKind is what a place is used for in the daily schedule.
type PlaceKind string

const (
	PlaceHome   PlaceKind = "home"
	PlaceWork   PlaceKind = "work"
	PlaceSchool PlaceKind = "school"
)

// Place is a fixed location agents commute to. It takes no part in spatial
// queries; its position is only ever a movement destination.
type Place struct {
	ID       uint32
	Kind     PlaceKind
	Position geometry.Vec2D

	// Capacity is the maximum number of assigned agents. Zero means
	// unlimited.
	Capacity int

	mutex    sync.RWMutex
	assigned map[uint32]struct{}
}

func NewPlace(id uint32, kind PlaceKind, pos geometry.Vec2D, capacity int) *Place {
	return &Place{
		ID:       id,
		Kind:     kind,
		Position: pos,
		Capacity: capacity,
		assigned: make(map[uint32]struct{}),
	}
}

// Assign registers an agent at the place. Assigning an agent that is already
// registered is a no-op; assigning beyond capacity is an error.
func (p *Place) Assign(agentID uint32) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.assigned[agentID]; ok {
		return nil
	}

	if p.Capacity > 0 && len(p.assigned) >= p.Capacity {
		return errors.New("place is at capacity").
			WithType(ErrTypePlaceFull).
			WithTag("place_id", p.ID).
			WithTag("kind", p.Kind).
			WithTag("capacity", p.Capacity)
	}

	p.assigned[agentID] = struct{}{}
	return nil
}

// Vacate removes an agent from the place and reports whether it was
// assigned.
func (p *Place) Vacate(agentID uint32) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, ok := p.assigned[agentID]
	delete(p.assigned, agentID)
	return ok
}

func (p *Place) IsAssigned(agentID uint32) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	_, ok := p.assigned[agentID]
	return ok
}

func (p *Place) Occupancy() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return len(p.assigned)
}
