package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// PlaceRegistry holds every place in the world, indexed by id and queryable
// by kind.
type PlaceRegistry struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	places   map[uint32]*Place
	byKind   map[PlaceKind][]*Place
	ids      SequentialIDGenerator
}

func (r *PlaceRegistry) init() {
	r.places = map[uint32]*Place{}
	r.byKind = map[PlaceKind][]*Place{}
}

func (r *PlaceRegistry) NewID() uint32 {
	return r.ids.New()
}

func (r *PlaceRegistry) Add(p *Place) {
	r.initOnce.Do(r.init)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.places[p.ID]; ok {
		return
	}

	r.places[p.ID] = p
	r.byKind[p.Kind] = append(r.byKind[p.Kind], p)
}

func (r *PlaceRegistry) Get(id uint32) (*Place, bool) {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.places[id]
	return p, ok
}

func (r *PlaceRegistry) ByKind(kind PlaceKind) []*Place {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	places := make([]*Place, len(r.byKind[kind]))
	copy(places, r.byKind[kind])
	return places
}

// Places returns all places ordered by id.
func (r *PlaceRegistry) Places() []*Place {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	places := make([]*Place, 0, len(r.places))
	for _, p := range r.places {
		places = append(places, p)
	}
	sort.Slice(places, func(i, j int) bool {
		return places[i].ID < places[j].ID
	})
	return places
}

func (r *PlaceRegistry) Len() int {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.places)
}

// Assign registers an agent at the given place. An unknown place or a place
// at capacity is an error.
func (r *PlaceRegistry) Assign(agentID, placeID uint32) error {
	p, ok := r.Get(placeID)
	if !ok {
		return errors.New("place is not registered").
			WithType(ErrTypePlaceUnknown).
			WithTag("place_id", placeID).
			WithTag("agent_id", agentID)
	}

	if p.IsAssigned(agentID) {
		return nil
	}
	if err := p.Assign(agentID); err != nil {
		return err
	}

	instrumentIncreaseOccupancyGauge(p.Kind)
	instrumentCountAssignment(p.Kind)
	return nil
}

// Vacate removes an agent from the given place. Unknown places and agents
// that were never assigned are ignored.
func (r *PlaceRegistry) Vacate(agentID, placeID uint32) {
	p, ok := r.Get(placeID)
	if !ok {
		return
	}

	if p.Vacate(agentID) {
		instrumentDecreaseOccupancyGauge(p.Kind)
	}
}

// Occupancy returns the number of agents assigned to the given place.
func (r *PlaceRegistry) Occupancy(placeID uint32) (int, error) {
	p, ok := r.Get(placeID)
	if !ok {
		return 0, errors.New("place is not registered").
			WithType(ErrTypePlaceUnknown).
			WithTag("place_id", placeID)
	}
	return p.Occupancy(), nil
}
