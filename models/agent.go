package models

import (
	"sync"

	"github.com/runesim/kaun/geometry"
)

// Agent is a simulated individual. Identity, age and place memberships are
// fixed at creation; position, destination and health change every tick and
// are guarded so the movement workers and the stream can read them while the
// simulation mutates.
type Agent struct {
	ID       uint32
	AgeYears int

	HomeID   uint32
	WorkID   uint32
	SchoolID uint32

	mutex      sync.RWMutex
	pos        geometry.Vec2D
	destID     uint32
	status     HealthStatus
	statusTick uint64
}

// NewAgent creates a susceptible agent at the given position.
func NewAgent(id uint32, pos geometry.Vec2D) *Agent {
	return &Agent{
		ID:     id,
		pos:    pos,
		status: HealthSusceptible,
	}
}

func (a *Agent) SetPosition(v geometry.Vec2D) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.pos = v
}

func (a *Agent) Position() geometry.Vec2D {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.pos
}

// SetDestination records the place the agent is currently headed to.
func (a *Agent) SetDestination(placeID uint32) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.destID = placeID
}

func (a *Agent) Destination() uint32 {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.destID
}

// SetHealth sets the agent's health status and the tick the status was
// entered at.
func (a *Agent) SetHealth(s HealthStatus, tick uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.status = s
	a.statusTick = tick
}

// Health returns the agent's health status and the tick it was entered at.
func (a *Agent) Health() (HealthStatus, uint64) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.status, a.statusTick
}

// Snapshot returns a read-only copy of the agent's current state.
func (a *Agent) Snapshot() AgentSnapshot {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return AgentSnapshot{
		ID:            a.ID,
		Position:      a.pos,
		DestinationID: a.destID,
		Status:        a.status,
		StatusTick:    a.statusTick,
		AgeYears:      a.AgeYears,
	}
}

// AgentSnapshot is the per-tick read-only view of an agent, shared with the
// infection hook, HTTP handlers and stream frames.
type AgentSnapshot struct {
	ID            uint32         `json:"id"`
	Position      geometry.Vec2D `json:"position"`
	DestinationID uint32         `json:"destination_id,omitempty"`
	Status        HealthStatus   `json:"status"`
	StatusTick    uint64         `json:"status_tick"`
	AgeYears      int            `json:"age_years"`
}

// AgentsToSnapshots snapshots the given agents in order.
func AgentsToSnapshots(agents []*Agent) []AgentSnapshot {
	snapshots := make([]AgentSnapshot, len(agents))
	for i, a := range agents {
		snapshots[i] = a.Snapshot()
	}
	return snapshots
}
