package sim

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/quadtree"
)

const (
	ErrTypeBadConfig      = "sim_bad_config"
	ErrTypeBadState       = "sim_bad_state"
	ErrTypeTickExhaustion = "sim_tick_exhaustion"
)

// State is the lifecycle state of a World.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateStepping      State = "stepping"
	StateStopped       State = "stopped"
)

// InfectionModel consumes a completed tick's contact edges and agent
// snapshot and returns the health updates to apply before the next tick. The
// engine runs fine without one.
type InfectionModel interface {
	UpdateHealth(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate
}

// Config assembles a World.
type Config struct {
	// Bounds is the world rectangle. Agents never leave it.
	Bounds geometry.Rect

	// ContactRadius is the maximum distance between two agents that still
	// counts as a contact.
	ContactRadius float64

	// LeafCapacity and MaxDepth tune the spatial index. Zero values use the
	// index defaults.
	LeafCapacity int
	MaxDepth     int

	Movement MovementPolicy

	// Infection is the optional model fed by the infection hook.
	Infection InfectionModel

	// Workers caps the goroutines used by the parallel movement and contact
	// passes. Zero or less means one.
	Workers int

	// Seed drives every random draw of the run. A fixed seed gives an
	// identical run.
	Seed int64

	// RunTicks is the planned run length, validated against the tick
	// counter's headroom at initialization. Zero means open-ended.
	RunTicks uint64

	// HistorySize bounds the retained per-tick edge sets. Zero retains
	// nothing.
	HistorySize int
}

// TickResult is what one Step produces: the completed tick number, its
// contact edges, a read-only snapshot of every agent and the health updates
// applied at the end of the tick.
type TickResult struct {
	Tick    uint64                 `json:"tick"`
	Edges   []models.ContactEdge   `json:"edges"`
	Agents  []models.AgentSnapshot `json:"agents"`
	Updates []models.HealthUpdate  `json:"updates,omitempty"`
}

// World owns all mutable simulation state. Nothing else advances the clock
// or mutates the index. Steps run from a single goroutine; accessors can be
// called from any goroutine and block while a step is in flight.
type World struct {
	// RunID identifies this run in logs, frames and snapshots.
	RunID string

	cfg      Config
	mover    Mover
	contacts ContactBuilder

	clock   Clock
	tree    *quadtree.Tree
	places  *models.PlaceRegistry
	history *History

	mutex         sync.RWMutex
	state         State
	all           []*models.Agent
	live          []*models.Agent
	agentIndex    map[uint32]*models.Agent
	snapshotIndex map[uint32]int
}

// New validates the configuration and creates an empty world in the
// Uninitialized state.
func New(cfg Config) (*World, error) {
	if cfg.ContactRadius <= 0 {
		return nil, errors.New("contact radius must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("contact_radius", cfg.ContactRadius)
	}
	if err := cfg.Movement.Validate(); err != nil {
		return nil, errors.New("invalid movement policy").Wrap(err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	tree, err := quadtree.New(quadtree.Config{
		Bounds:       cfg.Bounds,
		LeafCapacity: cfg.LeafCapacity,
		MaxDepth:     cfg.MaxDepth,
	})
	if err != nil {
		return nil, errors.New("creating spatial index failed").Wrap(err)
	}

	return &World{
		RunID:         uuid.NewString(),
		cfg:           cfg,
		mover:         Mover{Policy: cfg.Movement, Workers: cfg.Workers},
		contacts:      ContactBuilder{Radius: cfg.ContactRadius, Workers: cfg.Workers},
		tree:          tree,
		places:        &models.PlaceRegistry{},
		history:       NewHistory(cfg.HistorySize),
		state:         StateUninitialized,
		agentIndex:    make(map[uint32]*models.Agent),
		snapshotIndex: make(map[uint32]int),
	}, nil
}

// Initialize populates the registry and the index and moves the world to
// Ready. Place capacity overruns and out-of-bounds agents fail here, before
// the run starts, as does a run length the tick counter cannot hold.
func (w *World) Initialize(places []*models.Place, agents []*models.Agent) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.state != StateUninitialized {
		return errors.New("world is already initialized").
			WithType(ErrTypeBadState).
			WithTag("state", w.state)
	}

	if w.cfg.RunTicks > w.clock.Headroom() {
		return errors.New("run length exceeds tick counter headroom").
			WithType(ErrTypeTickExhaustion).
			WithTag("run_ticks", w.cfg.RunTicks)
	}

	for _, p := range places {
		w.places.Add(p)
	}

	for _, a := range agents {
		for _, placeID := range []uint32{a.HomeID, a.WorkID, a.SchoolID} {
			if placeID == 0 {
				continue
			}
			if err := w.places.Assign(a.ID, placeID); err != nil {
				return errors.New("assigning agent to place failed").
					WithTag("agent_id", a.ID).
					Wrap(err)
			}
		}

		if err := w.tree.Insert(a.ID, a.Position()); err != nil {
			return errors.New("inserting agent failed").
				WithTag("agent_id", a.ID).
				Wrap(err)
		}

		w.agentIndex[a.ID] = a
		w.snapshotIndex[a.ID] = len(w.all)
		w.all = append(w.all, a)
		w.live = append(w.live, a)
	}

	w.state = StateReady
	instrumentLiveAgents(len(w.live))

	logs.WithTag("run_id", w.RunID).
		WithTag("agents", len(agents)).
		WithTag("places", len(places)).
		WithTag("bounds", w.cfg.Bounds).
		Info("world initialized")
	return nil
}

// Step runs one tick: plan moves in parallel, apply the relocations, build
// the contact edge set, feed the infection hook and advance the clock. Valid
// in Ready and Stepping.
func (w *World) Step(ctx context.Context) (TickResult, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	switch w.state {
	case StateReady:
		w.state = StateStepping
	case StateStepping:
	default:
		return TickResult{}, errors.New("world cannot step").
			WithType(ErrTypeBadState).
			WithTag("state", w.state)
	}

	if err := ctx.Err(); err != nil {
		return TickResult{}, errors.New("tick canceled").
			WithTag("tick", w.clock.Current()).
			Wrap(err)
	}

	start := time.Now()
	tick := w.clock.Current() + 1

	moves, err := w.mover.PlanMoves(tick, w.cfg.Seed, w.live, w.places, w.cfg.Bounds)
	if err != nil {
		return TickResult{}, errors.New("planning moves failed").
			WithTag("tick", tick).
			Wrap(err)
	}

	// Relocations are applied by the single writer, after the parallel
	// planning pass and before any contact query.
	for i, mv := range moves {
		if err := w.tree.Relocate(mv.AgentID, mv.Position); err != nil {
			return TickResult{}, errors.New("relocating agent failed").
				WithTag("tick", tick).
				WithTag("agent_id", mv.AgentID).
				Wrap(err)
		}

		a := w.live[i]
		a.SetPosition(mv.Position)
		a.SetDestination(mv.DestinationID)
	}

	edges := w.contacts.Build(w.tree, w.live)
	snapshot := models.AgentsToSnapshots(w.all)

	var updates []models.HealthUpdate
	if w.cfg.Infection != nil {
		updates = w.applyHealthUpdates(tick, w.cfg.Infection.UpdateHealth(tick, edges, snapshot))

		for _, u := range updates {
			i := w.snapshotIndex[u.AgentID]
			snapshot[i].Status = u.Status
			snapshot[i].StatusTick = tick
		}
	}

	w.history.Push(tick, edges)
	w.clock.Advance()

	instrumentTick(time.Since(start))
	instrumentContactEdges(len(edges))
	instrumentLiveAgents(len(w.live))
	instrumentAgentStatuses(snapshot)

	return TickResult{
		Tick:    tick,
		Edges:   edges,
		Agents:  snapshot,
		Updates: updates,
	}, nil
}

// applyHealthUpdates applies the model's updates to the agents and returns
// the ones that took effect. Updates for unknown or already retired agents
// are dropped.
func (w *World) applyHealthUpdates(tick uint64, updates []models.HealthUpdate) []models.HealthUpdate {
	applied := updates[:0]
	for _, u := range updates {
		a, ok := w.agentIndex[u.AgentID]
		if !ok {
			logs.WithTag("agent_id", u.AgentID).
				WithTag("tick", tick).
				Warn("health update for unknown agent")
			continue
		}

		status, _ := a.Health()
		if status.Terminal() {
			continue
		}

		a.SetHealth(u.Status, tick)
		instrumentCountHealthUpdate(u.Status)

		if u.Status.Terminal() {
			w.retire(a)
		}

		applied = append(applied, u)
	}
	return applied
}

// retire takes a dead agent out of the index, its places and the live set.
// It stays in snapshots.
func (w *World) retire(a *models.Agent) {
	if err := w.tree.Remove(a.ID); err != nil {
		logs.WithTag("agent_id", a.ID).Warn(errors.New("removing retired agent from index failed").Wrap(err))
	}

	for _, placeID := range []uint32{a.HomeID, a.WorkID, a.SchoolID} {
		if placeID != 0 {
			w.places.Vacate(a.ID, placeID)
		}
	}

	for i, la := range w.live {
		if la.ID == a.ID {
			w.live = append(w.live[:i], w.live[i+1:]...)
			break
		}
	}
}

// Stop moves the world to its terminal state. Stopping between ticks is
// always safe; stopping twice is a no-op.
func (w *World) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.state == StateStopped {
		return
	}
	w.state = StateStopped

	logs.WithTag("run_id", w.RunID).
		WithTag("ticks", w.clock.Current()).
		Info("world stopped")
}

func (w *World) State() State {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.state
}

func (w *World) Bounds() geometry.Rect {
	return w.cfg.Bounds
}

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 {
	return w.clock.Current()
}

func (w *World) LiveCount() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return len(w.live)
}

// Snapshot returns a read-only copy of every agent, retired ones included.
func (w *World) Snapshot() []models.AgentSnapshot {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return models.AgentsToSnapshots(w.all)
}

// QueryRegion returns the ids of live agents the index holds within bounds.
func (w *World) QueryRegion(bounds geometry.Rect) []uint32 {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.tree.QueryRange(bounds)
}

// IndexInfo reports the spatial index structure.
func (w *World) IndexInfo() quadtree.DebugInfo {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.tree.DebugInfo()
}

// History gives access to the retained per-tick edge sets.
func (w *World) History() *History {
	return w.history
}
