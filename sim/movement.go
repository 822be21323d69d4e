package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
)

const (
	DefaultSpeed     = 1.0
	DefaultJitterMag = 0.5
	DefaultDayLength = 24
	DefaultWorkStart = 8
	DefaultWorkEnd   = 16
)

// MovementPolicy sets how agents commute: how fast they pull toward their
// scheduled place, how much they wander around that pull, and how the day is
// split between home and work-or-school hours.
type MovementPolicy struct {
	// Speed is the maximum distance the pull toward the destination covers
	// in one tick.
	Speed float64

	// JitterMag is the maximum magnitude of the random displacement added on
	// top of the pull.
	JitterMag float64

	// DayLength is the number of ticks in one schedule day.
	DayLength uint64

	// WorkStart and WorkEnd bound the work-or-school hours within the day,
	// start inclusive, end exclusive. Outside of them agents head home.
	WorkStart uint64
	WorkEnd   uint64
}

func DefaultMovementPolicy() MovementPolicy {
	return MovementPolicy{
		Speed:     DefaultSpeed,
		JitterMag: DefaultJitterMag,
		DayLength: DefaultDayLength,
		WorkStart: DefaultWorkStart,
		WorkEnd:   DefaultWorkEnd,
	}
}

func (p MovementPolicy) Validate() error {
	if p.Speed < 0 {
		return errors.New("speed cannot be negative").
			WithType(ErrTypeBadConfig).
			WithTag("speed", p.Speed)
	}
	if p.JitterMag < 0 {
		return errors.New("jitter magnitude cannot be negative").
			WithType(ErrTypeBadConfig).
			WithTag("jitter_mag", p.JitterMag)
	}
	if p.DayLength == 0 {
		return errors.New("day length must be positive").
			WithType(ErrTypeBadConfig)
	}
	if p.WorkStart >= p.WorkEnd || p.WorkEnd > p.DayLength {
		return errors.New("work hours must be an ordered window within the day").
			WithType(ErrTypeBadConfig).
			WithTag("work_start", p.WorkStart).
			WithTag("work_end", p.WorkEnd).
			WithTag("day_length", p.DayLength)
	}
	return nil
}

// DestinationFor returns the place the agent heads to at the given tick.
// During work hours school wins over work when the agent has both. A nil
// place with no error means the agent has nowhere to go and only wanders.
func (p MovementPolicy) DestinationFor(tick uint64, a *models.Agent, places *models.PlaceRegistry) (*models.Place, error) {
	placeID := a.HomeID

	phase := tick % p.DayLength
	if phase >= p.WorkStart && phase < p.WorkEnd {
		switch {
		case a.SchoolID != 0:
			placeID = a.SchoolID
		case a.WorkID != 0:
			placeID = a.WorkID
		}
	}

	if placeID == 0 {
		return nil, nil
	}

	place, ok := places.Get(placeID)
	if !ok {
		return nil, errors.New("destination place is not registered").
			WithType(models.ErrTypePlaceUnknown).
			WithTag("place_id", placeID).
			WithTag("agent_id", a.ID)
	}
	return place, nil
}

// Move is one agent's planned position and destination for a tick.
type Move struct {
	AgentID       uint32
	DestinationID uint32
	Position      geometry.Vec2D
}

// Mover plans the per-tick moves of all live agents. Planning only reads
// agent and place state, so it runs in parallel across workers; the caller
// applies the resulting moves afterwards.
type Mover struct {
	Policy  MovementPolicy
	Workers int
}

// PlanMoves computes every agent's next position, in agent order. Jitter
// draws are keyed by (seed, tick, agent id), so the result is the same for
// any worker count.
func (m Mover) PlanMoves(tick uint64, seed int64, agents []*models.Agent, places *models.PlaceRegistry, bounds geometry.Rect) ([]Move, error) {
	if len(agents) == 0 {
		return nil, nil
	}

	moves := make([]Move, len(agents))
	errs := make([]error, len(agents))

	var wg sync.WaitGroup
	for start, chunk := 0, chunkSize(len(agents), m.Workers); start < len(agents); start += chunk {
		end := start + chunk
		if end > len(agents) {
			end = len(agents)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			for i := start; i < end; i++ {
				moves[i], errs[i] = m.planMove(tick, seed, agents[i], places, bounds)
			}
		}(start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return moves, nil
}

func (m Mover) planMove(tick uint64, seed int64, a *models.Agent, places *models.PlaceRegistry, bounds geometry.Rect) (Move, error) {
	place, err := m.Policy.DestinationFor(tick, a, places)
	if err != nil {
		return Move{}, err
	}

	pos := a.Position()

	next := pos
	var destID uint32
	if place != nil {
		destID = place.ID
		next = pos.Add(place.Position.Sub(pos).ClampMag(m.Policy.Speed))
	}

	if m.Policy.JitterMag > 0 {
		rng := rand.New(rand.NewSource(jitterSeed(seed, tick, a.ID)))
		angle := 2 * math.Pi * rng.Float64()
		mag := m.Policy.JitterMag * rng.Float64()
		next = next.Add(geometry.NewVec2D(math.Cos(angle), math.Sin(angle)).Mul(mag))
	}

	return Move{
		AgentID:       a.ID,
		DestinationID: destID,
		Position:      next.Clamp(bounds),
	}, nil
}

// jitterSeed mixes the run seed, the tick and the agent id so every agent
// draws from its own stream every tick.
func jitterSeed(seed int64, tick uint64, agentID uint32) int64 {
	h := uint64(seed)
	h ^= (tick + 1) * 0x9e3779b97f4a7c15
	h ^= (uint64(agentID) + 1) * 0xbf58476d1ce4e5b9
	return int64(h)
}

// chunkSize splits n items across at most workers chunks.
func chunkSize(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	if size < 1 {
		size = 1
	}
	return size
}
