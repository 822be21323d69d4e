package sim

import (
	"context"
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/stretchr/testify/require"
)

type infectionModelStub struct {
	updateHealth func(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate
}

func (m infectionModelStub) UpdateHealth(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
	if m.updateHealth == nil {
		return nil
	}
	return m.updateHealth(tick, edges, agents)
}

func newTestWorldConfig() Config {
	policy := DefaultMovementPolicy()
	policy.JitterMag = 0

	return Config{
		Bounds:        geometry.NewRect(geometry.NewVec2D(0, 0), geometry.NewVec2D(100, 100)),
		ContactRadius: 1,
		Movement:      policy,
		Workers:       2,
		Seed:          42,
	}
}

// stationaryAgents have no places and no jitter, so they never move.
func stationaryAgents(positions ...geometry.Vec2D) []*models.Agent {
	agents := make([]*models.Agent, len(positions))
	for i, pos := range positions {
		agents[i] = models.NewAgent(uint32(i+1), pos)
	}
	return agents
}

func TestNewWorld(t *testing.T) {
	t.Run("creates an uninitialized world", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)
		require.Equal(t, StateUninitialized, w.State())
		require.NotEmpty(t, w.RunID)
		require.Zero(t, w.Tick())
	})

	t.Run("a non-positive contact radius fails", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.ContactRadius = 0

		_, err := New(cfg)
		require.Error(t, err)
		require.Equal(t, ErrTypeBadConfig, errors.Type(err))
	})

	t.Run("an invalid movement policy fails", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Movement.DayLength = 0

		_, err := New(cfg)
		require.Error(t, err)
	})

	t.Run("degenerate bounds fail", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Bounds = geometry.Rect{}

		_, err := New(cfg)
		require.Error(t, err)
	})
}

func TestWorldInitialize(t *testing.T) {
	t.Run("populates the world", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		places := []*models.Place{
			models.NewPlace(1, models.PlaceHome, geometry.NewVec2D(10, 10), 0),
		}
		agents := stationaryAgents(geometry.NewVec2D(1, 1), geometry.NewVec2D(2, 2))
		agents[0].HomeID = 1
		agents[1].HomeID = 1

		require.NoError(t, w.Initialize(places, agents))
		require.Equal(t, StateReady, w.State())
		require.Equal(t, 2, w.LiveCount())
		require.Len(t, w.QueryRegion(w.Bounds()), 2)
	})

	t.Run("initializing twice fails", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		require.NoError(t, w.Initialize(nil, nil))

		err = w.Initialize(nil, nil)
		require.Error(t, err)
		require.Equal(t, ErrTypeBadState, errors.Type(err))
	})

	t.Run("a full place fails initialization", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		places := []*models.Place{
			models.NewPlace(1, models.PlaceHome, geometry.NewVec2D(10, 10), 1),
		}
		agents := stationaryAgents(geometry.NewVec2D(1, 1), geometry.NewVec2D(2, 2))
		agents[0].HomeID = 1
		agents[1].HomeID = 1

		require.Error(t, w.Initialize(places, agents))
	})

	t.Run("an out-of-bounds agent fails initialization", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		err = w.Initialize(nil, stationaryAgents(geometry.NewVec2D(500, 500)))
		require.Error(t, err)
	})

	t.Run("a run length past the counter headroom fails", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.RunTicks = 10

		w, err := New(cfg)
		require.NoError(t, err)
		w.clock.tick.Store(math.MaxUint64 - 5)

		err = w.Initialize(nil, nil)
		require.Error(t, err)
		require.Equal(t, ErrTypeTickExhaustion, errors.Type(err))
	})
}

func TestWorldStep(t *testing.T) {
	ctx := context.Background()

	t.Run("stepping before initialization fails", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		_, err = w.Step(ctx)
		require.Error(t, err)
		require.Equal(t, ErrTypeBadState, errors.Type(err))
	})

	t.Run("a step produces the tick's edges and snapshot", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		agents := stationaryAgents(
			geometry.NewVec2D(5, 5),
			geometry.NewVec2D(5.5, 5),
			geometry.NewVec2D(50, 50),
		)
		require.NoError(t, w.Initialize(nil, agents))

		res, err := w.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), res.Tick)
		require.Equal(t, []models.ContactEdge{{A: 1, B: 2}}, res.Edges)
		require.Len(t, res.Agents, 3)
		require.Equal(t, StateStepping, w.State())
		require.Equal(t, uint64(1), w.Tick())
	})

	t.Run("agents are conserved across steps", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Movement.JitterMag = 2

		w, err := New(cfg)
		require.NoError(t, err)

		agents := stationaryAgents(
			geometry.NewVec2D(10, 10),
			geometry.NewVec2D(20, 20),
			geometry.NewVec2D(30, 30),
			geometry.NewVec2D(40, 40),
			geometry.NewVec2D(50, 50),
		)
		require.NoError(t, w.Initialize(nil, agents))

		for i := 0; i < 50; i++ {
			_, err := w.Step(ctx)
			require.NoError(t, err)
			require.Len(t, w.QueryRegion(w.Bounds()), 5)
		}
	})

	t.Run("a canceled context fails the step", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)
		require.NoError(t, w.Initialize(nil, stationaryAgents(geometry.NewVec2D(1, 1))))

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = w.Step(canceled)
		require.Error(t, err)
	})

	t.Run("ten thousand steps count exactly ten thousand ticks", func(t *testing.T) {
		w, err := New(newTestWorldConfig())
		require.NoError(t, err)

		agents := stationaryAgents(
			geometry.NewVec2D(5, 5),
			geometry.NewVec2D(6, 5),
			geometry.NewVec2D(7, 5),
		)
		require.NoError(t, w.Initialize(nil, agents))

		var last TickResult
		for i := 0; i < 10000; i++ {
			last, err = w.Step(ctx)
			require.NoError(t, err)
		}
		require.Equal(t, uint64(10000), last.Tick)
		require.Equal(t, uint64(10000), w.Tick())
	})
}

func TestWorldInfectionHook(t *testing.T) {
	ctx := context.Background()

	t.Run("the hook sees the tick's edges and snapshot", func(t *testing.T) {
		cfg := newTestWorldConfig()

		var gotTick uint64
		var gotEdges []models.ContactEdge
		var gotAgents []models.AgentSnapshot
		cfg.Infection = infectionModelStub{
			updateHealth: func(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
				gotTick = tick
				gotEdges = edges
				gotAgents = agents
				return nil
			},
		}

		w, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, w.Initialize(nil, stationaryAgents(
			geometry.NewVec2D(5, 5),
			geometry.NewVec2D(5.5, 5),
		)))

		_, err = w.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), gotTick)
		require.Equal(t, []models.ContactEdge{{A: 1, B: 2}}, gotEdges)
		require.Len(t, gotAgents, 2)
	})

	t.Run("updates are applied before the next tick", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Infection = infectionModelStub{
			updateHealth: func(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
				if tick != 1 {
					return nil
				}
				return []models.HealthUpdate{{AgentID: 1, Status: models.HealthExposed}}
			},
		}

		w, err := New(cfg)
		require.NoError(t, err)

		agents := stationaryAgents(geometry.NewVec2D(5, 5))
		require.NoError(t, w.Initialize(nil, agents))

		res, err := w.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, []models.HealthUpdate{{AgentID: 1, Status: models.HealthExposed}}, res.Updates)
		require.Equal(t, models.HealthExposed, res.Agents[0].Status)
		require.Equal(t, uint64(1), res.Agents[0].StatusTick)

		status, tick := agents[0].Health()
		require.Equal(t, models.HealthExposed, status)
		require.Equal(t, uint64(1), tick)
	})

	t.Run("a dead agent is retired but keeps appearing in snapshots", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Infection = infectionModelStub{
			updateHealth: func(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
				if tick != 1 {
					return nil
				}
				return []models.HealthUpdate{{AgentID: 2, Status: models.HealthDead}}
			},
		}

		w, err := New(cfg)
		require.NoError(t, err)

		places := []*models.Place{
			models.NewPlace(1, models.PlaceHome, geometry.NewVec2D(5, 5), 0),
		}
		agents := stationaryAgents(geometry.NewVec2D(5, 5), geometry.NewVec2D(5.5, 5))
		agents[1].HomeID = 1

		require.NoError(t, w.Initialize(places, agents))

		res, err := w.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, models.HealthDead, res.Agents[1].Status)
		require.Equal(t, 1, w.LiveCount())
		require.Len(t, w.QueryRegion(w.Bounds()), 1)
		require.False(t, places[0].IsAssigned(2))

		// The dead agent neither moves nor makes contacts.
		res, err = w.Step(ctx)
		require.NoError(t, err)
		require.Empty(t, res.Edges)
		require.Len(t, res.Agents, 2)
		require.Equal(t, models.HealthDead, res.Agents[1].Status)
	})

	t.Run("updates for retired agents are ignored", func(t *testing.T) {
		cfg := newTestWorldConfig()
		cfg.Infection = infectionModelStub{
			updateHealth: func(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
				switch tick {
				case 1:
					return []models.HealthUpdate{{AgentID: 1, Status: models.HealthDead}}
				default:
					return []models.HealthUpdate{{AgentID: 1, Status: models.HealthRecovered}}
				}
			},
		}

		w, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, w.Initialize(nil, stationaryAgents(geometry.NewVec2D(5, 5))))

		_, err = w.Step(ctx)
		require.NoError(t, err)

		res, err := w.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, models.HealthDead, res.Agents[0].Status)
	})
}

func TestWorldHistory(t *testing.T) {
	cfg := newTestWorldConfig()
	cfg.HistorySize = 4

	w, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Initialize(nil, stationaryAgents(
		geometry.NewVec2D(5, 5),
		geometry.NewVec2D(5.5, 5),
	)))

	_, err = w.Step(context.Background())
	require.NoError(t, err)

	edges, ok := w.History().EdgesAt(1)
	require.True(t, ok)
	require.Equal(t, []models.ContactEdge{{A: 1, B: 2}}, edges)
}

func TestWorldStop(t *testing.T) {
	w, err := New(newTestWorldConfig())
	require.NoError(t, err)
	require.NoError(t, w.Initialize(nil, nil))

	w.Stop()
	require.Equal(t, StateStopped, w.State())

	_, err = w.Step(context.Background())
	require.Error(t, err)
	require.Equal(t, ErrTypeBadState, errors.Type(err))

	w.Stop()
	require.Equal(t, StateStopped, w.State())
}
