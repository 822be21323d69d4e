package disease

import (
	"math/rand"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/runesim/kaun/models"
)

const (
	ErrTypeBadConfig = "disease_bad_config"
)

const (
	DefaultIncubationTicks = 48
	DefaultInfectiousTicks = 96
	DefaultTransmission    = 0.4
	DefaultIndexCases      = 1
)

// Config tunes the reference SEIR model.
type Config struct {
	// IncubationTicks is how long an exposed agent incubates before turning
	// infectious.
	IncubationTicks uint64

	// InfectiousTicks is how long an agent stays infectious before it
	// recovers.
	InfectiousTicks uint64

	// Transmission is the probability that one contact edge exposes a
	// susceptible agent during one tick.
	Transmission float64

	// Fatality converts the annual mortality curve into a per-tick death
	// probability. Zero disables death.
	Fatality float64

	// IndexCases is the number of agents exposed when the model first runs.
	IndexCases int

	// Seed drives the model's random draws.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		IncubationTicks: DefaultIncubationTicks,
		InfectiousTicks: DefaultInfectiousTicks,
		Transmission:    DefaultTransmission,
		IndexCases:      DefaultIndexCases,
	}
}

func (c Config) Validate() error {
	if c.Transmission < 0 || c.Transmission > 1 {
		return errors.New("transmission must be a probability").
			WithType(ErrTypeBadConfig).
			WithTag("transmission", c.Transmission)
	}
	if c.Fatality < 0 {
		return errors.New("fatality cannot be negative").
			WithType(ErrTypeBadConfig).
			WithTag("fatality", c.Fatality)
	}
	if c.IndexCases < 0 {
		return errors.New("index cases cannot be negative").
			WithType(ErrTypeBadConfig).
			WithTag("index_cases", c.IndexCases)
	}
	return nil
}

// Model is a reference SEIR model with optional age-based mortality, fed by
// the simulation's infection hook. It seeds the configured index cases the
// first time it runs, walks exposure and recovery timers off each agent's
// status tick and spreads exposure across the tick's contact edges.
type Model struct {
	cfg Config
	rng *rand.Rand

	seedOnce sync.Once
}

func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Model{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (m *Model) UpdateHealth(tick uint64, edges []models.ContactEdge, agents []models.AgentSnapshot) []models.HealthUpdate {
	var updates []models.HealthUpdate

	// pending holds agents already exposed during this call, so that two
	// infectious neighbors cannot expose the same agent twice.
	pending := make(map[uint32]struct{})

	m.seedOnce.Do(func() {
		updates = m.seedIndexCases(agents, pending)
	})

	byID := make(map[uint32]models.AgentSnapshot, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	for _, a := range agents {
		if a.Status.Terminal() {
			continue
		}

		if m.cfg.Fatality > 0 {
			p := m.cfg.Fatality * deathProbability(a.AgeYears, a.Status == models.HealthInfectious)
			if m.rng.Float64() < p {
				updates = append(updates, models.HealthUpdate{AgentID: a.ID, Status: models.HealthDead})
				continue
			}
		}

		switch a.Status {
		case models.HealthExposed:
			if tick-a.StatusTick > m.cfg.IncubationTicks {
				updates = append(updates, models.HealthUpdate{AgentID: a.ID, Status: models.HealthInfectious})
			}

		case models.HealthInfectious:
			if tick-a.StatusTick > m.cfg.InfectiousTicks {
				updates = append(updates, models.HealthUpdate{AgentID: a.ID, Status: models.HealthRecovered})
			}
		}
	}

	for _, e := range edges {
		updates = m.tryExpose(updates, byID, pending, e.A, e.B)
		updates = m.tryExpose(updates, byID, pending, e.B, e.A)
	}

	return updates
}

func (m *Model) seedIndexCases(agents []models.AgentSnapshot, pending map[uint32]struct{}) []models.HealthUpdate {
	if m.cfg.IndexCases <= 0 || len(agents) == 0 {
		return nil
	}

	var updates []models.HealthUpdate
	for _, i := range m.rng.Perm(len(agents)) {
		if len(updates) == m.cfg.IndexCases {
			break
		}

		a := agents[i]
		if a.Status != models.HealthSusceptible {
			continue
		}

		pending[a.ID] = struct{}{}
		updates = append(updates, models.HealthUpdate{AgentID: a.ID, Status: models.HealthExposed})

		logs.WithTag("agent_id", a.ID).Info("index case exposed")
	}
	return updates
}

// tryExpose rolls one transmission from an infectious agent to a susceptible
// contact and appends the exposure, attributed to its source.
func (m *Model) tryExpose(updates []models.HealthUpdate, byID map[uint32]models.AgentSnapshot, pending map[uint32]struct{}, from, to uint32) []models.HealthUpdate {
	src, ok := byID[from]
	if !ok || src.Status != models.HealthInfectious {
		return updates
	}

	dst, ok := byID[to]
	if !ok || dst.Status != models.HealthSusceptible {
		return updates
	}

	if _, ok := pending[to]; ok {
		return updates
	}

	if m.rng.Float64() >= m.cfg.Transmission {
		return updates
	}

	pending[to] = struct{}{}
	return append(updates, models.HealthUpdate{
		AgentID:  to,
		Status:   models.HealthExposed,
		SourceID: from,
	})
}

// deathProbability returns the annual probability of dying at the given age,
// a piecewise linear fit of the SSA 2019 actuarial life table averaged over
// both sexes, with a flat increase for infectious agents.
func deathProbability(ageYears int, infectious bool) float64 {
	age := float64(ageYears)

	var annual float64
	switch {
	case ageYears <= 20:
		annual = 0.001
	case ageYears <= 50:
		annual = 0.0001*(age-20) + 0.001
	case ageYears <= 80:
		annual = 0.0001*(age-50) + 0.005
	case ageYears <= 100:
		annual = 0.01*(age-80) + 0.05
	case ageYears <= 119:
		annual = 0.03*(age-100) + 0.2
	default:
		annual = 0.9
	}

	if infectious {
		annual += 0.001
	}
	return annual
}
