// Package scenario describes worlds. A scenario names the world bounds, the
// places agents commute between and the agents themselves; it comes from a
// YAML file or from the deterministic generator and materializes into the
// model types the simulation consumes.
package scenario

import (
	"bytes"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
)

const ErrTypeBadScenario = "bad_scenario"

// Scenario is a world description. Places are numbered from 1 in file
// order and agent place references use those numbers, zero meaning none.
type Scenario struct {
	Name string `yaml:"name"`
	Seed int64  `yaml:"seed"`

	World  WorldSpec   `yaml:"world"`
	Places []PlaceSpec `yaml:"places"`
	Agents []AgentSpec `yaml:"agents"`
}

// WorldSpec sizes the world rectangle, anchored at the origin.
type WorldSpec struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	// ContactRadius overrides the engine default when positive.
	ContactRadius float64 `yaml:"contact_radius,omitempty"`
}

type PlaceSpec struct {
	Kind     string  `yaml:"kind"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Capacity int     `yaml:"capacity,omitempty"`
}

type AgentSpec struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	AgeYears int     `yaml:"age_years,omitempty"`

	Home   uint32 `yaml:"home,omitempty"`
	Work   uint32 `yaml:"work,omitempty"`
	School uint32 `yaml:"school,omitempty"`
}

// Load reads and validates a scenario file. Unknown YAML fields are
// rejected so typos fail loudly.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading scenario file failed").
			WithTag("path", path).
			Wrap(err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, errors.New("parsing scenario file failed").
			WithType(ErrTypeBadScenario).
			WithTag("path", path).
			Wrap(err)
	}

	if err := s.Validate(); err != nil {
		return nil, errors.New("scenario file is invalid").
			WithTag("path", path).
			Wrap(err)
	}
	return &s, nil
}

// Bounds is the world rectangle anchored at the origin.
func (s *Scenario) Bounds() geometry.Rect {
	return geometry.NewRect(geometry.NewVec2D(0, 0), geometry.NewVec2D(s.World.Width, s.World.Height))
}

func (s *Scenario) Validate() error {
	if s.World.Width <= 0 || s.World.Height <= 0 {
		return errors.New("world sides must be positive").
			WithType(ErrTypeBadScenario).
			WithTag("width", s.World.Width).
			WithTag("height", s.World.Height)
	}
	if s.World.ContactRadius < 0 {
		return errors.New("contact radius cannot be negative").
			WithType(ErrTypeBadScenario).
			WithTag("contact_radius", s.World.ContactRadius)
	}

	bounds := s.Bounds()

	kinds := make([]models.PlaceKind, len(s.Places))
	for i, p := range s.Places {
		kind := models.PlaceKind(p.Kind)
		switch kind {
		case models.PlaceHome, models.PlaceWork, models.PlaceSchool:
		default:
			return errors.New("unknown place kind").
				WithType(ErrTypeBadScenario).
				WithTag("place", i+1).
				WithTag("kind", p.Kind)
		}
		kinds[i] = kind

		if !bounds.Contains(geometry.NewVec2D(p.X, p.Y)) {
			return errors.New("place lies outside the world").
				WithType(ErrTypeBadScenario).
				WithTag("place", i+1)
		}
		if p.Capacity < 0 {
			return errors.New("place capacity cannot be negative").
				WithType(ErrTypeBadScenario).
				WithTag("place", i+1)
		}
	}

	for i, a := range s.Agents {
		if !bounds.Contains(geometry.NewVec2D(a.X, a.Y)) {
			return errors.New("agent starts outside the world").
				WithType(ErrTypeBadScenario).
				WithTag("agent", i+1)
		}
		if a.AgeYears < 0 {
			return errors.New("agent age cannot be negative").
				WithType(ErrTypeBadScenario).
				WithTag("agent", i+1)
		}

		if err := checkPlaceRef(i, a.Home, kinds, models.PlaceHome); err != nil {
			return err
		}
		if err := checkPlaceRef(i, a.Work, kinds, models.PlaceWork); err != nil {
			return err
		}
		if err := checkPlaceRef(i, a.School, kinds, models.PlaceSchool); err != nil {
			return err
		}
	}
	return nil
}

func checkPlaceRef(agentIdx int, ref uint32, kinds []models.PlaceKind, want models.PlaceKind) error {
	if ref == 0 {
		return nil
	}
	if int(ref) > len(kinds) {
		return errors.New("agent references an unknown place").
			WithType(ErrTypeBadScenario).
			WithTag("agent", agentIdx+1).
			WithTag("place", ref)
	}
	if kinds[ref-1] != want {
		return errors.New("agent references a place of the wrong kind").
			WithType(ErrTypeBadScenario).
			WithTag("agent", agentIdx+1).
			WithTag("place", ref).
			WithTag("kind", kinds[ref-1]).
			WithTag("want", want)
	}
	return nil
}

// Build materializes the scenario into model values. Place and agent ids
// are their 1-based positions in the scenario.
func (s *Scenario) Build() ([]*models.Place, []*models.Agent, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}

	places := make([]*models.Place, len(s.Places))
	for i, p := range s.Places {
		places[i] = models.NewPlace(
			uint32(i+1),
			models.PlaceKind(p.Kind),
			geometry.NewVec2D(p.X, p.Y),
			p.Capacity,
		)
	}

	agents := make([]*models.Agent, len(s.Agents))
	for i, ag := range s.Agents {
		a := models.NewAgent(uint32(i+1), geometry.NewVec2D(ag.X, ag.Y))
		a.AgeYears = ag.AgeYears
		a.HomeID = ag.Home
		a.WorkID = ag.Work
		a.SchoolID = ag.School
		agents[i] = a
	}
	return places, agents, nil
}
