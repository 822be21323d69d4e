package scenario

import (
	"math"
	"math/rand"

	"github.com/aukilabs/go-tooling/pkg/errors"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
)

// maxRejections bounds the rejection sampling loop; past it the sampler
// falls back to a uniform draw.
const maxRejections = 32

// GenConfig holds world generation parameters.
type GenConfig struct {
	Width  float64
	Height float64

	Agents  int
	Homes   int
	Works   int
	Schools int

	// HomeCapacity, WorkCapacity and SchoolCapacity bound each generated
	// place. Zero means unlimited.
	HomeCapacity   int
	WorkCapacity   int
	SchoolCapacity int

	// ChildRatio is the fraction of agents given a school age (5 to 17);
	// the rest get a working age (18 to 90).
	ChildRatio float64

	// Clustered samples positions against a simplex noise density field
	// instead of uniformly, so the town bunches into neighborhoods.
	Clustered bool

	Seed int64
}

// DefaultGenConfig returns a small commuter town.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:        100,
		Height:       100,
		Agents:       200,
		Homes:        40,
		Works:        10,
		Schools:      2,
		HomeCapacity: 8,
		ChildRatio:   0.2,
		Seed:         1,
	}
}

func (cfg GenConfig) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("world sides must be positive").
			WithType(ErrTypeBadScenario).
			WithTag("width", cfg.Width).
			WithTag("height", cfg.Height)
	}
	if cfg.Agents < 0 || cfg.Homes < 0 || cfg.Works < 0 || cfg.Schools < 0 {
		return errors.New("counts cannot be negative").
			WithType(ErrTypeBadScenario)
	}
	if cfg.HomeCapacity < 0 || cfg.WorkCapacity < 0 || cfg.SchoolCapacity < 0 {
		return errors.New("capacities cannot be negative").
			WithType(ErrTypeBadScenario)
	}
	if cfg.ChildRatio < 0 || cfg.ChildRatio > 1 {
		return errors.New("child ratio must be within [0, 1]").
			WithType(ErrTypeBadScenario).
			WithTag("child_ratio", cfg.ChildRatio)
	}
	return nil
}

func (cfg GenConfig) bounds() geometry.Rect {
	return geometry.NewRect(geometry.NewVec2D(0, 0), geometry.NewVec2D(cfg.Width, cfg.Height))
}

// Generate builds a scenario from the config. The same config always
// produces the same scenario. Children are assigned a school, adults a
// workplace; whoever finds no open home starts at a random position.
func Generate(cfg GenConfig) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sample := uniformSampler(rng, cfg)
	if cfg.Clustered {
		sample = clusteredSampler(rng, cfg)
	}

	s := &Scenario{
		Name:  "generated",
		Seed:  cfg.Seed,
		World: WorldSpec{Width: cfg.Width, Height: cfg.Height},
	}

	addPlaces := func(n int, kind models.PlaceKind, capacity int) []int {
		ids := make([]int, 0, n)
		for i := 0; i < n; i++ {
			p := sample()
			s.Places = append(s.Places, PlaceSpec{
				Kind:     string(kind),
				X:        p.X,
				Y:        p.Y,
				Capacity: capacity,
			})
			ids = append(ids, len(s.Places))
		}
		return ids
	}

	homes := addPlaces(cfg.Homes, models.PlaceHome, cfg.HomeCapacity)
	works := addPlaces(cfg.Works, models.PlaceWork, cfg.WorkCapacity)
	schools := addPlaces(cfg.Schools, models.PlaceSchool, cfg.SchoolCapacity)

	occupancy := make(map[int]int, len(s.Places))

	for i := 0; i < cfg.Agents; i++ {
		age := 18 + rng.Intn(73)
		if rng.Float64() < cfg.ChildRatio {
			age = 5 + rng.Intn(13)
		}

		home := pickPlace(rng, s, occupancy, homes)
		var work, school int
		if age < 18 {
			school = pickPlace(rng, s, occupancy, schools)
		} else {
			work = pickPlace(rng, s, occupancy, works)
		}

		pos := sample()
		if home > 0 {
			pos = nearPlace(rng, cfg, s.Places[home-1])
		}

		s.Agents = append(s.Agents, AgentSpec{
			X:        pos.X,
			Y:        pos.Y,
			AgeYears: age,
			Home:     uint32(home),
			Work:     uint32(work),
			School:   uint32(school),
		})
	}
	return s, nil
}

// pickPlace draws a random candidate with free capacity, or zero when all
// candidates are full.
func pickPlace(rng *rand.Rand, s *Scenario, occupancy map[int]int, candidates []int) int {
	open := make([]int, 0, len(candidates))
	for _, id := range candidates {
		capacity := s.Places[id-1].Capacity
		if capacity == 0 || occupancy[id] < capacity {
			open = append(open, id)
		}
	}
	if len(open) == 0 {
		return 0
	}

	id := open[rng.Intn(len(open))]
	occupancy[id]++
	return id
}

// nearPlace scatters a point around the place within a twentieth of the
// world diagonal.
func nearPlace(rng *rand.Rand, cfg GenConfig, p PlaceSpec) geometry.Vec2D {
	radius := math.Hypot(cfg.Width, cfg.Height) / 20
	angle := 2 * math.Pi * rng.Float64()
	mag := radius * rng.Float64()

	pos := geometry.NewVec2D(p.X+mag*math.Cos(angle), p.Y+mag*math.Sin(angle))
	return pos.Clamp(cfg.bounds())
}

func uniformSampler(rng *rand.Rand, cfg GenConfig) func() geometry.Vec2D {
	return func() geometry.Vec2D {
		return geometry.NewVec2D(rng.Float64()*cfg.Width, rng.Float64()*cfg.Height)
	}
}

// clusteredSampler rejection-samples against a layered noise field so
// accepted points follow its density.
func clusteredSampler(rng *rand.Rand, cfg GenConfig) func() geometry.Vec2D {
	noise := opensimplex.NewNormalized(cfg.Seed)
	uniform := uniformSampler(rng, cfg)

	return func() geometry.Vec2D {
		for i := 0; i < maxRejections; i++ {
			p := uniform()
			if rng.Float64() < octaveNoise(noise, p.X, p.Y, 3, 0.05, 0.5) {
				return p
			}
		}
		return uniform()
	}
}

// octaveNoise layers noise frequencies for a softer density field.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
