// Package smoketest runs a short self-contained simulation and verifies the
// engine's guarantees against it, tick by tick.
package smoketest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/scenario"
	"github.com/runesim/kaun/sim"
)

const (
	DefaultTicks  = 200
	DefaultAgents = 50

	smokeContactRadius = 2
)

// Check names reported in Results, in report order.
const (
	CheckClock      = "clock"
	CheckPopulation = "population"
	CheckBounds     = "bounds"
	CheckContacts   = "contacts"
	CheckEdgeOrder  = "edge_order"
)

var checkNames = []string{
	CheckClock,
	CheckPopulation,
	CheckBounds,
	CheckContacts,
	CheckEdgeOrder,
}

// Options configures a smoke test run.
type Options struct {
	// Ticks is the run length. Zero uses DefaultTicks.
	Ticks uint64

	// Agents is the population size. Zero uses DefaultAgents.
	Agents int

	// Seed drives the generated town and the run.
	Seed int64

	// SendResult receives the finished results.
	SendResult func(context.Context, Results) error
}

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Check is one verified engine guarantee. Detail names the first offending
// tick when it failed.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Results is the report of one smoke test run.
type Results struct {
	RunID            string  `json:"run_id"`
	Seed             int64   `json:"seed"`
	Ticks            uint64  `json:"ticks"`
	Agents           int     `json:"agents"`
	Status           Status  `json:"status"`
	Checks           []Check `json:"checks"`
	DurationMilliSec float64 `json:"duration_ms"`
}

// Request overrides the configured run parameters. Zero values keep them.
type Request struct {
	Ticks  uint64 `json:"ticks"`
	Agents int    `json:"agents"`
	Seed   int64  `json:"seed"`
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a run in the background and reports completion
// through Options.SendResult. The response only acknowledges the start.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Error(errors.New("reading smoke test request failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if len(b) != 0 {
			var req Request
			if err := json.Unmarshal(b, &req); err != nil {
				http.Error(w, "malformed smoke test request", http.StatusBadRequest)
				return
			}
			if req.Ticks != 0 {
				opts.Ticks = req.Ticks
			}
			if req.Agents != 0 {
				opts.Agents = req.Agents
			}
			if req.Seed != 0 {
				opts.Seed = req.Seed
			}
		}

		go func() {
			defer func() {
				// cancel a test context on exit to signal the run finished
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, opts)
			if err != nil {
				logs.Warn(errors.New("smoke test run failed").Wrap(err))
				return
			}

			if opts.SendResult != nil {
				if err := opts.SendResult(ctx, res); err != nil {
					logs.WithTag("seed", res.Seed).
						Warn(errors.New("sending smoke test results failed").Wrap(err))
				}
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run generates a small town, steps it for the configured number of ticks
// and checks every tick against the engine's guarantees: an exact clock, a
// conserved population, positions inside the bounds and a contact edge set
// that matches a pairwise scan, canonical and sorted.
func Run(ctx context.Context, opts Options) (Results, error) {
	start := time.Now()

	ticks := opts.Ticks
	if ticks == 0 {
		ticks = DefaultTicks
	}
	agents := opts.Agents
	if agents == 0 {
		agents = DefaultAgents
	}

	scn, err := scenario.Generate(scenario.GenConfig{
		Width:        40,
		Height:       40,
		Agents:       agents,
		Homes:        (agents + 4) / 5,
		Works:        4,
		Schools:      1,
		HomeCapacity: 8,
		ChildRatio:   0.2,
		Seed:         opts.Seed,
	})
	if err != nil {
		return Results{}, errors.New("generating smoke test town failed").Wrap(err)
	}

	places, population, err := scn.Build()
	if err != nil {
		return Results{}, errors.New("building smoke test town failed").Wrap(err)
	}

	world, err := sim.New(sim.Config{
		Bounds:        scn.Bounds(),
		ContactRadius: smokeContactRadius,
		Movement:      sim.DefaultMovementPolicy(),
		Workers:       2,
		Seed:          opts.Seed,
		RunTicks:      ticks,
	})
	if err != nil {
		return Results{}, errors.New("assembling smoke test world failed").Wrap(err)
	}
	if err := world.Initialize(places, population); err != nil {
		return Results{}, errors.New("populating smoke test world failed").Wrap(err)
	}
	defer world.Stop()

	failures := map[string]string{}
	fail := func(name, detail string) {
		if _, ok := failures[name]; !ok {
			failures[name] = detail
		}
	}

	bounds := world.Bounds()
	for i := uint64(1); i <= ticks; i++ {
		res, err := world.Step(ctx)
		if err != nil {
			return Results{}, errors.New("stepping smoke test world failed").
				WithTag("tick", i).
				Wrap(err)
		}
		verifyTick(res, i, len(population), bounds, fail)
	}

	status := StatusSuccess
	checks := make([]Check, 0, len(checkNames))
	for _, name := range checkNames {
		detail, failed := failures[name]
		if failed {
			status = StatusFailed
		}
		checks = append(checks, Check{Name: name, Passed: !failed, Detail: detail})
	}

	return Results{
		RunID:            world.RunID,
		Seed:             opts.Seed,
		Ticks:            ticks,
		Agents:           len(population),
		Status:           status,
		Checks:           checks,
		DurationMilliSec: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

func verifyTick(res sim.TickResult, wantTick uint64, population int, bounds geometry.Rect, fail func(name, detail string)) {
	if res.Tick != wantTick {
		fail(CheckClock, fmt.Sprintf("tick %d reported as %d", wantTick, res.Tick))
	}

	if len(res.Agents) != population {
		fail(CheckPopulation, fmt.Sprintf("%d of %d agents reported at tick %d", len(res.Agents), population, res.Tick))
	}

	for _, s := range res.Agents {
		if !bounds.Contains(s.Position) {
			fail(CheckBounds, fmt.Sprintf("agent %d left the world at tick %d", s.ID, res.Tick))
			break
		}
	}

	if !edgesEqual(res.Edges, pairwiseEdges(res.Agents, smokeContactRadius)) {
		fail(CheckContacts, fmt.Sprintf("edge set diverges from the pairwise scan at tick %d", res.Tick))
	}

	for i, e := range res.Edges {
		if e.A >= e.B {
			fail(CheckEdgeOrder, fmt.Sprintf("edge {%d %d} is not canonical at tick %d", e.A, e.B, res.Tick))
			break
		}
		if i != 0 && !edgeLess(res.Edges[i-1], e) {
			fail(CheckEdgeOrder, fmt.Sprintf("edges out of order at tick %d", res.Tick))
			break
		}
	}
}

// pairwiseEdges recomputes the tick's contacts with a full O(n^2) scan over
// the snapshot, the reference the spatial index must agree with.
func pairwiseEdges(agents []models.AgentSnapshot, radius float64) []models.ContactEdge {
	var edges []models.ContactEdge
	for i := 0; i < len(agents); i++ {
		if agents[i].Status == models.HealthDead {
			continue
		}
		for j := i + 1; j < len(agents); j++ {
			if agents[j].Status == models.HealthDead {
				continue
			}
			if agents[i].Position.Dist(agents[j].Position) <= radius {
				edges = append(edges, models.NewContactEdge(agents[i].ID, agents[j].ID))
			}
		}
	}
	models.SortContactEdges(edges)
	return edges
}

func edgesEqual(got, want []models.ContactEdge) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func edgeLess(a, b models.ContactEdge) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}
