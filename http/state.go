package http

import (
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/sim"
	"github.com/runesim/kaun/trace"
	"github.com/segmentio/encoding/json"
)

// statePayload is the /state document: run identity, clock, population and
// the current agent snapshot.
type statePayload struct {
	RunID     string                 `json:"run_id"`
	State     sim.State              `json:"state"`
	Tick      uint64                 `json:"tick"`
	LiveCount int                    `json:"live_count"`
	Bounds    geometry.Rect          `json:"bounds"`
	Agents    []models.AgentSnapshot `json:"agents"`
}

// HandleState serves a point-in-time view of the world.
func HandleState(world *sim.World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statePayload{
			RunID:     world.RunID,
			State:     world.State(),
			Tick:      world.Tick(),
			LiveCount: world.LiveCount(),
			Bounds:    world.Bounds(),
			Agents:    world.Snapshot(),
		})
	}
}

type contactsPayload struct {
	Tick      uint64               `json:"tick"`
	EdgeCount int                  `json:"edge_count"`
	Edges     []models.ContactEdge `json:"edges"`
}

// HandleContacts serves the contact edges of a retained tick. Without a
// tick query parameter it serves the most recent one.
func HandleContacts(world *sim.World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := world.History()

		rawTick := r.URL.Query().Get("tick")
		if rawTick == "" {
			recent := history.Recent(1)
			if len(recent) == 0 {
				http.Error(w, "no tick retained", http.StatusNotFound)
				return
			}

			rec := recent[0]
			writeJSON(w, contactsPayload{
				Tick:      rec.Tick,
				EdgeCount: len(rec.Edges),
				Edges:     rec.Edges,
			})
			return
		}

		tick, err := strconv.ParseUint(rawTick, 10, 64)
		if err != nil {
			http.Error(w, "malformed tick", http.StatusBadRequest)
			return
		}

		edges, ok := history.EdgesAt(tick)
		if !ok {
			http.Error(w, "tick not retained", http.StatusNotFound)
			return
		}

		writeJSON(w, contactsPayload{
			Tick:      tick,
			EdgeCount: len(edges),
			Edges:     edges,
		})
	}
}

// HandleGraphDOT serves the infection lineage in Graphviz DOT form.
func HandleGraphDOT(lineage *trace.Graph) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := lineage.DOT()
		if err != nil {
			logs.Error(errors.New("rendering infection lineage failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.Write(b)
	}
}

// HandleIndexInfo serves the spatial index structure counts.
func HandleIndexInfo(world *sim.World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, world.IndexInfo())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Error(errors.New("encoding http response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
