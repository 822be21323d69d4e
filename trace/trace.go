package trace

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/models"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// Graph is the who-infected-whom lineage of a run. Index cases are roots;
// every other exposure is a directed edge from its source, tagged with the
// tick it happened at.
type Graph struct {
	mutex sync.RWMutex
	g     *simple.DirectedGraph
}

func NewGraph() *Graph {
	return &Graph{g: simple.NewDirectedGraph()}
}

// Record adds one infection event. A zero source marks an index case, which
// joins the graph without an incoming edge.
func (t *Graph) Record(sourceID, targetID uint32, tick uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	target := agentNode(targetID)
	if t.g.Node(target.ID()) == nil {
		t.g.AddNode(target)
	}

	if sourceID == 0 || sourceID == targetID {
		return
	}

	t.g.SetEdge(infectionEdge{
		from: agentNode(sourceID),
		to:   target,
		tick: tick,
	})
}

// RecordUpdates records every exposure among the tick's applied updates.
func (t *Graph) RecordUpdates(tick uint64, updates []models.HealthUpdate) {
	for _, u := range updates {
		if u.Status == models.HealthExposed {
			t.Record(u.SourceID, u.AgentID, tick)
		}
	}
}

// Len returns the number of agents in the lineage.
func (t *Graph) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.g.Nodes().Len()
}

// AverageDegree returns the mean number of incident edges per node.
func (t *Graph) AverageDegree() float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	count := t.g.Nodes().Len()
	if count == 0 {
		return 0
	}

	total := 0
	for nodes := t.g.Nodes(); nodes.Next(); {
		id := nodes.Node().ID()
		total += t.g.From(id).Len() + t.g.To(id).Len()
	}
	return float64(total) / float64(count)
}

// DOT renders the lineage in Graphviz DOT form.
func (t *Graph) DOT() ([]byte, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	b, err := dot.Marshal(t.g, "infection_trace", "", "  ")
	if err != nil {
		return nil, errors.New("encoding infection trace failed").Wrap(err)
	}
	return b, nil
}

type agentNode int64

func (n agentNode) ID() int64 {
	return int64(n)
}

func (n agentNode) DOTID() string {
	return fmt.Sprintf("agent_%d", int64(n))
}

type infectionEdge struct {
	from, to agentNode
	tick     uint64
}

func (e infectionEdge) From() graph.Node {
	return e.from
}

func (e infectionEdge) To() graph.Node {
	return e.to
}

func (e infectionEdge) ReversedEdge() graph.Edge {
	return infectionEdge{from: e.to, to: e.from, tick: e.tick}
}

func (e infectionEdge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "tick", Value: strconv.FormatUint(e.tick, 10)},
	}
}
