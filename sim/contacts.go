package sim

import (
	"sync"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/quadtree"
)

// ContactBuilder finds every pair of agents within Radius of each other.
// Queries only read the index, so they run in parallel across workers after
// the tick's relocations are applied.
type ContactBuilder struct {
	Radius  float64
	Workers int
}

// Build queries the index with the bounding square of side 2*Radius around
// every agent and keeps candidates within true Euclidean distance, boundary
// included. Each pair is examined from both endpoints and kept only from its
// lower id, so the edge set holds every contact exactly once, canonical and
// sorted, with no self edges.
func (b ContactBuilder) Build(tree *quadtree.Tree, agents []*models.Agent) []models.ContactEdge {
	if len(agents) == 0 {
		return nil
	}

	chunk := chunkSize(len(agents), b.Workers)
	chunkEdges := make([][]models.ContactEdge, (len(agents)+chunk-1)/chunk)

	var wg sync.WaitGroup
	for start := 0; start < len(agents); start += chunk {
		end := start + chunk
		if end > len(agents) {
			end = len(agents)
		}

		wg.Add(1)
		go func(slot, start, end int) {
			defer wg.Done()

			var edges []models.ContactEdge
			for _, a := range agents[start:end] {
				edges = b.appendContacts(edges, tree, a.ID)
			}
			chunkEdges[slot] = edges
		}(start/chunk, start, end)
	}
	wg.Wait()

	var edges []models.ContactEdge
	for _, ce := range chunkEdges {
		edges = append(edges, ce...)
	}

	models.SortContactEdges(edges)
	return edges
}

func (b ContactBuilder) appendContacts(edges []models.ContactEdge, tree *quadtree.Tree, id uint32) []models.ContactEdge {
	pos, ok := tree.Position(id)
	if !ok {
		return edges
	}

	query := geometry.NewRectCentered(pos, geometry.NewVec2D(2*b.Radius, 2*b.Radius))
	for _, otherID := range tree.QueryRange(query) {
		if otherID <= id {
			continue
		}

		otherPos, ok := tree.Position(otherID)
		if !ok {
			continue
		}
		if pos.Dist(otherPos) <= b.Radius {
			edges = append(edges, models.ContactEdge{A: id, B: otherID})
		}
	}
	return edges
}
