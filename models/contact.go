package models

import "sort"

// ContactEdge is an undirected proximity contact between two agents during
// one tick, canonicalized so that A < B. Two agents produce the same edge no
// matter which of them found the other.
type ContactEdge struct {
	A uint32 `json:"a"`
	B uint32 `json:"b"`
}

// NewContactEdge builds a canonical edge from two agent ids in any order.
func NewContactEdge(a, b uint32) ContactEdge {
	if b < a {
		a, b = b, a
	}
	return ContactEdge{A: a, B: b}
}

// Other returns the endpoint that is not the given agent.
func (e ContactEdge) Other(id uint32) uint32 {
	if id == e.A {
		return e.B
	}
	return e.A
}

// SortContactEdges orders edges by (A, B), giving edge sets a deterministic
// order independent of how they were collected.
func SortContactEdges(edges []ContactEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
}
