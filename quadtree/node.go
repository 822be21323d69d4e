package quadtree

import "github.com/runesim/kaun/geometry"

type nodeKind uint8

const (
	nodeLeaf nodeKind = iota
	nodeInternal
)

const noParent = -1

// node is one slot in the tree arena. Links to the parent and to children
// are arena indices, never pointers. A leaf holds agent ids in agents; an
// internal node holds exactly four child indices ordered by quadrant.
type node struct {
	kind     nodeKind
	parent   int
	depth    int
	bounds   geometry.Rect
	agents   []uint32
	children [4]int
}

func newLeaf(parent, depth int, bounds geometry.Rect) node {
	return node{
		kind:   nodeLeaf,
		parent: parent,
		depth:  depth,
		bounds: bounds,
	}
}

func (n *node) isLeaf() bool {
	return n.kind == nodeLeaf
}

func (n *node) removeAgent(id uint32) {
	for i, agentID := range n.agents {
		if agentID == id {
			n.agents = append(n.agents[:i], n.agents[i+1:]...)
			return
		}
	}
}

// addNode stores the node in the arena, reusing a freed slot when one is
// available, and returns its index.
func (t *Tree) addNode(n node) int {
	if len(t.openNodeIndices) > 0 {
		id := t.openNodeIndices[len(t.openNodeIndices)-1]
		t.openNodeIndices = t.openNodeIndices[:len(t.openNodeIndices)-1]
		t.nodes[id] = n
		return id
	}

	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// removeNode releases a slot. The slot content is only overwritten once the
// index is handed to another node.
func (t *Tree) removeNode(id int) {
	if id == len(t.nodes)-1 {
		t.nodes = t.nodes[:len(t.nodes)-1]
		return
	}
	t.openNodeIndices = append(t.openNodeIndices, id)
}

// leafForPos descends from the root to the leaf owning pos. Points on a
// quadrant center line descend into the right/top child, which makes the
// owning leaf unique even though sibling bounds share edges. The caller must
// have checked pos against the root bounds.
func (t *Tree) leafForPos(pos geometry.Vec2D) int {
	curr := rootNode
	for {
		n := &t.nodes[curr]
		if n.isLeaf() {
			return curr
		}
		curr = n.children[n.bounds.Quadrant(pos)]
	}
}
