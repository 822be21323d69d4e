package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/geometry"
)

const (
	ErrTypeOutOfBounds    = "quadtree_out_of_bounds"
	ErrTypeDuplicateAgent = "quadtree_duplicate_agent"
	ErrTypeUnknownAgent   = "quadtree_unknown_agent"
	ErrTypeBadConfig      = "quadtree_bad_config"
)

const (
	DefaultLeafCapacity = 4
	DefaultMaxDepth     = 8

	rootNode = 0
)

// Config sets the tree bounds and the split/merge thresholds.
type Config struct {
	// Bounds is the world rectangle covered by the root. Positions outside
	// it are rejected.
	Bounds geometry.Rect

	// LeafCapacity is the number of agents a leaf holds before it splits.
	// Defaults to DefaultLeafCapacity when zero.
	LeafCapacity int

	// MaxDepth bounds the tree height. A leaf at MaxDepth is allowed to
	// exceed LeafCapacity instead of splitting, which keeps clustered
	// agents from splitting forever. Defaults to DefaultMaxDepth when zero.
	MaxDepth int
}

// Tree is an adaptive quadtree over agent positions. Leaves split when they
// exceed the leaf capacity and sibling leaves merge back into their parent
// when their combined population fits again, so the structure follows the
// agents as they move.
//
// Nodes live in an index-addressed arena. Splits and merges rewrite index
// slots under the mutating call; the tree performs no synchronization of its
// own. The simulation mutates it from a single goroutine and only runs
// concurrent reads between mutations.
type Tree struct {
	bounds       geometry.Rect
	leafCapacity int
	maxDepth     int

	nodes           []node
	openNodeIndices []int
	agentToNode     map[uint32]int
	positions       map[uint32]geometry.Vec2D

	saturatedLeaves int
}

// New creates an empty tree covering cfg.Bounds.
func New(cfg Config) (*Tree, error) {
	if cfg.LeafCapacity == 0 {
		cfg.LeafCapacity = DefaultLeafCapacity
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	if cfg.LeafCapacity < 1 {
		return nil, errors.New("leaf capacity must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("leaf_capacity", cfg.LeafCapacity)
	}
	if cfg.MaxDepth < 1 {
		return nil, errors.New("max depth must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("max_depth", cfg.MaxDepth)
	}
	if cfg.Bounds.Width() <= 0 || cfg.Bounds.Height() <= 0 {
		return nil, errors.New("bounds must have positive area").
			WithType(ErrTypeBadConfig).
			WithTag("bounds", cfg.Bounds)
	}

	t := &Tree{
		bounds:       cfg.Bounds,
		leafCapacity: cfg.LeafCapacity,
		maxDepth:     cfg.MaxDepth,
		agentToNode:  make(map[uint32]int),
		positions:    make(map[uint32]geometry.Vec2D),
	}
	t.addNode(newLeaf(noParent, 0, cfg.Bounds))

	return t, nil
}

// Bounds returns the root bounds.
func (t *Tree) Bounds() geometry.Rect {
	return t.bounds
}

// Len returns the number of agents currently held.
func (t *Tree) Len() int {
	return len(t.positions)
}

// Position returns the mirrored position of an agent.
func (t *Tree) Position(id uint32) (geometry.Vec2D, bool) {
	pos, ok := t.positions[id]
	return pos, ok
}

// Insert places an agent in the leaf owning pos, splitting the leaf when it
// outgrows the capacity. Positions outside the root bounds are rejected;
// clamping is the caller's job.
func (t *Tree) Insert(id uint32, pos geometry.Vec2D) error {
	if !t.bounds.Contains(pos) {
		instrumentOutOfBounds(opInsert)
		return errors.New("position outside the tree bounds").
			WithType(ErrTypeOutOfBounds).
			WithTag("agent_id", id).
			WithTag("position", pos).
			WithTag("bounds", t.bounds)
	}
	if _, ok := t.agentToNode[id]; ok {
		return errors.New("agent is already in the tree").
			WithType(ErrTypeDuplicateAgent).
			WithTag("agent_id", id)
	}

	leafID := t.leafForPos(pos)
	t.attachAgent(leafID, id, pos)
	t.checkSplit(leafID)

	instrumentTreeSize(t.NodeCount(), t.Len())
	return nil
}

// Remove deletes an agent from its leaf. When the leaf's parent ends up with
// four child leaves that together fit in one, the children merge back into
// the parent. A removal triggers at most one merge.
func (t *Tree) Remove(id uint32) error {
	leafID, ok := t.agentToNode[id]
	if !ok {
		return errors.New("agent is not in the tree").
			WithType(ErrTypeUnknownAgent).
			WithTag("agent_id", id)
	}

	t.detachAgent(leafID, id)
	delete(t.agentToNode, id)
	delete(t.positions, id)

	t.checkMerge(t.nodes[leafID].parent)

	instrumentTreeSize(t.NodeCount(), t.Len())
	return nil
}

// Relocate moves an agent to newPos as one operation; the agent is never
// absent from the tree in between. When newPos stays inside the agent's
// current leaf only the mirrored position changes. An out-of-bounds newPos
// leaves the tree untouched.
func (t *Tree) Relocate(id uint32, newPos geometry.Vec2D) error {
	oldLeafID, ok := t.agentToNode[id]
	if !ok {
		return errors.New("agent is not in the tree").
			WithType(ErrTypeUnknownAgent).
			WithTag("agent_id", id)
	}
	if !t.bounds.Contains(newPos) {
		instrumentOutOfBounds(opRelocate)
		return errors.New("position outside the tree bounds").
			WithType(ErrTypeOutOfBounds).
			WithTag("agent_id", id).
			WithTag("position", newPos).
			WithTag("bounds", t.bounds)
	}

	if t.nodes[oldLeafID].bounds.Contains(newPos) {
		t.positions[id] = newPos
		return nil
	}

	newLeafID := t.leafForPos(newPos)
	t.attachAgent(newLeafID, id, newPos)
	t.detachAgent(oldLeafID, id)

	t.checkSplit(newLeafID)
	t.checkMerge(t.nodes[oldLeafID].parent)

	instrumentTreeSize(t.NodeCount(), t.Len())
	return nil
}

// QueryRange collects the ids of all agents held by leaves whose bounds
// intersect the query bounds. Subtrees disjoint from the query are never
// visited. Callers needing an exact radius have to distance-filter the
// result themselves.
func (t *Tree) QueryRange(bounds geometry.Rect) []uint32 {
	var found []uint32

	toVisit := make([]int, 0, 16)
	toVisit = append(toVisit, rootNode)

	for len(toVisit) > 0 {
		curr := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]

		n := &t.nodes[curr]
		if !n.bounds.Intersects(bounds) {
			continue
		}

		if n.isLeaf() {
			found = append(found, n.agents...)
			continue
		}
		toVisit = append(toVisit, n.children[:]...)
	}

	return found
}

// attachAgent appends the agent to a leaf and records the mirror entries.
func (t *Tree) attachAgent(leafID int, id uint32, pos geometry.Vec2D) {
	leaf := &t.nodes[leafID]
	leaf.agents = append(leaf.agents, id)
	t.agentToNode[id] = leafID
	t.positions[id] = pos

	if leaf.depth == t.maxDepth && len(leaf.agents) == t.leafCapacity+1 {
		t.saturatedLeaves++
		instrumentSaturatedLeaves(t.saturatedLeaves)
	}
}

// detachAgent removes the agent from a leaf. Map entries are left to the
// caller since Relocate keeps them alive.
func (t *Tree) detachAgent(leafID int, id uint32) {
	leaf := &t.nodes[leafID]
	leaf.removeAgent(id)

	if leaf.depth == t.maxDepth && len(leaf.agents) == t.leafCapacity {
		t.saturatedLeaves--
		instrumentSaturatedLeaves(t.saturatedLeaves)
	}
}

// checkSplit splits the leaf when it exceeds the capacity and may still
// deepen. The split is a single level; an overfull child splits on the next
// insert that lands in it, which bounds the work done by one operation.
func (t *Tree) checkSplit(leafID int) {
	leaf := &t.nodes[leafID]
	if len(leaf.agents) <= t.leafCapacity || leaf.depth >= t.maxDepth {
		return
	}
	t.split(leafID)
}

// split turns a leaf into an internal node with four child leaves and
// redistributes its agents by quadrant.
func (t *Tree) split(id int) {
	bounds := t.nodes[id].bounds
	depth := t.nodes[id].depth
	agents := t.nodes[id].agents

	quarters := bounds.Quarter()
	leaves := [4]node{}
	for q := range quarters {
		leaves[q] = newLeaf(id, depth+1, quarters[q])
	}

	for _, agentID := range agents {
		q := bounds.Quadrant(t.positions[agentID])
		leaves[q].agents = append(leaves[q].agents, agentID)
	}

	var children [4]int
	for q := range leaves {
		childID := t.addNode(leaves[q])
		children[q] = childID

		child := &t.nodes[childID]
		for _, agentID := range child.agents {
			t.agentToNode[agentID] = childID
		}
		if child.depth == t.maxDepth && len(child.agents) > t.leafCapacity {
			t.saturatedLeaves++
			instrumentSaturatedLeaves(t.saturatedLeaves)
		}
	}

	n := &t.nodes[id]
	n.kind = nodeInternal
	n.agents = nil
	n.children = children

	instrumentSplit()
}

// checkMerge merges the parent's four child leaves back into it when their
// combined count fits the capacity. Merging is checked one level only.
func (t *Tree) checkMerge(parentID int) {
	if parentID == noParent {
		return
	}

	parent := &t.nodes[parentID]
	if parent.isLeaf() {
		return
	}

	total := 0
	for _, childID := range parent.children {
		child := &t.nodes[childID]
		if !child.isLeaf() {
			return
		}
		total += len(child.agents)
	}
	if total > t.leafCapacity {
		return
	}

	t.merge(parentID)
}

// merge collapses four child leaves into their parent, which becomes a leaf
// holding the union.
func (t *Tree) merge(parentID int) {
	children := t.nodes[parentID].children

	agents := make([]uint32, 0, t.leafCapacity)
	for _, childID := range children {
		agents = append(agents, t.nodes[childID].agents...)
		t.removeNode(childID)
	}

	for _, agentID := range agents {
		t.agentToNode[agentID] = parentID
	}

	parent := &t.nodes[parentID]
	parent.kind = nodeLeaf
	parent.agents = agents
	parent.children = [4]int{}

	instrumentMerge()
}

// NodeCount returns the number of live nodes in the arena.
func (t *Tree) NodeCount() int {
	return len(t.nodes) - len(t.openNodeIndices)
}

// DepthSaturatedLeaves returns the number of max-depth leaves holding more
// agents than the leaf capacity.
func (t *Tree) DepthSaturatedLeaves() int {
	return t.saturatedLeaves
}

// DebugInfo is a point-in-time census of the tree structure.
type DebugInfo struct {
	NodeCount          int `json:"node_count"`
	LeafCount          int `json:"leaf_count"`
	AgentCount         int `json:"agent_count"`
	MaxDepth           int `json:"max_depth"`
	SaturatedLeafCount int `json:"saturated_leaf_count"`
}

// DebugInfo walks the live nodes and reports structure counts, including the
// number of leaves at max depth that run over capacity.
func (t *Tree) DebugInfo() DebugInfo {
	info := DebugInfo{
		NodeCount:          t.NodeCount(),
		AgentCount:         t.Len(),
		SaturatedLeafCount: t.DepthSaturatedLeaves(),
	}

	open := make(map[int]struct{}, len(t.openNodeIndices))
	for _, id := range t.openNodeIndices {
		open[id] = struct{}{}
	}

	for id := range t.nodes {
		if _, ok := open[id]; ok {
			continue
		}
		n := &t.nodes[id]
		if n.isLeaf() {
			info.LeafCount++
		}
		if n.depth > info.MaxDepth {
			info.MaxDepth = n.depth
		}
	}

	return info
}
