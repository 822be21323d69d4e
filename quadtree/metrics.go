package quadtree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opLabel = "op"

	opInsert   = "insert"
	opRelocate = "relocate"
)

var (
	quadtreeSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_quadtree_splits_total",
		Help: "The total number of leaf splits.",
	})

	quadtreeMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_quadtree_merges_total",
		Help: "The total number of sibling merges.",
	})

	quadtreeOutOfBoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_quadtree_out_of_bounds_total",
		Help: "The total number of rejected out-of-bounds positions.",
	}, []string{opLabel})

	quadtreeSaturatedLeaves = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_quadtree_saturated_leaves",
		Help: "Leaves at max depth holding more agents than the leaf capacity. Queries touching them degrade toward linear cost.",
	})

	quadtreeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_quadtree_nodes",
		Help: "Live nodes in the tree arena.",
	})

	quadtreeAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_quadtree_agents",
		Help: "Agents held by the tree.",
	})
)

func instrumentSplit() {
	quadtreeSplitsTotal.Inc()
}

func instrumentMerge() {
	quadtreeMergesTotal.Inc()
}

func instrumentOutOfBounds(op string) {
	quadtreeOutOfBoundsTotal.
		With(prometheus.Labels{opLabel: op}).
		Inc()
}

func instrumentSaturatedLeaves(count int) {
	quadtreeSaturatedLeaves.Set(float64(count))
}

func instrumentTreeSize(nodes, agents int) {
	quadtreeNodes.Set(float64(nodes))
	quadtreeAgents.Set(float64(agents))
}
