package trace

import (
	"testing"

	"github.com/runesim/kaun/models"
	"github.com/stretchr/testify/require"
)

func TestGraphRecord(t *testing.T) {
	t.Run("an index case joins without an edge", func(t *testing.T) {
		g := NewGraph()

		g.Record(0, 1, 1)
		require.Equal(t, 1, g.Len())
		require.Zero(t, g.AverageDegree())
	})

	t.Run("an exposure links source and target", func(t *testing.T) {
		g := NewGraph()

		g.Record(0, 1, 1)
		g.Record(1, 2, 5)

		require.Equal(t, 2, g.Len())
		require.Equal(t, 1.0, g.AverageDegree())
	})

	t.Run("recording the same agent twice adds one node", func(t *testing.T) {
		g := NewGraph()

		g.Record(0, 1, 1)
		g.Record(0, 1, 2)
		require.Equal(t, 1, g.Len())
	})

	t.Run("self infections are ignored", func(t *testing.T) {
		g := NewGraph()

		g.Record(7, 7, 1)
		require.Equal(t, 1, g.Len())
		require.Zero(t, g.AverageDegree())
	})
}

func TestGraphAverageDegree(t *testing.T) {
	g := NewGraph()

	// One index case infecting two agents: degrees 2, 1 and 1.
	g.Record(0, 1, 1)
	g.Record(1, 2, 3)
	g.Record(1, 3, 4)

	require.Equal(t, 3, g.Len())
	require.InDelta(t, 4.0/3.0, g.AverageDegree(), 1e-9)

	t.Run("an empty graph has zero degree", func(t *testing.T) {
		require.Zero(t, NewGraph().AverageDegree())
	})
}

func TestGraphRecordUpdates(t *testing.T) {
	g := NewGraph()

	g.RecordUpdates(3, []models.HealthUpdate{
		{AgentID: 1, Status: models.HealthExposed},
		{AgentID: 2, Status: models.HealthExposed, SourceID: 1},
		{AgentID: 3, Status: models.HealthRecovered},
		{AgentID: 4, Status: models.HealthDead},
	})

	require.Equal(t, 2, g.Len())
	require.Equal(t, 1.0, g.AverageDegree())
}

func TestGraphDOT(t *testing.T) {
	g := NewGraph()

	g.Record(0, 1, 1)
	g.Record(1, 2, 5)

	b, err := g.DOT()
	require.NoError(t, err)

	out := string(b)
	require.Contains(t, out, "digraph infection_trace")
	require.Contains(t, out, "agent_1 -> agent_2")
	require.Contains(t, out, "tick=5")
}
