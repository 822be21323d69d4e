package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"

	"github.com/runesim/kaun/models"
)

func TestRun(t *testing.T) {
	t.Run("a healthy engine passes every check", func(t *testing.T) {
		res, err := Run(context.Background(), Options{
			Ticks:  50,
			Agents: 30,
			Seed:   7,
		})
		require.NoError(t, err)

		require.NotEmpty(t, res.RunID)
		require.Equal(t, int64(7), res.Seed)
		require.Equal(t, uint64(50), res.Ticks)
		require.Equal(t, 30, res.Agents)
		require.Equal(t, StatusSuccess, res.Status)
		require.Greater(t, res.DurationMilliSec, float64(0))

		require.Len(t, res.Checks, 5)
		for _, check := range res.Checks {
			require.True(t, check.Passed, check.Name)
			require.Empty(t, check.Detail)
		}
	})

	t.Run("zero options fall back to the defaults", func(t *testing.T) {
		res, err := Run(context.Background(), Options{Seed: 3})
		require.NoError(t, err)
		require.Equal(t, uint64(DefaultTicks), res.Ticks)
		require.Equal(t, DefaultAgents, res.Agents)
		require.Equal(t, StatusSuccess, res.Status)
	})

	t.Run("a canceled context stops the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Run(ctx, Options{Ticks: 50, Agents: 10, Seed: 1})
		require.Error(t, err)
	})
}

func TestHandleSmokeTest(t *testing.T) {
	t.Run("a run reports its results", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		handler := HandleSmokeTest(ctx, Options{
			SendResult: func(_ context.Context, res Results) error {
				require.Equal(t, uint64(20), res.Ticks)
				require.Equal(t, 10, res.Agents)
				require.Equal(t, int64(5), res.Seed)
				require.Equal(t, StatusSuccess, res.Status)
				gotResult = true
				return nil
			},
		})

		body, err := json.Marshal(Request{Ticks: 20, Agents: 10, Seed: 5})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBuffer(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("an empty body runs the configured options", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		handler := HandleSmokeTest(ctx, Options{
			Ticks:  5,
			Agents: 8,
			Seed:   2,
			SendResult: func(_ context.Context, res Results) error {
				require.Equal(t, uint64(5), res.Ticks)
				require.Equal(t, 8, res.Agents)
				gotResult = true
				return nil
			},
		})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("a malformed request is rejected", func(t *testing.T) {
		handler := HandleSmokeTest(context.Background(), Options{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test",
			bytes.NewBufferString("{not json")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPairwiseEdges(t *testing.T) {
	t.Run("dead agents never make contact", func(t *testing.T) {
		agents := []models.AgentSnapshot{
			{ID: 1, Status: models.HealthSusceptible},
			{ID: 2, Status: models.HealthDead},
			{ID: 3, Status: models.HealthSusceptible},
		}

		edges := pairwiseEdges(agents, 2)
		require.Equal(t, []models.ContactEdge{{A: 1, B: 3}}, edges)
	})

	t.Run("edges come out canonical and sorted", func(t *testing.T) {
		agents := []models.AgentSnapshot{
			{ID: 9, Status: models.HealthSusceptible},
			{ID: 2, Status: models.HealthSusceptible},
			{ID: 5, Status: models.HealthSusceptible},
		}

		edges := pairwiseEdges(agents, 1)
		require.Equal(t, []models.ContactEdge{{A: 2, B: 5}, {A: 2, B: 9}, {A: 5, B: 9}}, edges)
	})
}
