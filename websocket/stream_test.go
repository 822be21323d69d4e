package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/sim"
)

func newStreamWorld(t *testing.T) *sim.World {
	t.Helper()

	policy := sim.DefaultMovementPolicy()
	policy.JitterMag = 0

	w, err := sim.New(sim.Config{
		Bounds:        geometry.NewRect(geometry.NewVec2D(0, 0), geometry.NewVec2D(50, 50)),
		ContactRadius: 1,
		Movement:      policy,
		Workers:       1,
		Seed:          42,
	})
	require.NoError(t, err)

	require.NoError(t, w.Initialize(nil, []*models.Agent{
		models.NewAgent(1, geometry.NewVec2D(10, 10)),
		models.NewAgent(2, geometry.NewVec2D(10.5, 10)),
	}))
	return w
}

func newTestHandler(world *sim.World, hub *Hub) func() Handler {
	return func() Handler {
		var h Handler = &StreamHandler{
			World:             world,
			Hub:               hub,
			ClientIdleTimeout: time.Minute,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h)
		return h
	}
}

func receiveFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var raw []byte
	require.NoError(t, websocket.Message.Receive(conn, &raw))

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg ClientMsg) {
	t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(data)))
}

func TestStreamHello(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, clientB, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	frame := receiveFrame(t, clientA)
	require.Equal(t, FrameTypeHello, frame.Type)
	require.Equal(t, world.RunID, frame.RunID)
	require.NotNil(t, frame.Bounds)
	require.Equal(t, world.Bounds(), *frame.Bounds)
	require.Zero(t, frame.Tick)

	frame = receiveFrame(t, clientB)
	require.Equal(t, FrameTypeHello, frame.Type)
}

func TestStreamTickFanOut(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, clientB, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)
	receiveFrame(t, clientB)

	res, err := world.Step(context.Background())
	require.NoError(t, err)
	hub.Publish(NewTickFrame(world.RunID, res))

	for _, client := range []*websocket.Conn{clientA, clientB} {
		frame := receiveFrame(t, client)
		require.Equal(t, FrameTypeTick, frame.Type)
		require.Equal(t, world.RunID, frame.RunID)
		require.Equal(t, uint64(1), frame.Tick)
		require.Equal(t, 1, frame.EdgeCount)
		require.Equal(t, []models.ContactEdge{{A: 1, B: 2}}, frame.Edges)
		require.Len(t, frame.Agents, 2)
	}
}

func TestStreamPing(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)

	sendMsg(t, clientA, ClientMsg{Type: MsgTypePing, RequestID: 7})

	frame := receiveFrame(t, clientA)
	require.Equal(t, FrameTypePong, frame.Type)
	require.Equal(t, uint32(7), frame.RequestID)
}

func TestStreamStateRequest(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)

	_, err := world.Step(context.Background())
	require.NoError(t, err)

	sendMsg(t, clientA, ClientMsg{Type: MsgTypeStateRequest, RequestID: 12})

	frame := receiveFrame(t, clientA)
	require.Equal(t, FrameTypeState, frame.Type)
	require.Equal(t, world.RunID, frame.RunID)
	require.Equal(t, uint32(12), frame.RequestID)
	require.Equal(t, uint64(1), frame.Tick)
	require.Len(t, frame.Agents, 2)
}

func TestStreamUnknownMessage(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)

	sendMsg(t, clientA, ClientMsg{Type: "detach", RequestID: 3})
	sendMsg(t, clientA, ClientMsg{Type: MsgTypePing, RequestID: 4})

	frame := receiveFrame(t, clientA)
	require.Equal(t, FrameTypePong, frame.Type)
	require.Equal(t, uint32(4), frame.RequestID)
}

func TestStreamBadMessage(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)

	require.NoError(t, websocket.Message.Send(clientA, "{not json"))
	sendMsg(t, clientA, ClientMsg{Type: MsgTypePing, RequestID: 9})

	frame := receiveFrame(t, clientA)
	require.Equal(t, FrameTypePong, frame.Type)
	require.Equal(t, uint32(9), frame.RequestID)
}

func TestStreamIdleDisconnect(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}
	defer hub.Close()

	newHandler := func() Handler {
		return &StreamHandler{
			World:             world,
			Hub:               hub,
			ClientIdleTimeout: time.Millisecond * 50,
		}
	}

	clientA, _, closeEnv := NewTestingEnv(t, newHandler)
	defer closeEnv()

	receiveFrame(t, clientA)

	require.NoError(t, clientA.SetReadDeadline(time.Now().Add(5*time.Second)))
	var raw []byte
	require.Error(t, websocket.Message.Receive(clientA, &raw))
}

func TestStreamHubClosed(t *testing.T) {
	world := newStreamWorld(t)
	hub := &Hub{}

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(world, hub))
	defer closeEnv()

	receiveFrame(t, clientA)

	hub.Close()

	require.NoError(t, clientA.SetReadDeadline(time.Now().Add(5*time.Second)))
	var raw []byte
	require.Error(t, websocket.Message.Receive(clientA, &raw))
}
