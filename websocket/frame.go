package websocket

import (
	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
	"github.com/runesim/kaun/sim"
)

// FrameType tells a subscriber what an outbound frame carries.
type FrameType string

const (
	// FrameTypeHello opens a stream with the run id, the world bounds and
	// the current tick.
	FrameTypeHello FrameType = "hello"

	// FrameTypeTick carries the edges and agent snapshot of one step.
	FrameTypeTick FrameType = "tick"

	// FrameTypePong answers a ping message.
	FrameTypePong FrameType = "pong"

	// FrameTypeState answers a state request with a full agent snapshot.
	FrameTypeState FrameType = "state"
)

// Frame is one outbound stream message.
type Frame struct {
	Type      FrameType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Bounds    *geometry.Rect `json:"bounds,omitempty"`
	Tick      uint64         `json:"tick"`
	RequestID uint32         `json:"request_id,omitempty"`

	EdgeCount int                    `json:"edge_count,omitempty"`
	Edges     []models.ContactEdge   `json:"edges,omitempty"`
	Agents    []models.AgentSnapshot `json:"agents,omitempty"`
}

// NewTickFrame builds the frame published for one simulation step.
func NewTickFrame(runID string, res sim.TickResult) Frame {
	return Frame{
		Type:      FrameTypeTick,
		RunID:     runID,
		Tick:      res.Tick,
		EdgeCount: len(res.Edges),
		Edges:     res.Edges,
		Agents:    res.Agents,
	}
}

// ClientMsgType is the type of an inbound subscriber message.
type ClientMsgType string

const (
	MsgTypePing         ClientMsgType = "ping"
	MsgTypeStateRequest ClientMsgType = "state_request"
)

// ClientMsg is one inbound message from a subscriber. Messages of unknown
// types are ignored.
type ClientMsg struct {
	Type      ClientMsgType `json:"type"`
	RequestID uint32        `json:"request_id,omitempty"`
}
