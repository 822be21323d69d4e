package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"

	"github.com/runesim/kaun/sim"
)

// StreamHandler streams a world to one subscriber: a hello frame on
// connect, a tick frame per simulation step, pong and state frames on
// request.
type StreamHandler struct {
	// The world being streamed.
	World *sim.World

	// The hub simulation frames are received from.
	Hub *Hub

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	conn        *websocket.Conn
	frames      <-chan Frame
	unsubscribe func()
	clientID    string
}

func (h *StreamHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	if req := conn.Request(); req != nil {
		h.clientID = req.RemoteAddr
	}

	h.frames, h.unsubscribe = h.Hub.Subscribe()
}

func (h *StreamHandler) HandleHello(ctx context.Context, respond FrameSender) error {
	bounds := h.World.Bounds()

	respond.Send(Frame{
		Type:   FrameTypeHello,
		RunID:  h.World.RunID,
		Bounds: &bounds,
		Tick:   h.World.Tick(),
	})
	return nil
}

func (h *StreamHandler) HandlePing(ctx context.Context, respond FrameSender, msg ClientMsg) error {
	respond.Send(Frame{
		Type:      FrameTypePong,
		RequestID: msg.RequestID,
		Tick:      h.World.Tick(),
	})
	return nil
}

func (h *StreamHandler) HandleStateRequest(ctx context.Context, respond FrameSender, msg ClientMsg) error {
	respond.Send(Frame{
		Type:      FrameTypeState,
		RunID:     h.World.RunID,
		RequestID: msg.RequestID,
		Tick:      h.World.Tick(),
		Agents:    h.World.Snapshot(),
	})
	return nil
}

func (h *StreamHandler) HandleFrame(ctx context.Context, respond FrameSender, frame Frame) error {
	respond.Send(frame)
	return nil
}

func (h *StreamHandler) HandleDisconnect(err error) {
}

func (h *StreamHandler) Frames() <-chan Frame {
	return h.frames
}

func (h *StreamHandler) Receiver() Receiver {
	return func() (ClientMsg, int, error) {
		var raw []byte
		if err := websocket.Message.Receive(h.conn, &raw); err != nil {
			return ClientMsg{}, 0, err
		}

		var msg ClientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ClientMsg{}, len(raw), errors.New("decoding message failed").
				WithType(ErrTypeBadMessage).
				Wrap(err)
		}
		return msg, len(raw), nil
	}
}

func (h *StreamHandler) Sender() Sender {
	return func(frame Frame) (int, error) {
		data, err := json.Marshal(frame)
		if err != nil {
			return 0, errors.New("encoding frame failed").Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(data)); err != nil {
			return 0, err
		}
		return len(data), nil
	}
}

func (h *StreamHandler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *StreamHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *StreamHandler) GetClientID() string {
	return h.clientID
}
