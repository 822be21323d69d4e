// Package websocket streams simulation frames to subscribers over a
// WebSocket connection.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"

	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 512
	recvChanSize = 8
)

const ErrTypeBadMessage = "ws_bad_message"

// Handler represents a stream subscriber handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Sends the hello frame that opens a stream.
	HandleHello(ctx context.Context, respond FrameSender) error

	// Handles a ping message.
	HandlePing(ctx context.Context, respond FrameSender, msg ClientMsg) error

	// Handles a request for a full state frame.
	HandleStateRequest(ctx context.Context, respond FrameSender, msg ClientMsg) error

	// Handles a simulation frame received from the hub.
	HandleFrame(ctx context.Context, respond FrameSender, frame Frame) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// The channel simulation frames are received on.
	Frames() <-chan Frame

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a frame sender used to push frames onto the wire.
	Sender() Sender

	// Closes the handler and releases its subscription.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Get ClientID.
	GetClientID() string
}

type (
	// Receiver pulls the next message off the wire, returning its size.
	Receiver func() (ClientMsg, int, error)

	// Sender pushes a frame onto the wire, returning its size.
	Sender func(Frame) (int, error)
)

// FrameSender sends response frames from within a handler.
type FrameSender interface {
	Send(Frame)
}

// Handle handles the given stream subscriber.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The stream handler.
	Handler Handler

	sendChan       chan Frame
	sender         Sender
	recvChan       chan ClientMsg
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Frame, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.recvChan = make(chan ClientMsg, recvChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	var responder = frameSender{
		send: h.send,
	}

	if err := h.Handler.HandleHello(ctx, responder); err != nil {
		h.disconnect(errors.New("sending hello failed").Wrap(err))
	}

	frames := h.Handler.Frames()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				h.disconnect(errors.New("frame feed closed"))
				continue
			}

			if err := h.Handler.HandleFrame(ctx, responder, frame); err != nil {
				h.disconnect(errors.New("handling frame failed").Wrap(err))
			}

		case msg := <-h.recvChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(frame Frame) {
	h.sendChan <- frame
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-h.sendChan:
			if _, err := h.sender(frame); err != nil {
				h.disconnect(errors.New("sending frame failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if err != nil {
				// A malformed message is dropped; only transport errors end
				// the stream.
				if errors.IsType(err, ErrTypeBadMessage) {
					continue
				}
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case h.recvChan <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg ClientMsg, respond FrameSender) error {
	switch msg.Type {
	case MsgTypePing:
		return h.Handler.HandlePing(ctx, respond, msg)

	case MsgTypeStateRequest:
		return h.Handler.HandleStateRequest(ctx, respond, msg)
	}
	return nil
}

func (h *handler) disconnect(err error) {
	h.disconnectChan <- err
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type frameSender struct {
	send func(Frame)
}

func (s frameSender) Send(frame Frame) {
	s.send(frame)
}
