package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel   = "error_type"
	msgTypeLabel   = "msg_type"
	frameTypeLabel = "frame_type"
)

var (
	wsConnectedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_ws_connected_subscribers",
		Help: "The number of connected stream subscribers.",
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_received_msgs",
		Help: "The number of messages received from stream subscribers.",
	}, []string{
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_received_bytes",
		Help: "The number of bytes received from stream subscribers.",
	}, []string{
		msgTypeLabel,
	})

	wsReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_receive_errors",
		Help: "The errors that occured while receiving a subscriber message.",
	}, []string{
		errTypeLabel,
	})

	wsSentFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_sent_frames",
		Help: "The number of frames sent to stream subscribers.",
	}, []string{
		frameTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_sent_bytes",
		Help: "The number of bytes sent to stream subscribers.",
	}, []string{
		frameTypeLabel,
	})

	wsSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_send_errors",
		Help: "The errors that occured while sending a frame.",
	}, []string{
		frameTypeLabel,
		errTypeLabel,
	})

	wsFrameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "kaun_ws_frame_latency",
		Help: "The time to handle a stream message or frame.",
	}, []string{
		frameTypeLabel,
	})

	wsPublishedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_published_frames",
		Help: "The number of frames queued to subscribers by the hub.",
	}, []string{
		frameTypeLabel,
	})

	wsDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_ws_dropped_frames",
		Help: "The number of frames dropped because a subscriber queue was full.",
	}, []string{
		frameTypeLabel,
	})
)

func instrumentPublishedFrame(frameType FrameType) {
	wsPublishedFrames.
		With(prometheus.Labels{
			frameTypeLabel: string(frameType),
		}).
		Inc()
}

func instrumentDroppedFrame(frameType FrameType) {
	wsDroppedFrames.
		With(prometheus.Labels{
			frameTypeLabel: string(frameType),
		}).
		Inc()
}

func HandlerWithMetrics(h Handler) Handler {
	return &handlerWithMetrics{
		Handler: h,
	}
}

type handlerWithMetrics struct {
	Handler
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedSubscribers.Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleHello(ctx context.Context, respond FrameSender) error {
	return h.measureLatency(FrameTypeHello, func() error {
		return h.Handler.HandleHello(ctx, respond)
	})
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond FrameSender, msg ClientMsg) error {
	return h.measureLatency(FrameTypePong, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleStateRequest(ctx context.Context, respond FrameSender, msg ClientMsg) error {
	return h.measureLatency(FrameTypeState, func() error {
		return h.Handler.HandleStateRequest(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleFrame(ctx context.Context, respond FrameSender, frame Frame) error {
	return h.measureLatency(frame.Type, func() error {
		return h.Handler.HandleFrame(ctx, respond, frame)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedSubscribers.Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (ClientMsg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveErrors.
				With(prometheus.Labels{
					errTypeLabel: errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.
				With(prometheus.Labels{
					msgTypeLabel: string(msg.Type),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					msgTypeLabel: string(msg.Type),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	sender := h.Handler.Sender()

	return func(frame Frame) (int, error) {
		n, err := sender(frame)
		if err != nil {
			wsSendErrors.
				With(prometheus.Labels{
					frameTypeLabel: string(frame.Type),
					errTypeLabel:   errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			wsSentFrames.
				With(prometheus.Labels{
					frameTypeLabel: string(frame.Type),
				}).
				Inc()
			wsSentBytes.
				With(prometheus.Labels{
					frameTypeLabel: string(frame.Type),
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(frameType FrameType, f func() error) error {
	start := time.Now()

	err := f()

	wsFrameLatency.With(prometheus.Labels{
		frameTypeLabel: string(frameType),
	}).Observe(time.Since(start).Seconds())

	return err
}
