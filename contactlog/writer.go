package contactlog

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/runesim/kaun/models"
)

const DefaultQueueSize = 128

// Writer decouples the simulation loop from log writes with a buffered
// queue. A tick that does not fit the queue is dropped and counted instead
// of slowing the loop down.
type Writer struct {
	Log *Log

	queue chan writeRequest
}

type writeRequest struct {
	tick  uint64
	edges []models.ContactEdge
}

func NewWriter(log *Log, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Writer{
		Log:   log,
		queue: make(chan writeRequest, queueSize),
	}
}

// HandleWrites consumes the queue until the context ends.
func (w *Writer) HandleWrites(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case req := <-w.queue:
				if err := instrumentWrite(func() error {
					return w.Log.WriteTick(req.tick, req.edges)
				}); err != nil {
					logs.Warn(errors.New("writing contacts failed").
						WithTag("tick", req.tick).
						WithTag("edges", len(req.edges)).
						Wrap(err))
				}
			}
		}
	}()
}

// Enqueue hands one tick's edges to the writer without blocking.
func (w *Writer) Enqueue(tick uint64, edges []models.ContactEdge) {
	select {
	case w.queue <- writeRequest{tick: tick, edges: edges}:
	default:
		instrumentDroppedWrite()
		logs.WithTag("tick", tick).Warn("contact log queue is full, dropping tick")
	}
}
