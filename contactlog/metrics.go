package contactlog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kaunContactLogWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_contactlog_writes_total",
		Help: "The number of tick writes to the contact log.",
	})

	kaunContactLogWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_contactlog_write_errors_total",
		Help: "The number of failed contact log writes.",
	})

	kaunContactLogWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "kaun_contactlog_write_latency_seconds",
		Help: "The time to write one tick to the contact log.",
	})

	kaunContactLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_contactlog_dropped_total",
		Help: "The number of ticks dropped because the write queue was full.",
	})
)

func instrumentWrite(f func() error) error {
	start := time.Now()
	err := f()

	kaunContactLogWrites.Inc()
	kaunContactLogWriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		kaunContactLogWriteErrors.Inc()
	}
	return err
}

func instrumentDroppedWrite() {
	kaunContactLogDropped.Inc()
}
