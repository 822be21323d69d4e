// Package http hosts the engine's HTTP surface: world state endpoints,
// liveness and readiness checks, CORS middleware and the server runner
// shared by the service and admin listeners.
package http

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// shutdownTimeout bounds how long a draining server may hold the exit path.
const shutdownTimeout = time.Second * 10

// ListenAndServe runs the given servers until ctx is canceled, then shuts
// them down gracefully. It returns once every server has stopped.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.Newf("http server shutdown failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("http server listening")

			err := s.ListenAndServe()
			if err == nil || stderrors.Is(err, http.ErrServerClosed) {
				logs.WithTag("addr", s.Addr).Info("http server stopped")
				return
			}

			logs.Warn(errors.Newf("http server failed").
				WithTag("addr", s.Addr).
				Wrap(err))
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter drops the path label on status codes that are
// typically produced by path scans, keeping the path cardinality of HTTP
// metrics bounded.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""
	}
	return path
}
