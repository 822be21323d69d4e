package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv starts an in-process stream server backed by newHandler and
// dials two clients into it. The returned close func detaches the test
// logger before tearing the clients and the server down.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	// Handler goroutines keep logging during teardown, so entries go through
	// a logger that can be detached before the test returns.
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	wsURL := strings.ReplaceAll(server.URL, "http://", "ws://")
	clientA := dialTestServer(t, wsURL)
	clientB := dialTestServer(t, wsURL)

	return clientA, clientB, func() {
		mutex.Lock()
		logger = nil
		mutex.Unlock()

		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

func dialTestServer(t *testing.T, url string) *websocket.Conn {
	config, err := websocket.NewConfig(url, "http://localhost")
	if err != nil {
		t.Fatalf("configuring stream client failed: %s", err)
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("dialing stream server failed: %s", err)
	}

	return conn
}
