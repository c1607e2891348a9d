package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/pkg/models"
)

func newTestHub(t *testing.T) (*Hub, *statestore.Store, context.CancelFunc, chan struct{}) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	states := statestore.New(logger)
	hub := NewHub(states, logger)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()
	return hub, states, cancel, runDone
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, srv
}

func TestHubSnapshotOnConnect(t *testing.T) {
	hub, states, cancel, runDone := newTestHub(t)
	defer func() { cancel(); <-runDone }()

	states.ApplyProgress("w1", models.SyncStatusSyncing, 40, "")

	conn, srv := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	var frame models.WSFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, models.WSFrameSnapshot, frame.Type)
	require.Len(t, frame.Wallets, 1)
	assert.Equal(t, "w1", frame.Wallets[0].WalletID)
}

func TestHubShutdownReleasesClients(t *testing.T) {
	hub, _, cancel, runDone := newTestHub(t)

	baseline := runtime.NumGoroutine()

	conn, srv := dialHub(t, hub)

	var frame models.WSFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The hub closed our send channel on shutdown; drain until the
	// connection ends, then close our side so the read pump unwinds
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	conn.Close()
	srv.Close()

	// The client pumps must exit rather than block on a hub nobody runs
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "client goroutines leaked past hub shutdown")
}
