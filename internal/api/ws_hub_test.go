package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromarket/price-tracker/internal/api"
	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/store"
)

func TestWSHub_PushesMutations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := api.NewWSHub()
	go hub.Run(ctx)

	e := newTestEnv(t, api.WithHub(hub))
	feed, stop := e.broker.Subscribe(16)
	defer stop()
	go hub.Forward(feed)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	m, _ := e.seed(t, e.admin(t))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var c events.Change
	require.NoError(t, conn.ReadJSON(&c))
	assert.Equal(t, store.CollectionMarkets, c.Kind)
	assert.Equal(t, events.OpCreated, c.Op)
	assert.Equal(t, m.ID, c.ID)
}

func TestWSHub_ClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := api.NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(newTestEnv(t, api.WithHub(hub)).router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
