package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperwork/payperwork/internal/auth"
	"github.com/payperwork/payperwork/internal/protocol"
)

const testSecret = "relay-test-secret"

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(testSecret)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialAuthenticated(t *testing.T, wsURL, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": auth.Sign(userID, testSecret),
	}))

	var ack map[string]string
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "authenticated", ack["type"])
	require.Equal(t, userID, ack["user_id"])
	return conn
}

func waitForRoom(t *testing.T, hub *Hub, userID string, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(userID) != size {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached size %d (now %d)", userID, size, hub.RoomSize(userID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitReachesOwnerRoomOnly(t *testing.T) {
	hub, wsURL := startHub(t)

	owner := dialAuthenticated(t, wsURL, "user-1")
	other := dialAuthenticated(t, wsURL, "user-2")
	waitForRoom(t, hub, "user-1", 1)
	waitForRoom(t, hub, "user-2", 1)

	hub.EmitGenerationProgress("user-1", protocol.GenerationProgress{
		PresentationID: "p-1",
		Progress:       42,
		CurrentStep:    "Rendering slides",
	})

	var ev protocol.Event
	owner.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, owner.ReadJSON(&ev))
	assert.Equal(t, protocol.EventGenerationProgress, ev.Name)
	assert.NotEmpty(t, ev.Timestamp)

	var payload protocol.GenerationProgress
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, 42, payload.Progress)

	other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var stray protocol.Event
	err := other.ReadJSON(&stray)
	assert.Error(t, err, "other user's room must stay silent")
}

func TestInvalidTokenRejected(t *testing.T) {
	_, wsURL := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": "user-1.deadbeef",
	}))

	var reply map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid token", reply["error"])

	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection closed after rejection")
}

func TestFirstMessageMustAuthenticate(t *testing.T) {
	_, wsURL := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

	var reply map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "authentication required", reply["error"])
}

func TestEmitToEmptyRoomIsNoOp(t *testing.T) {
	hub, _ := startHub(t)

	// Must not panic or block with nobody connected.
	hub.EmitPresentationReady("nobody", protocol.PresentationReady{
		PresentationID: "p-9",
		SlidesCount:    5,
	})
	assert.Equal(t, 0, hub.RoomSize("nobody"))
}

func TestShutdownReleasesHandlers(t *testing.T) {
	hub := NewHub(testSecret)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dialAuthenticated(t, wsURL, "user-4")
	waitForRoom(t, hub, "user-4", 1)

	cancel()
	<-runDone

	// Run's teardown closed the connection; its handler leaves through the
	// done channel instead of parking on unregister.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// A socket authenticating after shutdown is turned away instead of
	// parking on register.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": auth.Sign("user-5", testSecret),
	}))

	var ack map[string]string
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, late.ReadJSON(&ack))
	_, _, err = late.ReadMessage()
	assert.Error(t, err, "connection must be closed, not joined")
	assert.Equal(t, 0, hub.RoomSize("user-5"))
}

func TestRoomDrainsOnDisconnect(t *testing.T) {
	hub, wsURL := startHub(t)

	conn := dialAuthenticated(t, wsURL, "user-3")
	waitForRoom(t, hub, "user-3", 1)

	conn.Close()
	waitForRoom(t, hub, "user-3", 0)
}
