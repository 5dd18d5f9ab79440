package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/bovinoia/internal/realtime"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func newServer(t *testing.T, hub *realtime.Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, _ := uuid.Parse(r.URL.Query().Get("frame_id"))
		hub.Serve(w, r, filter)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := read(t, conn)
	require.Equal(t, realtime.MessageConnected, msg.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitClients(t *testing.T, hub *realtime.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastsFrameUpdates(t *testing.T) {
	hub := realtime.NewHub([]string{"*"})
	srv := newServer(t, hub)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	frame := models.Frame{ID: uuid.New(), Status: models.FrameStatusProcessing}
	hub.FrameUpdated(context.Background(), frame)

	msg := read(t, conn)
	assert.Equal(t, realtime.MessageFrameUpdate, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	var got models.Frame
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, frame.ID, got.ID)
	assert.Equal(t, models.FrameStatusProcessing, got.Status)
}

func TestHub_FrameFilter(t *testing.T) {
	hub := realtime.NewHub(nil)
	srv := newServer(t, hub)

	watched := uuid.New()
	conn := dial(t, srv, "?frame_id="+watched.String())
	waitClients(t, hub, 1)

	hub.FrameUpdated(context.Background(), models.Frame{ID: uuid.New(), Status: models.FrameStatusPending})
	hub.FrameUpdated(context.Background(), models.Frame{ID: watched, Status: models.FrameStatusCompleted})

	msg := read(t, conn)
	var got models.Frame
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, watched, got.ID, "updates for other frames are not delivered")
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := realtime.NewHub(nil)
	srv := newServer(t, hub)

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := realtime.NewHub(nil)
	srv := newServer(t, hub)

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	hub.Close()
	waitClients(t, hub, 0)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := realtime.NewHub([]string{"https://app.example.com"})
	srv := newServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_FrameUpdatedWithoutClients(t *testing.T) {
	hub := realtime.NewHub(nil)
	assert.NotPanics(t, func() {
		hub.FrameUpdated(context.Background(), models.Frame{ID: uuid.New()})
	})
}
