package progress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-lab/internal/orchestrator"
	"mention-lab/internal/pricing"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_BroadcastsProgressAndItems(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h)

	h.Progress(orchestrator.Progress{RunID: "r1", Phase: orchestrator.PhaseBackfill, Total: 10, Processed: 5, Percent: 50})
	env := readEnvelope(t, conn)
	assert.JSONEq(t, `"progress"`, string(env["type"]))

	var p orchestrator.Progress
	require.NoError(t, json.Unmarshal(env["data"], &p))
	assert.Equal(t, "r1", p.RunID)
	assert.Equal(t, orchestrator.PhaseBackfill, p.Phase)
	assert.Equal(t, 5, p.Processed)

	h.Item(orchestrator.ItemEvent{RunID: "r1", Reason: pricing.ReasonNoPools})
	env = readEnvelope(t, conn)
	assert.JSONEq(t, `"item"`, string(env["type"]))
	assert.Contains(t, string(env["data"]), `"reason":"no-pools"`)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h)

	h.Close()
	assert.Equal(t, 0, h.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// broadcasting after close is a no-op
	h.Progress(orchestrator.Progress{RunID: "late"})
}
