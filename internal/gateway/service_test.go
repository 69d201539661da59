package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jumpboard/internal/session"
)

// fakeCore records the calls the gateway routes into the protocol core.
type fakeCore struct {
	started []uint64
	ended   []uint64
	jumps   int
}

func (f *fakeCore) EncounterStarted(id uint64, name string) { f.started = append(f.started, id) }
func (f *fakeCore) EncounterEnded(id uint64)                { f.ended = append(f.ended, id) }
func (f *fakeCore) JumpDetected()                           { f.jumps++ }
func (f *fakeCore) Snapshot() session.DisplayUpdate {
	return session.DisplayUpdate{Phase: "active", LocalCount: f.jumps}
}

func newTestService(core *fakeCore) *Service {
	return NewService(core, NewManager(DefaultConfig()), clockwork.NewFakeClock(), time.Second)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIngestStartAndEnd(t *testing.T) {
	core := &fakeCore{}
	h := newTestService(core).Handler()

	w := post(t, h, "/events/start", `{"encounter_id":42,"name":"Rashok"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, []uint64{42}, core.started)

	w = post(t, h, "/events/end", `{"encounter_id":42}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, []uint64{42}, core.ended)
}

func TestIngestJump(t *testing.T) {
	core := &fakeCore{}
	h := newTestService(core).Handler()

	require.Equal(t, http.StatusNoContent, post(t, h, "/events/jump", "").Code)
	require.Equal(t, 1, core.jumps)

	// Disqualifying movement modes are dropped.
	require.Equal(t, http.StatusNoContent, post(t, h, "/events/jump", `{"vehicle":true}`).Code)
	require.Equal(t, http.StatusNoContent, post(t, h, "/events/jump", `{"flying":true}`).Code)
	require.Equal(t, 1, core.jumps)
}

func TestIngestRejectsBadInput(t *testing.T) {
	core := &fakeCore{}
	h := newTestService(core).Handler()

	require.Equal(t, http.StatusBadRequest, post(t, h, "/events/start", "{not json").Code)
	require.Empty(t, core.started)

	req := httptest.NewRequest(http.MethodGet, "/events/jump", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthz(t *testing.T) {
	core := &fakeCore{}
	h := newTestService(core).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebsocketReceivesSnapshots(t *testing.T) {
	core := &fakeCore{jumps: 3}
	mgr := NewManager(DefaultConfig())
	svc := NewService(core, mgr, clockwork.NewFakeClock(), time.Second)

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Wait for the connection to register, then push a snapshot directly.
	require.Eventually(t, func() bool { return mgr.Count() == 1 },
		time.Second, 10*time.Millisecond)
	mgr.Push(core.Snapshot())

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var du session.DisplayUpdate
	require.NoError(t, json.Unmarshal(data, &du))
	require.Equal(t, "active", du.Phase)
	require.Equal(t, 3, du.LocalCount)
}
