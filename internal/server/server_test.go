package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stokerbuild/stoker/internal/detect"
	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/hub"
	"github.com/stokerbuild/stoker/internal/pairing"
)

type fakePipeline struct {
	mu         sync.Mutex
	refreshes  int
	result     *detect.Result
	refreshErr error
	entries    []domain.Entry
	entriesErr error
	info       PipelineInfo
}

func (f *fakePipeline) RefreshNow(ctx context.Context) (*detect.Result, error) {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()

	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.result, nil
}

func (f *fakePipeline) Entries(ctx context.Context) ([]domain.Entry, error) {
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	return f.entries, nil
}

func (f *fakePipeline) Info() PipelineInfo {
	return f.info
}

func (f *fakePipeline) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// eventEnvelope mirrors the wire shape of serialized events.
type eventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(pipeline Pipeline) *Server {
	return New("127.0.0.1", 8766, "test", pipeline, nil)
}

// addTestClient registers a client without a network connection so command
// handling can be exercised directly.
func addTestClient(s *Server) *Client {
	client := NewClient(nil, s.handleCommand, nil)
	filtered := hub.NewFilteredSubscriber(NewClientSubscriber(client))

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.filters[client.ID()] = filtered
	s.mu.Unlock()

	return client
}

func receiveEvent(t *testing.T, client *Client) eventEnvelope {
	t.Helper()

	select {
	case data := <-client.send:
		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return eventEnvelope{}
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["service"] != "stoker" {
		t.Errorf("service field = %v, want stoker", body["service"])
	}
}

func TestHandleStatus(t *testing.T) {
	pipeline := &fakePipeline{info: PipelineInfo{
		State:        "watching",
		Root:         "/src",
		Driver:       "memory",
		EntryCount:   3,
		RefreshCount: 7,
	}}
	s := newTestServer(pipeline)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var status StatusResponse
	decodeBody(t, rec, &status)

	if status.State != "watching" {
		t.Errorf("State = %s, want watching", status.State)
	}
	if status.EntryCount != 3 {
		t.Errorf("EntryCount = %d, want 3", status.EntryCount)
	}
	if status.RefreshCount != 7 {
		t.Errorf("RefreshCount = %d, want 7", status.RefreshCount)
	}
	if status.ServerID != s.ServerID() {
		t.Errorf("ServerID = %s, want %s", status.ServerID, s.ServerID())
	}
	if status.Version != "test" {
		t.Errorf("Version = %s, want test", status.Version)
	}
	if status.Clients != 0 {
		t.Errorf("Clients = %d, want 0", status.Clients)
	}
}

func TestHandleEntries(t *testing.T) {
	pipeline := &fakePipeline{entries: []domain.Entry{
		{Path: "content/index.md", Raw: false, Changed: true},
		{Path: "static/logo.png", Raw: true, Changed: false},
	}}
	s := newTestServer(pipeline)

	req := httptest.NewRequest("GET", "/api/entries", nil)
	rec := httptest.NewRecorder()
	s.handleEntries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Entries []domain.Entry `json:"entries"`
		Count   int            `json:"count"`
	}
	decodeBody(t, rec, &body)

	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if len(body.Entries) != 2 || body.Entries[0].Path != "content/index.md" {
		t.Errorf("entries = %+v", body.Entries)
	}
}

func TestHandleEntries_RegistryError(t *testing.T) {
	pipeline := &fakePipeline{entriesErr: errors.New("database locked")}
	s := newTestServer(pipeline)

	req := httptest.NewRequest("GET", "/api/entries", nil)
	rec := httptest.NewRecorder()
	s.handleEntries(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["code"] != domain.ErrCodeRegistryError {
		t.Errorf("code = %v, want %s", body["code"], domain.ErrCodeRegistryError)
	}
}

func TestHandleRefresh(t *testing.T) {
	pipeline := &fakePipeline{result: &detect.Result{
		CycleID: "cycle-1",
		Root:    "/src",
		Added:   []string{"content/new.md"},
		Changed: []string{"content/new.md"},
	}}
	s := newTestServer(pipeline)

	req := httptest.NewRequest("POST", "/api/refresh", nil)
	rec := httptest.NewRecorder()
	s.handleRefresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var result detect.Result
	decodeBody(t, rec, &result)
	if result.CycleID != "cycle-1" {
		t.Errorf("CycleID = %s, want cycle-1", result.CycleID)
	}
	if len(result.Changed) != 1 || result.Changed[0] != "content/new.md" {
		t.Errorf("Changed = %v", result.Changed)
	}
	if pipeline.refreshCount() != 1 {
		t.Errorf("refresh count = %d, want 1", pipeline.refreshCount())
	}
}

func TestHandleRefresh_Failure(t *testing.T) {
	pipeline := &fakePipeline{refreshErr: errors.New("scan failed")}
	s := newTestServer(pipeline)

	req := httptest.NewRequest("POST", "/api/refresh", nil)
	rec := httptest.NewRecorder()
	s.handleRefresh(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["error"] != "scan failed" {
		t.Errorf("error = %v, want scan failed", body["error"])
	}
	if body["code"] != domain.ErrCodeRefreshFailed {
		t.Errorf("code = %v, want %s", body["code"], domain.ErrCodeRefreshFailed)
	}
}

func TestHandleConnection(t *testing.T) {
	pipeline := &fakePipeline{info: PipelineInfo{Root: "/home/me/site"}}
	s := newTestServer(pipeline)
	s.SetExternalURL("https://tunnel.example.com")

	req := httptest.NewRequest("GET", "/api/connection", nil)
	rec := httptest.NewRecorder()
	s.handleConnection(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var info pairing.ConnectionInfo
	decodeBody(t, rec, &info)

	if info.WebSocket != "wss://tunnel.example.com/ws" {
		t.Errorf("ws = %s, want wss://tunnel.example.com/ws", info.WebSocket)
	}
	if info.ServerID != s.ServerID() {
		t.Errorf("server = %s, want %s", info.ServerID, s.ServerID())
	}
	if info.Root != "site" {
		t.Errorf("root = %s, want site", info.Root)
	}
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	req := httptest.NewRequest("GET", "/api/refresh", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	req := httptest.NewRequest("OPTIONS", "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %s, want http://localhost:3000", got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %s, want *", got)
	}
}

func TestHandleCommand_Refresh(t *testing.T) {
	pipeline := &fakePipeline{result: &detect.Result{CycleID: "cycle-1"}}
	s := newTestServer(pipeline)
	client := addTestClient(s)

	s.handleCommand(client.ID(), []byte(`{"command":"refresh"}`))

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeRefreshAccepted) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeRefreshAccepted)
	}

	// The cycle itself runs in the background.
	for i := 0; i < 20 && pipeline.refreshCount() == 0; i++ {
		time.Sleep(50 * time.Millisecond)
	}
	if pipeline.refreshCount() != 1 {
		t.Errorf("refresh count = %d, want 1", pipeline.refreshCount())
	}
}

func TestHandleCommand_Subscribe(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	client := addTestClient(s)

	s.handleCommand(client.ID(), []byte(`{"command":"subscribe","payload":{"events":["refresh_completed"]}}`))

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeSubscriptionUpdate) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeSubscriptionUpdate)
	}

	var payload struct {
		Events []string `json:"events"`
		All    bool     `json:"all"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.All {
		t.Error("all = true after narrowing subscription")
	}
	if len(payload.Events) != 1 || payload.Events[0] != "refresh_completed" {
		t.Errorf("events = %v, want [refresh_completed]", payload.Events)
	}

	s.mu.RLock()
	filter := s.filters[client.ID()]
	s.mu.RUnlock()
	if !filter.IsFiltering() {
		t.Error("filter not narrowed after subscribe")
	}

	// An empty subscribe restores everything.
	s.handleCommand(client.ID(), []byte(`{"command":"subscribe"}`))
	env = receiveEvent(t, client)
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.All {
		t.Error("all = false after empty subscribe")
	}
	if filter.IsFiltering() {
		t.Error("filter still narrowed after empty subscribe")
	}
}

func TestHandleCommand_Status(t *testing.T) {
	pipeline := &fakePipeline{info: PipelineInfo{State: "idle", EntryCount: 42}}
	s := newTestServer(pipeline)
	client := addTestClient(s)

	s.handleCommand(client.ID(), []byte(`{"command":"status"}`))

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeStatus) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeStatus)
	}

	var status StatusResponse
	if err := json.Unmarshal(env.Payload, &status); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if status.State != "idle" || status.EntryCount != 42 {
		t.Errorf("payload = %+v", status)
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	client := addTestClient(s)

	s.handleCommand(client.ID(), []byte(`{"command":"reboot"}`))

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeError) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeError)
	}
	if !strings.Contains(string(env.Payload), "unknown command") {
		t.Errorf("payload = %s, want unknown command message", env.Payload)
	}
}

func TestHandleCommand_Malformed(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	client := addTestClient(s)

	s.handleCommand(client.ID(), []byte(`not json`))

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeError) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeError)
	}
}

func TestBroadcastHeartbeat(t *testing.T) {
	s := newTestServer(&fakePipeline{info: PipelineInfo{State: "watching"}})

	// No clients: nothing happens and the sequence does not advance.
	s.broadcastHeartbeat()
	if got := atomic.LoadInt64(&s.heartbeatSeq); got != 0 {
		t.Errorf("heartbeatSeq = %d, want 0", got)
	}

	client := addTestClient(s)
	s.broadcastHeartbeat()

	env := receiveEvent(t, client)
	if env.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeHeartbeat)
	}

	var payload events.HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Seq != 1 {
		t.Errorf("seq = %d, want 1", payload.Seq)
	}
	if payload.Status != "watching" {
		t.Errorf("status = %s, want watching", payload.Status)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	pipeline := &fakePipeline{info: PipelineInfo{State: "watching", Root: "/src"}}

	eventHub := hub.New()
	eventHub.Start()
	defer eventHub.Stop()

	s := New("127.0.0.1", 0, "test", pipeline, eventHub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)
	if got := s.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	readEvent := func() eventEnvelope {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return env
	}

	// Command round trip.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"status"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEvent(); env.Event != string(events.EventTypeStatus) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeStatus)
	}

	// Broadcast through the hub reaches the socket.
	eventHub.Publish(events.NewRefreshStartedEvent("/src"))
	if env := readEvent(); env.Event != string(events.EventTypeRefreshStarted) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeRefreshStarted)
	}

	// Narrow the subscription, then verify a filtered event is dropped
	// while an allowed one still arrives.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"subscribe","payload":{"events":["heartbeat"]}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEvent(); env.Event != string(events.EventTypeSubscriptionUpdate) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeSubscriptionUpdate)
	}

	eventHub.Publish(events.NewRefreshStartedEvent("/src"))
	eventHub.Publish(events.NewHeartbeatEvent(1, "watching", 60))
	if env := readEvent(); env.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("event = %s, want %s", env.Event, events.EventTypeHeartbeat)
	}

	conn.Close()
	time.Sleep(200 * time.Millisecond)
	if got := s.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d after disconnect, want 0", got)
	}
}
