package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/dispatch"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/handler"
	"github.com/soyeahso/agentos/internal/hooks"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/soyeahso/agentos/internal/registry"
	"github.com/soyeahso/agentos/internal/status"
	"github.com/soyeahso/agentos/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

type harness struct {
	srv     *Server
	ts      *httptest.Server
	reg     *registry.Registry
	disp    *dispatch.Dispatcher
	hooks   *hooks.Manager
	history *store.MemoryRunStore

	gate    chan struct{}
	release func()
}

func testTypes(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		catalog.AgentType{Name: "generic", Enabled: true, MaxInstances: 4, Timeout: 2 * time.Second},
		catalog.AgentType{Name: "slow", Enabled: true, MaxInstances: 1, Timeout: 5 * time.Second},
		catalog.AgentType{Name: "flaky", Enabled: true, MaxInstances: 2, Timeout: time.Second, RetryAttempts: 1},
		catalog.AgentType{Name: "sleepy", Enabled: true, MaxInstances: 1, Timeout: 50 * time.Millisecond},
		catalog.AgentType{Name: "retired", Enabled: false, MaxInstances: 1, Timeout: time.Second},
	)
	require.NoError(t, err)
	return cat
}

func newHarness(t *testing.T, authMode string) *harness {
	t.Helper()
	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)
	types := catalog.NewStore(testTypes(t))

	h := &harness{hooks: hm, gate: make(chan struct{})}
	var once sync.Once
	h.release = func() { once.Do(func() { close(h.gate) }) }

	set := handler.Builtins(log, nil)
	require.NoError(t, set.Register(handler.Func{ID: "slow", Fn: func(ctx context.Context, _ map[string]any, _ domain.Task) (any, error) {
		select {
		case <-h.gate:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}))
	require.NoError(t, set.Register(handler.Func{ID: "flaky", Fn: func(context.Context, map[string]any, domain.Task) (any, error) {
		return nil, errors.New("upstream exploded")
	}}))
	require.NoError(t, set.Register(handler.Func{ID: "sleepy", Fn: func(ctx context.Context, _ map[string]any, _ domain.Task) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))

	h.reg = registry.New(types, hm, log)
	h.history = store.NewMemoryRunStore(100)

	var err error
	h.disp, err = dispatch.New(h.reg, types, set, hm, log, dispatch.WithHistory(h.history))
	require.NoError(t, err)

	cfg := config.GatewayConfig{
		Bind: "loopback",
		Auth: config.GatewayAuth{Mode: authMode, Token: testToken},
	}
	h.srv = New(cfg, Backend{
		Registry:   h.reg,
		Dispatcher: h.disp,
		Status:     status.NewReporter(h.reg, types, h.disp),
		History:    h.history,
	}, log, WithHooks(hm))

	h.ts = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.ts.Close)
	t.Cleanup(h.release)
	return h
}

// do sends an authenticated REST request.
func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return h.doAs(t, testToken, method, path, body)
}

func (h *harness) doAs(t *testing.T, token, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) register(t *testing.T, name, typeName string) string {
	t.Helper()
	id, err := h.reg.Register(context.Background(), name, typeName, map[string]any{"latencyMs": 0})
	require.NoError(t, err)
	return id
}

// dial opens a WebSocket and completes the handshake with the given token.
func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	before := h.srv.Clients()
	conn, hello := h.connect(t, token)
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake should succeed")

	// The client joins the broadcast set right after hello.
	require.Eventually(t, func() bool { return h.srv.Clients() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func (h *harness) connect(t *testing.T, token string) (*websocket.Conn, Frame) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventConnectChallenge, challenge.Event)

	params := ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
	}
	if token != "" {
		params.Auth = &ConnectAuth{Token: token}
	}
	connectReq, err := NewRequest("auth-req", "connect", params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(connectReq))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "auth-req", hello.ID)
	return conn, hello
}

// call sends an RPC and returns its response, skipping event frames.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
	return awaitResponse(t, conn, id)
}

func awaitResponse(t *testing.T, conn *websocket.Conn, id string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

// awaitEvent reads frames until an agent.status event for hook arrives.
func awaitEvent(t *testing.T, conn *websocket.Conn, hook string) AgentStatusEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != FrameTypeEvent || f.Event != EventAgentStatus {
			continue
		}
		var ev AgentStatusEvent
		require.NoError(t, json.Unmarshal(f.Payload, &ev))
		if ev.Hook == hook {
			assert.Positive(t, f.Seq)
			return ev
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, "token")

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeJSON[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	h := newHarness(t, "token")

	resp, err := http.Get(h.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeJSON[errorBody](t, resp)
	assert.Equal(t, domain.CodeNotFound, body.Error.Code)
}

func TestWebSocketHandshakeSuccess(t *testing.T) {
	h := newHarness(t, "token")
	_, helloResp := h.connect(t, testToken)

	require.NotNil(t, helloResp.OK)
	assert.True(t, *helloResp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{
		"agents.create", "agents.list", "agents.run", "agents.runs", "agents.status",
		"agents.subscribe", "agents.unsubscribe", "health", "status.overview", "types.list",
	}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventAgentStatus)
	assert.Equal(t, MaxPayloadBytes, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return h.srv.Clients() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	h := newHarness(t, "token")
	_, resp := h.connect(t, "wrong-token")

	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)
	assert.Equal(t, "token_mismatch", resp.Error.Message)
	assert.Eventually(t, func() bool { return h.srv.authLimiter.tracked() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeAuthNone(t *testing.T) {
	h := newHarness(t, "none")
	conn := h.dial(t, "")

	resp := call(t, conn, "req-1", "health", nil)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)
}

func TestWebSocketHandshakeRejectsNonConnect(t *testing.T) {
	h := newHarness(t, "token")
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_error", resp.Error.Code)
}

func TestWebSocketRPCHealth(t *testing.T) {
	h := newHarness(t, "token")
	conn := h.dial(t, testToken)
	h.register(t, "a", "generic")

	resp := call(t, conn, "req-2", "health", nil)
	assert.Equal(t, FrameTypeResponse, resp.Type)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	assert.Equal(t, 1, health.Agents)
	assert.Equal(t, 0, health.InFlight)
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	h := newHarness(t, "token")
	conn := h.dial(t, testToken)

	resp := call(t, conn, "req-6", "nonexistent.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestWebSocketAgentLifecycle(t *testing.T) {
	h := newHarness(t, "token")
	conn := h.dial(t, testToken)
	// call discards events, so lifecycle events are read on their own connection.
	watcher := h.dial(t, testToken)

	resp := call(t, conn, "c-1", "agents.create", CreateAgentRequest{
		Name:   "Echo",
		Type:   "generic",
		Config: map[string]any{"latencyMs": 0},
	})
	require.True(t, *resp.OK)
	var created CreateAgentResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &created))
	require.NotEmpty(t, created.AgentID)

	ev := awaitEvent(t, watcher, hooks.EventAgentRegistered)
	assert.Equal(t, created.AgentID, ev.AgentID)

	resp = call(t, conn, "r-1", "agents.run", RunAgentRequest{
		AgentID: created.AgentID,
		Task:    map[string]any{"msg": "hi"},
	})
	require.True(t, *resp.OK, "run should succeed: %+v", resp.Error)
	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, created.AgentID, result["agentId"])
	assert.Equal(t, "generic", result["type"])

	resp = call(t, conn, "s-1", "agents.status", agentIDParams{AgentID: created.AgentID})
	require.True(t, *resp.OK)
	var rep domain.StatusReport
	require.NoError(t, json.Unmarshal(resp.Payload, &rep))
	assert.Equal(t, domain.StatusCompleted, rep.Status)
	assert.NotNil(t, rep.LastRunAt)

	resp = call(t, conn, "l-1", "agents.list", nil)
	require.True(t, *resp.OK)
	var list AgentsResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &list))
	require.Len(t, list.Agents, 1)
	assert.Equal(t, "Echo", list.Agents[0].Name)

	resp = call(t, conn, "h-1", "agents.runs", agentIDParams{AgentID: created.AgentID})
	require.True(t, *resp.OK)
	var runs RunsResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, domain.StatusCompleted, runs.Runs[0].Status)
}

func TestWebSocketRunEventsBroadcast(t *testing.T) {
	h := newHarness(t, "token")
	watcher := h.dial(t, testToken)
	id := h.register(t, "Echo", "generic")

	_, err := h.disp.Run(context.Background(), id, domain.Task{})
	require.NoError(t, err)

	admitted := awaitEvent(t, watcher, hooks.EventRunAdmitted)
	assert.Equal(t, id, admitted.AgentID)
	finished := awaitEvent(t, watcher, hooks.EventRunFinished)
	assert.Equal(t, "completed", finished.Data["status"])
}

func TestWebSocketSubscribeFiltersEvents(t *testing.T) {
	h := newHarness(t, "token")
	watcher := h.dial(t, testToken)
	wanted := h.register(t, "Wanted", "generic")
	other := h.register(t, "Other", "generic")

	resp := call(t, watcher, "s-1", "agents.subscribe", subscribeParams{AgentIDs: []string{"missing"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeNotFound, resp.Error.Code)

	resp = call(t, watcher, "s-2", "agents.subscribe", subscribeParams{AgentIDs: []string{wanted}})
	require.True(t, *resp.OK)
	var sub SubscriptionResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &sub))
	assert.Equal(t, []string{wanted}, sub.AgentIDs)
	assert.False(t, sub.All)

	_, err := h.disp.Run(context.Background(), other, domain.Task{})
	require.NoError(t, err)
	_, err = h.disp.Run(context.Background(), wanted, domain.Task{})
	require.NoError(t, err)

	ev := awaitEvent(t, watcher, hooks.EventRunAdmitted)
	assert.Equal(t, wanted, ev.AgentID, "events for other agents are filtered")

	resp = call(t, watcher, "s-3", "agents.unsubscribe", subscribeParams{})
	require.True(t, *resp.OK)
	require.NoError(t, json.Unmarshal(resp.Payload, &sub))
	assert.True(t, sub.All)
	assert.Empty(t, sub.AgentIDs)
}

func TestWebSocketRPCErrors(t *testing.T) {
	h := newHarness(t, "token")
	conn := h.dial(t, testToken)

	tests := []struct {
		name   string
		method string
		params any
		code   string
	}{
		{"create without name", "agents.create", CreateAgentRequest{Type: "generic"}, "invalid_params"},
		{"create unknown type", "agents.create", CreateAgentRequest{Name: "x", Type: "nope"}, domain.CodeInvalidType},
		{"create disabled type", "agents.create", CreateAgentRequest{Name: "x", Type: "retired"}, domain.CodeInvalidType},
		{"run without id", "agents.run", RunAgentRequest{}, "invalid_params"},
		{"run unknown agent", "agents.run", RunAgentRequest{AgentID: "missing"}, domain.CodeNotFound},
		{"status unknown agent", "agents.status", agentIDParams{AgentID: "missing"}, domain.CodeNotFound},
		{"status bad params", "agents.status", "not-an-object", "invalid_params"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, conn, "e-"+string(rune('a'+i)), tt.method, tt.params)
			require.NotNil(t, resp.OK)
			assert.False(t, *resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestWebSocketDisconnectCancelsRun(t *testing.T) {
	h := newHarness(t, "token")
	conn := h.dial(t, testToken)
	id := h.register(t, "Blocker", "slow")

	req, _ := NewRequest("r-1", "agents.run", RunAgentRequest{AgentID: id})
	require.NoError(t, conn.WriteJSON(req))

	assert.Eventually(t, func() bool { return h.disp.InFlight("slow") == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()

	assert.Eventually(t, func() bool { return h.disp.InFlight("slow") == 0 }, 2*time.Second, 10*time.Millisecond)
	a, err := h.reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, a.Status)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind string
		host string
		port int
		want string
	}{
		{"loopback", "", 18790, "127.0.0.1:18790"},
		{"lan", "", 9999, "0.0.0.0:9999"},
		{"auto", "", 8080, "0.0.0.0:8080"},
		{"custom", "", 3000, "0.0.0.0:3000"},
		{"custom", "10.0.0.5", 3000, "10.0.0.5:3000"},
		{"custom", "::1", 3000, "[::1]:3000"},
		{"unknown", "10.0.0.5", 5000, "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.bind+"/"+tt.host, func(t *testing.T) {
			addr := resolveBindAddr(config.GatewayConfig{Bind: tt.bind, CustomBindHost: tt.host, Port: tt.port})
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestServerStart(t *testing.T) {
	h := newHarness(t, "none")
	h.srv.cfg.Port = 0 // let OS pick a port

	var (
		mu     sync.Mutex
		events []string
	)
	h.hooks.OnAll("test", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.srv.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(h.srv.Addr(), ":0")
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + h.srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-errCh)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
	mu.Unlock()
}

func TestServerStartTLSMissingCert(t *testing.T) {
	h := newHarness(t, "none")
	h.srv.cfg.Port = 0
	h.srv.cfg.TLS = config.GatewayTLS{Enabled: true, CertPath: "/nonexistent/cert.pem", KeyPath: "/nonexistent/key.pem"}

	err := h.srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading TLS certificate")
}
