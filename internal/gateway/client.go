package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentos/internal/logging"
)

// writeTimeout bounds a single frame write so a stalled client cannot
// block event broadcast.
const writeTimeout = 10 * time.Second

// outboxSize is how many broadcast frames may wait for a slow client
// before further frames are dropped for it.
const outboxSize = 64

// ErrClientBacklogged is returned by Enqueue when the client's outbox is full.
var ErrClientBacklogged = errors.New("client outbox full")

// Client represents an authenticated WebSocket connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	log    *logging.Logger

	subMu sync.RWMutex
	subs  map[string]struct{} // nil: every agent

	outbox chan Frame
}

// NewClient creates a Client for a newly authenticated WebSocket connection.
// The client's context is derived from parent and is cancelled on Close.
// Broadcast frames are written by a per-client goroutine that stops with it.
func NewClient(parent context.Context, conn *websocket.Conn, info ClientInfo, authResult AuthResult, log *logging.Logger) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
		outbox:      make(chan Frame, outboxSize),
	}
	go c.writeLoop()
	return c
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.outbox:
			if err := c.Send(f); err != nil {
				if !errors.Is(err, ErrClientClosed) {
					c.log.Warn().Err(err).Str("connId", c.ConnID).Msg("event write failed")
				}
				return
			}
		}
	}
}

// Enqueue hands a frame to the client's writer without waiting for the
// socket. A client whose outbox is full misses the frame.
func (c *Client) Enqueue(frame Frame) error {
	if c.outbox == nil {
		return c.Send(frame)
	}
	if c.Context().Err() != nil {
		return ErrClientClosed
	}
	select {
	case c.outbox <- frame:
		return nil
	default:
		return ErrClientBacklogged
	}
}

// Context is cancelled when the connection closes. Work started on behalf
// of the client should stop with it.
func (c *Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Subscribe narrows agent.status events to the given agents. Calls
// accumulate.
func (c *Client) Subscribe(agentIDs ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]struct{}, len(agentIDs))
	}
	for _, id := range agentIDs {
		c.subs[id] = struct{}{}
	}
}

// Unsubscribe removes agents from the subscription. With no ids it resets
// the client to receive events for every agent.
func (c *Client) Unsubscribe(agentIDs ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(agentIDs) == 0 {
		c.subs = nil
		return
	}
	for _, id := range agentIDs {
		delete(c.subs, id)
	}
}

// Subscriptions returns the subscribed agent ids, or nil when the client
// receives events for every agent.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subs == nil {
		return nil
	}
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Wants reports whether events for agentID should be delivered.
func (c *Client) Wants(agentID string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subs == nil {
		return true
	}
	_, ok := c.subs[agentID]
	return ok
}

// Send sends a frame to the client. Thread-safe.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	_ = c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Socket.WriteJSON(frame)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return c.Socket.Close()
}

// ClientRegistry manages connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().
		Str("connId", c.ConnID).
		Str("client", c.Info.ID).
		Str("auth", c.AuthResult.Method).
		Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Dur("connected", time.Since(c.ConnectedAt)).Msg("client disconnected")
	}
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast queues an event about agentID for every client that wants it
// and returns how many clients accepted it. The frame is encoded once and
// queued outside the registry lock. It never waits on a socket.
func (r *ClientRegistry) Broadcast(agentID, event string, payload any, seq int64) int {
	frame, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding broadcast failed")
		return 0
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.Wants(agentID) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.Enqueue(frame); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
