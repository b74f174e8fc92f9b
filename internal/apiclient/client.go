// Package apiclient is a client for the gateway REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/gateway"
	"github.com/soyeahso/agentos/internal/status"
)

// maxErrorBody caps how much of a non-JSON error body is kept.
const maxErrorBody = 512

// Client talks to a running gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer credential (token or password).
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the gateway at baseURL. The default HTTP client
// has no overall timeout; bound calls with the context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a client for the local gateway described by cfg.
// AGENTOS_GATEWAY_URL overrides the derived address.
func FromConfig(cfg config.Config) *Client {
	base := os.Getenv("AGENTOS_GATEWAY_URL")
	if base == "" {
		base = localURL(cfg.Gateway)
	}

	return New(base, WithToken(gateway.ResolveAuth(cfg.Gateway.Auth).Secret()))
}

func localURL(gw config.GatewayConfig) string {
	scheme := "http"
	if gw.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" && gw.CustomBindHost != "0.0.0.0" {
		host = gw.CustomBindHost
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(gw.Port))
}

// BaseURL returns the gateway address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Error is a failed API call. Kind is the domain error matching Code, if
// any, so callers can use errors.Is(err, domain.ErrAtCapacity).
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
	Attempts   int
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps the wire code back to its domain error kind.
func (e *Error) Unwrap() error {
	switch e.Code {
	case domain.CodeNotFound:
		return domain.ErrNotFound
	case domain.CodeInvalidType:
		return domain.ErrInvalidType
	case domain.CodeAgentDisabled:
		return domain.ErrAgentDisabled
	case domain.CodeAtCapacity:
		return domain.ErrAtCapacity
	case domain.CodeTimeout:
		return domain.ErrTimeout
	case domain.CodeHandlerError:
		return domain.ErrHandler
	}
	return nil
}

// Health calls GET /health. It needs no credentials.
func (c *Client) Health(ctx context.Context) (gateway.HealthResponse, error) {
	var out gateway.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Overview calls GET /api/v1/status.
func (c *Client) Overview(ctx context.Context) (status.Overview, error) {
	var out status.Overview
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out)
	return out, err
}

// Types calls GET /api/v1/types.
func (c *Client) Types(ctx context.Context) ([]status.TypeStatus, error) {
	var out gateway.TypesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/types", nil, &out); err != nil {
		return nil, err
	}
	return out.Types, nil
}

// ListAgents calls GET /api/v1/agents.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Summary, error) {
	var out gateway.AgentsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// CreateAgent calls POST /api/v1/agents and returns the new agent id.
func (c *Client) CreateAgent(ctx context.Context, name, typeName string, cfg map[string]any) (string, error) {
	var out gateway.CreateAgentResponse
	req := gateway.CreateAgentRequest{Name: name, Type: typeName, Config: cfg}
	if err := c.do(ctx, http.MethodPost, "/api/v1/agents", req, &out); err != nil {
		return "", err
	}
	return out.AgentID, nil
}

// GetAgent calls GET /api/v1/agents/{id}.
func (c *Client) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	var out domain.Agent
	err := c.do(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Status calls GET /api/v1/agents/{id}/status.
func (c *Client) Status(ctx context.Context, id string) (domain.StatusReport, error) {
	var out domain.StatusReport
	err := c.do(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(id)+"/status", nil, &out)
	return out, err
}

// Run calls POST /api/v1/agents/{id}/run and waits for the result.
func (c *Client) Run(ctx context.Context, id string, task map[string]any) (*domain.RunResult, error) {
	var out domain.RunResult
	req := gateway.RunAgentRequest{Task: task}
	if err := c.do(ctx, http.MethodPost, "/api/v1/agents/"+url.PathEscape(id)+"/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs calls GET /api/v1/agents/{id}/runs. A non-positive limit uses the
// server default.
func (c *Client) Runs(ctx context.Context, id string, limit int) ([]domain.RunRecord, error) {
	path := "/api/v1/agents/" + url.PathEscape(id) + "/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out gateway.RunsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &Error{StatusCode: resp.StatusCode}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	var envelope struct {
		Error gateway.ErrorShape `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		if d, ok := envelope.Error.Details.(map[string]any); ok {
			if n, ok := d["attempts"].(float64); ok {
				apiErr.Attempts = int(n)
			}
		}
		return apiErr
	}

	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	apiErr.Message = msg
	return apiErr
}

// IsRetryable reports whether err is a capacity rejection the caller may
// retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrAtCapacity)
}
