package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorBody     = 512

	// tokenTimeout bounds a token endpoint exchange. Token sources outlive
	// any single attempt, so they cannot use the attempt deadline.
	tokenTimeout = 30 * time.Second
)

// APICaller performs one HTTP request per attempt. A non-2xx response is
// a failure, so the dispatcher retries it per the type's policy.
//
// Agent config: baseUrl, method, headers, and an optional oauth2 block
// {tokenUrl, clientId, clientSecret, scopes} for the client-credentials
// grant. Task: endpoint or url, method, headers, body.
//
// OAuth2 clients are cached per credential set, so a token is fetched once
// and reused across attempts and runs until it expires.
type APICaller struct {
	client *http.Client
	log    *logging.Logger

	mu     sync.Mutex
	oauths map[string]*http.Client
}

// NewAPICaller creates the api-caller handler.
func NewAPICaller(client *http.Client, log *logging.Logger) *APICaller {
	return &APICaller{client: client, log: log.Sub("api-caller"), oauths: make(map[string]*http.Client)}
}

func (a *APICaller) Name() string { return "api-caller" }

func (a *APICaller) Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error) {
	target, err := resolveEndpoint(stringOption(cfg, "baseUrl", ""), task)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringOption(task, "method", stringOption(cfg, "method", http.MethodGet)))

	body, contentType, err := encodeBody(task["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range stringMapOption(cfg, "headers") {
		req.Header.Set(k, v)
	}
	for k, v := range stringMapOption(task, "headers") {
		req.Header.Set(k, v)
	}

	client, err := a.clientFor(mapOption(cfg, "oauth2"))
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	a.log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Msg("api call finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := respBody
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	result := map[string]any{
		"url":         target,
		"method":      method,
		"status":      resp.StatusCode,
		"contentType": resp.Header.Get("Content-Type"),
	}

	var decoded any
	if len(respBody) > 0 && json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(respBody)
	}
	return result, nil
}

// clientFor returns the shared client, or one that obtains tokens via the
// OAuth2 client-credentials grant when oauth is configured.
func (a *APICaller) clientFor(oauth map[string]any) (*http.Client, error) {
	if len(oauth) == 0 {
		return a.client, nil
	}

	cc := clientcredentials.Config{
		ClientID:     stringOption(oauth, "clientId", ""),
		ClientSecret: stringOption(oauth, "clientSecret", ""),
		TokenURL:     stringOption(oauth, "tokenUrl", ""),
		Scopes:       stringSliceOption(oauth, "scopes"),
	}
	if cc.TokenURL == "" || cc.ClientID == "" {
		return nil, errors.New("oauth2 requires tokenUrl and clientId")
	}

	key := credentialKey(cc)
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.oauths[key]; ok {
		return c, nil
	}

	tokenClient := &http.Client{Transport: a.client.Transport, Timeout: tokenTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenClient)
	c := &http.Client{
		Transport: &oauth2.Transport{
			Source: cc.TokenSource(ctx),
			Base:   a.client.Transport,
		},
		CheckRedirect: a.client.CheckRedirect,
		Jar:           a.client.Jar,
	}
	a.oauths[key] = c
	a.log.Debug().Str("tokenUrl", cc.TokenURL).Str("clientId", cc.ClientID).Msg("oauth2 client created")
	return c, nil
}

// credentialKey identifies a client-credentials grant. Scope order does not
// change the grant. The secret is part of the key so a rotated secret gets
// a fresh token source.
func credentialKey(cc clientcredentials.Config) string {
	scopes := slices.Clone(cc.Scopes)
	slices.Sort(scopes)
	return strings.Join([]string{cc.TokenURL, cc.ClientID, cc.ClientSecret, strings.Join(scopes, " ")}, "\x00")
}

func resolveEndpoint(baseURL string, task domain.Task) (string, error) {
	endpoint := task.String("endpoint")
	if endpoint == "" {
		endpoint = task.String("url")
	}
	if endpoint == "" {
		return "", errors.New("task.endpoint or task.url is required")
	}

	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("relative endpoint %q needs baseUrl in agent config", endpoint)
	}

	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid baseUrl: %w", err)
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery}).String(), nil
}

func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(payload), "application/json", nil
	}
}
