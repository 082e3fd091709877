// Package remote is a client for the hosted identity, row and blob storage
// service the tournament site delegates persistence to. It speaks the
// Supabase REST dialect (/auth/v1, /rest/v1, /storage/v1).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pstu-cpl/cpl/internal/session"
)

const (
	headerAPIKey        = "apikey"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerPrefer        = "Prefer"
	contentTypeJSON     = "application/json"
	clientInfo          = "cpl-go/1.0"

	// tokenKey is where the client keeps its session in the TokenStore.
	tokenKey = "sb-auth-token"

	// expiryMargin refreshes access tokens slightly before they expire.
	expiryMargin = 30 * time.Second
)

// Config holds what every Client of one remote project shares.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client talks to the remote service on behalf of one party. It owns that
// party's remote session and notifies subscribers when it changes.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
	tokens     session.Store

	mu      sync.Mutex
	current *Session
	loaded  bool
	subs    map[int]*Subscription
	nextSub int
}

// NewClient creates a Client. tokens may be nil, in which case the session
// lives only in memory.
func NewClient(cfg Config, tokens session.Store) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("%w: url and anon key are required", ErrUnavailable)
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: invalid url: %w", ErrUnavailable, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		now:        now,
		tokens:     tokens,
		subs:       make(map[int]*Subscription),
	}, nil
}

// request describes one call to the remote service.
type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	raw         []byte
	contentType string
	header      http.Header
	token       string
}

// do performs a request and decodes a JSON response into result when both
// are non-empty.
func (c *Client) do(ctx context.Context, req request, result any) error {
	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	contentType := req.contentType
	switch {
	case req.raw != nil:
		bodyReader = bytes.NewReader(req.raw)
	case req.body != nil:
		bodyBytes, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
		contentType = contentTypeJSON
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrUnavailable, err)
	}

	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	token := req.token
	if token == "" {
		token = c.anonKey
	}
	httpReq.Header.Set(headerAPIKey, c.anonKey)
	httpReq.Header.Set(headerAuthorization, "Bearer "+token)
	httpReq.Header.Set("X-Client-Info", clientInfo)
	if contentType != "" {
		httpReq.Header.Set(headerContentType, contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response body: %w", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}

	return nil
}

// bearer returns the access token of the current session, refreshing it
// when needed, or the anon key when no session exists.
func (c *Client) bearer(ctx context.Context) (string, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return c.anonKey, nil
	}
	return s.AccessToken, nil
}

// joinPath escapes each segment of an object key.
func joinPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		for _, seg := range strings.Split(p, "/") {
			if seg == "" {
				continue
			}
			segs = append(segs, url.PathEscape(seg))
		}
	}
	return strings.Join(segs, "/")
}
