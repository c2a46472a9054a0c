package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrAuthFailure indicates the session was rejected even after re-authenticating.
var ErrAuthFailure = errors.New("authentication failed")

// logoutMarker appears on every page served to a logged-in user.
const logoutMarker = "[Log Out]"

// apiClient handles HTTP communication with the puzzle site.
// Calls are serialised and spaced by limiter.
type apiClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	mu        sync.Mutex
}

// newAPIClient creates a new API client with the given configuration.
func newAPIClient(cfg appConfig) (*apiClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base_url %q", cfg.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &apiClient{
		baseURL:   u.String(),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if c.userAgent == "" {
		c.userAgent = defaultUA
	}
	return c, nil
}

// apiError represents an unexpected HTTP status from the site.
type apiError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api %d", e.StatusCode)
}

// apiRequest describes one call to the site.
type apiRequest struct {
	method string
	path   string
	form   url.Values
	authed bool
}

// rawResponse is an HTTP response read fully into memory.
type rawResponse struct {
	StatusCode int
	Body       []byte
}

// do performs a single request with the session cookie when token is non-empty.
func (c *apiClient) do(ctx context.Context, req apiRequest, token string) (rawResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return rawResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}

	path := req.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+path, body)
	if err != nil {
		return rawResponse{}, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	if req.form != nil {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		hreq.AddCookie(&http.Cookie{Name: "session", Value: token})
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return rawResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	const maxResponseSize = 10 * 1024 * 1024 // 10MB limit
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return rawResponse{}, fmt.Errorf("read response: %w", err)
	}
	return rawResponse{StatusCode: resp.StatusCode, Body: b}, nil
}

// responseKind tags the outcome of classifying a raw response.
type responseKind int

const (
	responseValid responseKind = iota
	responseAuthRejected
	responseMissing
	responseMalformed
)

// classified is a raw response after classification.
type classified struct {
	kind   responseKind
	body   []byte
	reason string
}

// classifier maps a raw response onto a classified result. A non-nil error is a
// transport failure that must not be retried.
type classifier func(rawResponse) (classified, error)

func statusError(resp rawResponse) error {
	msg := strings.TrimSpace(string(resp.Body))
	if len(msg) > 200 || strings.HasPrefix(msg, "<") {
		msg = http.StatusText(resp.StatusCode)
	}
	return &apiError{StatusCode: resp.StatusCode, Message: msg, Body: resp.Body}
}

// classifyBoardJSON expects a private leaderboard JSON document. An HTML page in
// its place means the session was not accepted.
func classifyBoardJSON(resp rawResponse) (classified, error) {
	if resp.StatusCode == http.StatusNotFound {
		return classified{kind: responseMissing}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classified{}, statusError(resp)
	}
	trimmed := strings.TrimSpace(string(resp.Body))
	switch {
	case strings.HasPrefix(trimmed, "<"):
		return classified{kind: responseAuthRejected}, nil
	case !strings.HasPrefix(trimmed, "{"):
		return classified{kind: responseMalformed, reason: "expected a JSON object"}, nil
	}
	return classified{kind: responseValid, body: resp.Body}, nil
}

// classifyPublicPage accepts any HTML page regardless of login state.
func classifyPublicPage(resp rawResponse) (classified, error) {
	if resp.StatusCode == http.StatusNotFound {
		return classified{kind: responseMissing}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classified{}, statusError(resp)
	}
	if !strings.Contains(string(resp.Body), "<main") {
		return classified{kind: responseMalformed, reason: "page has no main content"}, nil
	}
	return classified{kind: responseValid, body: resp.Body}, nil
}

// classifyMemberPage accepts an HTML page rendered for a logged-in user.
func classifyMemberPage(resp rawResponse) (classified, error) {
	c, err := classifyPublicPage(resp)
	if err != nil || c.kind != responseValid {
		return c, err
	}
	if !strings.Contains(string(resp.Body), logoutMarker) {
		return classified{kind: responseAuthRejected}, nil
	}
	return c, nil
}

// classifyInput accepts raw puzzle input text.
func classifyInput(resp rawResponse) (classified, error) {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return classified{kind: responseMissing}, nil
	case resp.StatusCode == http.StatusBadRequest,
		strings.Contains(string(resp.Body), "Please log in"):
		return classified{kind: responseAuthRejected}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return classified{}, statusError(resp)
	}
	return classified{kind: responseValid, body: resp.Body}, nil
}

// classifyAnswer accepts the page returned after posting an answer.
func classifyAnswer(resp rawResponse) (classified, error) {
	body := string(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return classified{kind: responseMissing}, nil
	case resp.StatusCode == http.StatusBadRequest,
		strings.Contains(body, "please identify yourself"):
		return classified{kind: responseAuthRejected}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return classified{}, statusError(resp)
	case !strings.Contains(body, "<article"):
		return classified{kind: responseMalformed, reason: "answer page has no article"}, nil
	}
	return classified{kind: responseValid, body: resp.Body}, nil
}

// tokenSource supplies session tokens. force asks for a fresh one.
type tokenSource interface {
	Token(ctx context.Context, force bool) (string, error)
}

// remote pairs the API client with the session so authenticated calls can recover
// from a stale token.
type remote struct {
	api     *apiClient
	session tokenSource
	log     *logger
}

// fetch performs req and classifies the response. An authenticated request that
// is rejected triggers exactly one re-acquisition and retry.
func (r *remote) fetch(ctx context.Context, req apiRequest, classify classifier) ([]byte, error) {
	token := ""
	if req.authed {
		t, err := r.session.Token(ctx, false)
		if err != nil {
			return nil, err
		}
		token = t
	}

	for attempt := 0; ; attempt++ {
		resp, err := r.api.do(ctx, req, token)
		if err != nil {
			return nil, err
		}
		c, err := classify(resp)
		if err != nil {
			return nil, err
		}

		switch c.kind {
		case responseValid:
			return c.body, nil
		case responseMissing:
			return nil, ErrNotYetAvailable
		case responseMalformed:
			return nil, fmt.Errorf("malformed response from %s: %s", req.path, c.reason)
		}

		if !req.authed || attempt > 0 {
			return nil, fmt.Errorf("%s %s: %w", req.method, req.path, ErrAuthFailure)
		}
		r.log.warn("session token rejected, re-authenticating...")
		token, err = r.session.Token(ctx, true)
		if err != nil {
			return nil, err
		}
	}
}
