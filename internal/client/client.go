// Package client is the storefront-side HTTP client for the payment
// gateway. It owns authentication continuity for the channel: when many
// concurrent requests hit an expired access token at once, exactly one
// refresh round-trip occurs and every waiter resumes transparently.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	refreshKey     = "refresh"
	refreshTimeout = 10 * time.Second
)

var (
	// ErrSessionTerminated is returned when the credential refresh itself
	// failed; the logout hook has fired and the caller must re-authenticate.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrAuthFailed is returned when a request still gets an authentication
	// failure after a successful refresh. The request is never looped.
	ErrAuthFailed = errors.New("authentication failed after refresh")
)

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// TokenPair holds the channel credentials.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for fresh credentials.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Request describes one gateway call.
type Request struct {
	Method string
	Path   string
	Body   any

	// RequiresAuth marks the request as riding the authenticated channel.
	// Only flagged requests participate in refresh coordination; a 401 on
	// an unflagged request is surfaced directly as an anomaly.
	RequiresAuth bool
}

// Client is a gateway HTTP client with single-flight refresh
// coordination. Refresh state is per-Client, injected where needed,
// never process-global.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresh    RefreshFunc
	onLogout   func()

	mu     sync.Mutex
	tokens TokenPair

	group singleflight.Group
}

// New creates a gateway client. onLogout fires exactly once per failed
// refresh resolution; pass nil when no session-terminated side effect is
// needed.
func New(baseURL string, httpClient *http.Client, refresh RefreshFunc, onLogout func()) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		refresh:    refresh,
		onLogout:   onLogout,
	}
}

// SetTokens installs the channel credentials.
func (c *Client) SetTokens(tokens TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
}

// Do performs a gateway call, decoding the JSON response into out. A
// request that hits an authentication failure is retried exactly once
// after the shared refresh resolves.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	status, body, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		if !req.RequiresAuth {
			// Not riding the authenticated channel: an auth failure here is
			// an anomaly, not a refresh trigger.
			log.Printf("[CLIENT] unexpected 401 on unauthenticated request %s %s", req.Method, req.Path)
			return &APIError{StatusCode: status, Message: string(body)}
		}

		if err := c.refreshCredentials(ctx); err != nil {
			return err
		}

		// Re-issue the original request exactly once.
		status, body, err = c.send(ctx, req)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return ErrAuthFailed
		}
	}

	if status < 200 || status > 299 {
		return &APIError{StatusCode: status, Message: string(body)}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// refreshCredentials joins the in-flight refresh or starts one. All
// concurrent callers share a single refresh round-trip; a caller whose
// context is cancelled while waiting abandons the wait without
// disturbing the shared refresh.
func (c *Client) refreshCredentials(ctx context.Context) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		c.mu.Lock()
		refreshToken := c.tokens.RefreshToken
		c.mu.Unlock()

		// Detached context: the refresh outcome is shared, so one waiter's
		// cancellation must not abort it for everyone.
		refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		tokens, err := c.refresh(refreshCtx, refreshToken)
		if err != nil {
			c.mu.Lock()
			c.tokens = TokenPair{}
			c.mu.Unlock()
			if c.onLogout != nil {
				c.onLogout()
			}
			return nil, err
		}

		c.SetTokens(tokens)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %v", ErrSessionTerminated, res.Err)
		}
		return nil
	}
}

// send issues one HTTP round-trip. The body is re-marshaled per attempt
// so a retried request carries a fresh reader.
func (c *Client) send(ctx context.Context, req Request) (int, []byte, error) {
	var reader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		return 0, nil, err
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.RequiresAuth {
		c.mu.Lock()
		token := c.tokens.AccessToken
		c.mu.Unlock()
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
