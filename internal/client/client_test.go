package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// authedServer returns 401 until the expected token is presented.
func authedServer(t *testing.T, validToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
}

func TestDo_ExpiredToken_RefreshesAndRetries(t *testing.T) {
	t.Parallel()

	server := authedServer(t, "fresh-token")
	defer server.Close()

	var refreshCalls int32
	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		if refreshToken != "refresh-1" {
			t.Errorf("expected refresh token refresh-1, got %s", refreshToken)
		}
		return TokenPair{AccessToken: "fresh-token", RefreshToken: "refresh-2"}, nil
	}

	c := New(server.URL, nil, refresh, nil)
	c.SetTokens(TokenPair{AccessToken: "stale-token", RefreshToken: "refresh-1"})

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, &out)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !out.OK {
		t.Error("expected response to decode")
	}
	if refreshCalls != 1 {
		t.Errorf("expected 1 refresh, got %d", refreshCalls)
	}
}

func TestDo_ConcurrentExpiry_SingleRefresh(t *testing.T) {
	t.Parallel()

	server := authedServer(t, "fresh-token")
	defer server.Close()

	var refreshCalls int32
	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		// Hold the refresh open long enough for every caller to pile up.
		time.Sleep(50 * time.Millisecond)
		return TokenPair{AccessToken: "fresh-token", RefreshToken: "refresh-2"}, nil
	}

	c := New(server.URL, nil, refresh, nil)
	c.SetTokens(TokenPair{AccessToken: "stale-token", RefreshToken: "refresh-1"})

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: expected success after shared refresh, got: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Errorf("expected exactly 1 refresh across %d callers, got %d", callers, got)
	}
}

func TestDo_RefreshFailure_SingleLogout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var refreshCalls, logoutCalls int32
	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(50 * time.Millisecond)
		return TokenPair{}, errors.New("refresh token revoked")
	}
	onLogout := func() {
		atomic.AddInt32(&logoutCalls, 1)
	}

	c := New(server.URL, nil, refresh, onLogout)
	c.SetTokens(TokenPair{AccessToken: "stale-token", RefreshToken: "refresh-1"})

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrSessionTerminated) {
			t.Errorf("caller %d: expected ErrSessionTerminated, got: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", got)
	}
	if got := atomic.LoadInt32(&logoutCalls); got != 1 {
		t.Errorf("expected exactly 1 logout, got %d", got)
	}
}

func TestDo_AuthFailsAfterRefresh_NoLoop(t *testing.T) {
	t.Parallel()

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		return TokenPair{AccessToken: "still-rejected", RefreshToken: "refresh-2"}, nil
	}

	c := New(server.URL, nil, refresh, nil)
	c.SetTokens(TokenPair{AccessToken: "stale-token", RefreshToken: "refresh-1"})

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, nil)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("expected exactly 2 attempts (original plus one retry), got %d", got)
	}
}

func TestDo_UnauthenticatedRequest_401IsNotARefreshTrigger(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("who are you"))
	}))
	defer server.Close()

	var refreshCalls int32
	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return TokenPair{}, nil
	}

	c := New(server.URL, nil, refresh, nil)

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/health"}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got: %v", err)
	}
	if refreshCalls != 0 {
		t.Errorf("expected no refresh for an unauthenticated request, got %d", refreshCalls)
	}
}

func TestDo_CancelledWaiter_DoesNotAbortSharedRefresh(t *testing.T) {
	t.Parallel()

	server := authedServer(t, "fresh-token")
	defer server.Close()

	var refreshCalls int32
	refreshStarted := make(chan struct{})
	refresh := func(ctx context.Context, refreshToken string) (TokenPair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		close(refreshStarted)
		time.Sleep(100 * time.Millisecond)
		return TokenPair{AccessToken: "fresh-token", RefreshToken: "refresh-2"}, nil
	}

	c := New(server.URL, nil, refresh, nil)
	c.SetTokens(TokenPair{AccessToken: "stale-token", RefreshToken: "refresh-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		cancelledErr <- c.Do(ctx, Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, nil)
	}()

	<-refreshStarted
	cancel()

	if err := <-cancelledErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for the abandoned waiter, got: %v", err)
	}

	// A later caller rides the tokens installed by the undisturbed refresh.
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/ping", RequiresAuth: true}, nil)
	if err != nil {
		t.Fatalf("expected success with refreshed tokens, got: %v", err)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Errorf("expected the shared refresh to run once, got %d", got)
	}
}

func TestAPIError_Message(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 422, Message: "invoice declined"}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "invoice declined") {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}
