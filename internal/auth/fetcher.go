package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/mercsync/internal/logger"
)

var (
	// ErrUnauthorized means the upstream still rejected the request after
	// one credential refresh.
	ErrUnauthorized = errors.New("unauthorized after credential refresh")

	// ErrTurnInProgress means the game is computing the next turn and is not
	// serving requests. It is transient and not a failure.
	ErrTurnInProgress = errors.New("turn computation in progress")
)

// StatusError is a non-success upstream reply.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: upstream status %d: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher performs authenticated GETs. On 401 it refreshes the credential
// once, persists it, and retries the request once.
type Fetcher struct {
	http      *resty.Client
	refresher Refresher
	statePath string

	mu    sync.Mutex
	state *State
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the transport timeout for every request.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.http.SetTimeout(d)
	}
}

// WithRateLimit caps outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(f *Fetcher) {
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		f.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
}

// NewFetcher creates a Fetcher using state, persisting refreshes to statePath.
func NewFetcher(state *State, statePath string, refresher Refresher, opts ...Option) *Fetcher {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetDisableWarn(true)

	f := &Fetcher{
		http:      client,
		refresher: refresher,
		statePath: statePath,
		state:     state,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches url and returns the response body.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	token := f.token()

	resp, err := f.do(ctx, url, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		logger.Debug("Credential rejected for %s, refreshing", url)
		token, err = f.refresh(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh credential: %w", err)
		}
		resp, err = f.do(ctx, url, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, fmt.Errorf("GET %s: %w", url, ErrUnauthorized)
		}
	}

	switch {
	case resp.StatusCode() == http.StatusServiceUnavailable:
		return nil, ErrTurnInProgress
	case resp.IsError():
		return nil, &StatusError{StatusCode: resp.StatusCode(), URL: url, Body: resp.Body()}
	}
	return resp.Body(), nil
}

func (f *Fetcher) do(ctx context.Context, url, token string) (*resty.Response, error) {
	resp, err := f.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp, nil
}

func (f *Fetcher) token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.IDToken
}

// refresh swaps in a new credential unless another request already replaced
// the stale one, in which case the current token is returned as-is.
func (f *Fetcher) refresh(ctx context.Context, stale string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.IDToken != stale {
		return f.state.IDToken, nil
	}

	next, err := f.refresher.Refresh(ctx, f.state.RefreshToken)
	if err != nil {
		return "", err
	}
	f.state = next

	if err := next.Save(f.statePath); err != nil {
		logger.Error("Failed to persist refreshed credential to %s: %v", f.statePath, err)
	} else {
		logger.Info("Credential refreshed, expires at %s", next.ExpiresAt().Format(time.RFC3339))
	}
	return next.IDToken, nil
}
