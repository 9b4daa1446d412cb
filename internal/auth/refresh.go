package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Refresher exchanges a refresh token for a new id token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*State, error)
}

// TokenResponse is the token endpoint reply.
type TokenResponse struct {
	IDToken      string  `json:"id_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    Seconds `json:"expires_in"`
	TokenType    string  `json:"token_type"`
	UserID       string  `json:"user_id"`
}

type tokenError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// TokenRefresher talks to a securetoken-style endpoint.
type TokenRefresher struct {
	http     *resty.Client
	tokenURL string
	apiKey   string
	now      func() time.Time
}

// NewTokenRefresher creates a refresher posting to tokenURL?key=apiKey.
func NewTokenRefresher(tokenURL, apiKey string, timeout time.Duration) *TokenRefresher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &TokenRefresher{
		http:     client,
		tokenURL: tokenURL,
		apiKey:   apiKey,
		now:      time.Now,
	}
}

// Refresh performs the token exchange and returns the new credential.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*State, error) {
	var out TokenResponse
	var apiErr tokenError

	req := r.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(&out).
		SetError(&apiErr)
	if r.apiKey != "" {
		req.SetQueryParam("key", r.apiKey)
	}

	resp, err := req.Post(r.tokenURL)
	if err != nil {
		return nil, fmt.Errorf("token refresh request: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("token refresh rejected (%d): %s", resp.StatusCode(), msg)
	}
	if out.IDToken == "" || out.RefreshToken == "" {
		return nil, fmt.Errorf("token refresh returned an incomplete token pair")
	}

	issued := r.now()
	return &State{
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		CurrentTime:  float64(issued.UnixNano()) / float64(time.Second),
		ExpiresIn:    out.ExpiresIn,
	}, nil
}
