package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RefreshSkew is how close to expiry a token may get before it is refreshed
// ahead of use.
const RefreshSkew = 60 * time.Second

type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (c Credentials) expiringWithin(skew time.Duration, now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	return !c.ExpiresAt.IsZero() && now.Add(skew).After(c.ExpiresAt)
}

// Refresher exchanges a refresh token for fresh credentials.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// TokenSource hands out bearer tokens and refreshes them proactively when
// expiry is within the skew window, so requests never go out with a token
// about to die mid-flight.
type TokenSource struct {
	mu        sync.Mutex
	creds     Credentials
	refresher Refresher
	skew      time.Duration
	now       func() time.Time
}

func NewTokenSource(initial Credentials, refresher Refresher) *TokenSource {
	return &TokenSource{
		creds:     initial,
		refresher: refresher,
		skew:      RefreshSkew,
		now:       time.Now,
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.creds.expiringWithin(s.skew, s.now()) {
		return s.creds.AccessToken, nil
	}
	if s.refresher == nil {
		if s.creds.AccessToken == "" {
			return "", fmt.Errorf("no access token and no refresher configured")
		}
		return s.creds.AccessToken, nil
	}

	fresh, err := s.refresher.Refresh(ctx, s.creds.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	s.creds = fresh
	return s.creds.AccessToken, nil
}

// SetCredentials replaces the stored credentials, e.g. after an interactive
// login.
func (s *TokenSource) SetCredentials(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
}

// UnauthorizedAction tells the caller what a 401 means for the session.
type UnauthorizedAction int

const (
	// CallerHandles means the request failed for a recoverable reason the
	// caller should surface in place.
	CallerHandles UnauthorizedAction = iota
	// ForceLogout means the stored credentials are no longer usable at all.
	ForceLogout
)

var forceLogoutMarkers = []string{
	"token expired",
	"token has expired",
	"invalid token",
	"token revoked",
	"signature verification failed",
}

// ClassifyUnauthorized inspects a 401 body and decides whether the whole
// session must end or the failure stays with the caller. The backend only
// distinguishes the cases through message text.
func ClassifyUnauthorized(message string) UnauthorizedAction {
	lower := strings.ToLower(message)
	for _, marker := range forceLogoutMarkers {
		if strings.Contains(lower, marker) {
			return ForceLogout
		}
	}
	return CallerHandles
}

// HTTPRefresher refreshes credentials against the portal auth endpoint.
type HTTPRefresher struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPRefresher(endpoint string) *HTTPRefresher {
	return &HTTPRefresher{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Credentials{}, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Credentials{}, fmt.Errorf("token refresh status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, fmt.Errorf("decode refresh response: %w", err)
	}

	creds := Credentials{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	if out.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return creds, nil
}
