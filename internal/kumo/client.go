package kumo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/kumocloud/internal/rate"
)

const (
	DefaultBaseURL = "https://app-prod.kumocloud.com"

	apiVersion = "v3"
	appVersion = "3.0.3"

	requestTimeout   = 30 * time.Second
	maxAttempts      = 3
	rateLimitBackoff = 60 * time.Second
	minRequestGap    = 2 * time.Second

	// The cloud does not report token lifetimes; tokens are treated as
	// valid for tokenLifetime after issue and refreshed proactively once
	// within tokenExpiryMargin of that deadline.
	tokenLifetime     = 20 * time.Minute
	tokenExpiryMargin = time.Minute
)

// TokenSink receives every token change for durable storage.
type TokenSink func(username, access, refresh string) error

// Config defines runtime configuration for the Kumo Cloud client.
type Config struct {
	BaseURL string
	Sink    TokenSink
}

// Client talks to the Kumo Cloud REST API. It owns the credential and
// token state; tokens are never logged and only leave the client through
// the configured TokenSink and the redacted Diagnostics view.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	sink       TokenSink
	log        zerolog.Logger

	// test seams
	now            func() time.Time
	attemptTimeout time.Duration
	backoffBase    time.Duration

	mu             sync.Mutex
	username       string
	accessToken    string
	refreshToken   string
	tokenExpiresAt time.Time
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(minRequestGap),
		sink:           cfg.Sink,
		log:            logger.With().Str("component", "kumo").Logger(),
		now:            time.Now,
		attemptTimeout: requestTimeout,
		backoffBase:    rateLimitBackoff,
	}
}

// Login authenticates with username/password and stores the issued
// token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	payload := map[string]string{
		"username":   username,
		"password":   password,
		"appVersion": appVersion,
	}

	status, data, err := c.bareAttempt(ctx, http.MethodPost, c.endpoint("/login"), payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &ConnError{Reason: "connection timeout", Err: err}
		}
		return nil, &ConnError{Reason: "login request failed", Err: err}
	}
	switch {
	case status == http.StatusForbidden:
		return nil, &AuthError{Reason: "invalid username or password"}
	case status < 200 || status >= 300:
		return nil, &ConnError{Reason: "login failed", Status: status}
	}

	var resp LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ConnError{Reason: "decode login response", Err: err}
	}

	c.setTokens(username, resp.Token.Access, resp.Token.Refresh)
	c.persistTokens()
	return &resp, nil
}

// RestoreTokens seeds the client with previously persisted tokens. The
// expiry is left unknown, so the first 401 (or the coordinator's
// refresh-and-retry) settles whether they are still good.
func (c *Client) RestoreTokens(username, access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.accessToken = access
	c.refreshToken = refresh
	c.tokenExpiresAt = time.Time{}
	tokenValid.Set(1)
}

// RefreshAccessToken exchanges the held refresh token for a new pair.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return &AuthError{Reason: "no refresh token available"}
	}

	status, data, err := c.bareAttempt(ctx, http.MethodPost, c.endpoint("/refresh"), map[string]string{"refresh": refresh})
	if err != nil {
		refreshFailure.Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &ConnError{Reason: "connection timeout during refresh", Err: err}
		}
		return &ConnError{Reason: "refresh request failed", Err: err}
	}
	switch {
	case status == http.StatusUnauthorized:
		refreshFailure.Inc()
		tokenValid.Set(0)
		return &AuthError{Reason: "refresh token expired"}
	case status < 200 || status >= 300:
		refreshFailure.Inc()
		return &ConnError{Reason: "refresh failed", Status: status}
	}

	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		refreshFailure.Inc()
		return &ConnError{Reason: "decode refresh response", Err: err}
	}

	c.mu.Lock()
	username := c.username
	c.mu.Unlock()
	c.setTokens(username, pair.Access, pair.Refresh)
	c.persistTokens()
	refreshSuccess.Inc()
	c.log.Debug().Msg("access token refreshed")
	return nil
}

func (c *Client) setTokens(username, access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.accessToken = access
	c.refreshToken = refresh
	c.tokenExpiresAt = c.now().Add(tokenLifetime)
	tokenValid.Set(1)
}

func (c *Client) persistTokens() {
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	username, access, refresh := c.username, c.accessToken, c.refreshToken
	c.mu.Unlock()
	if err := c.sink(username, access, refresh); err != nil {
		c.log.Warn().Err(err).Msg("persist tokens")
	}
}

// ensureTokenValid fails when unauthenticated and refreshes proactively
// when the access token is inside its expiry margin.
func (c *Client) ensureTokenValid(ctx context.Context) error {
	c.mu.Lock()
	if c.accessToken == "" {
		c.mu.Unlock()
		return &AuthError{Reason: "no access token available"}
	}
	needsRefresh := !c.tokenExpiresAt.IsZero() &&
		!c.now().Add(tokenExpiryMargin).Before(c.tokenExpiresAt)
	c.mu.Unlock()

	if needsRefresh {
		return c.RefreshAccessToken(ctx)
	}
	return nil
}

// request is the authenticated request primitive: rate limiter, token
// check, then up to maxAttempts tries. Timeouts retry; 429 sleeps an
// exponential backoff outside the per-attempt timeout window; 401 fails
// immediately as an AuthError.
func (c *Client) request(ctx context.Context, method, path string, payload, out any) (err error) {
	if err = c.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer func() { c.limiter.Release(err) }()

	if err = c.ensureTokenValid(ctx); err != nil {
		return err
	}

	url := c.endpoint(path)
	delay := c.backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			status int
			ctype  string
			data   []byte
		)
		status, ctype, data, err = c.authedAttempt(ctx, method, url, payload)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if attempt < maxAttempts {
					c.log.Warn().Str("path", path).Int("attempt", attempt).Msg("request timeout, retrying")
					continue
				}
				err = &ConnError{Reason: "request timeout", Err: err}
				return err
			}
			err = &ConnError{Reason: "request failed", Err: err}
			return err
		case status == http.StatusTooManyRequests:
			requestsRateLimited.Inc()
			if attempt < maxAttempts {
				c.log.Warn().Str("path", path).Dur("backoff", delay).Int("attempt", attempt).Msg("rate limited, backing off")
				if err = sleepContext(ctx, delay); err != nil {
					return err
				}
				delay *= 2
				continue
			}
			err = &ConnError{Reason: "rate limit exceeded", Status: status}
			return err
		case status == http.StatusUnauthorized:
			err = &AuthError{Reason: "authentication failed"}
			return err
		case status < 200 || status >= 300:
			err = &ConnError{Reason: "unexpected response", Status: status}
			return err
		default:
			if out != nil && len(data) > 0 && strings.HasPrefix(ctype, "application/json") {
				if uerr := json.Unmarshal(data, out); uerr != nil {
					err = &ConnError{Reason: "decode " + path, Err: uerr}
					return err
				}
			}
			return nil
		}
	}
	err = &ConnError{Reason: "retries exhausted"}
	return err
}

// authedAttempt performs one bounded try of an authenticated call.
func (c *Client) authedAttempt(ctx context.Context, method, url string, payload any) (int, string, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, "", nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, body)
	if err != nil {
		return 0, "", nil, err
	}
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("x-app-version", appVersion)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		return 0, "", nil, err
	}
	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp.StatusCode, resp.Header.Get("Content-Type"), data, nil
}

// bareAttempt performs an unauthenticated call (login/refresh). These
// bypass the rate limiter, matching the cloud's auth endpoints.
func (c *Client) bareAttempt(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("x-app-version", appVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + apiVersion + path
}

// AccountInfo returns the authenticated account record.
func (c *Client) AccountInfo(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.request(ctx, http.MethodGet, "/accounts/me", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sites lists the account's installations.
func (c *Client) Sites(ctx context.Context) ([]Site, error) {
	var out []Site
	if err := c.request(ctx, http.MethodGet, "/sites/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Zones lists the zones of a site, each with its embedded adapter
// snapshot when a device is attached.
func (c *Client) Zones(ctx context.Context, siteID string) ([]Zone, error) {
	var out []Zone
	if err := c.request(ctx, http.MethodGet, "/sites/"+siteID+"/zones", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeviceDetails fetches the full state of one device.
func (c *Client) DeviceDetails(ctx context.Context, serial string) (DeviceDetail, error) {
	var out DeviceDetail
	if err := c.request(ctx, http.MethodGet, "/devices/"+serial, nil, &out); err != nil {
		return DeviceDetail{}, err
	}
	return out, nil
}

// DeviceProfile fetches the static capability descriptors of a device.
func (c *Client) DeviceProfile(ctx context.Context, serial string) ([]DeviceProfile, error) {
	var out []DeviceProfile
	if err := c.request(ctx, http.MethodGet, "/devices/"+serial+"/profile", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendCommand posts a command map for a device.
func (c *Client) SendCommand(ctx context.Context, serial string, commands map[string]any) (map[string]any, error) {
	payload := map[string]any{
		"deviceSerial": serial,
		"commands":     commands,
	}
	var out map[string]any
	if err := c.request(ctx, http.MethodPost, "/devices/send-command", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Diagnostics is the redacted client view safe for support bundles.
type Diagnostics struct {
	Username        string     `json:"username"`
	Authenticated   bool       `json:"authenticated"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
}

func (c *Client) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	diag := Diagnostics{
		Username:        redact(c.username),
		Authenticated:   c.accessToken != "",
		HasRefreshToken: c.refreshToken != "",
	}
	if !c.tokenExpiresAt.IsZero() {
		expires := c.tokenExpiresAt
		diag.TokenExpiresAt = &expires
	}
	return diag
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "**redacted**"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
