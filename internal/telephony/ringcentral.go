package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shopcalls/pkg/logger"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	defaultPageSize         = 250
	defaultRateLimitRetries = 3
	defaultRateLimitDelay   = 60 * time.Second

	// tokens are refreshed this long before the provider says they expire
	tokenExpirySkew = 60 * time.Second
)

type RingCentralOptions struct {
	ClientID     string
	ClientSecret string
	JWT          string

	// ServerURL is the platform base, e.g. https://platform.ringcentral.com.
	ServerURL string
	// MediaURL serves recording content. Derived from ServerURL when empty.
	MediaURL string

	HTTPClient *http.Client
	Logger     *slog.Logger

	PageSize         int
	RateLimitRetries int
	RateLimitDelay   time.Duration

	STTPollAttempts int
	STTPollInterval time.Duration
}

// RingCentral is a REST client for the RingCentral platform.
// Safe for concurrent use.
type RingCentral struct {
	opts RingCentralOptions
	hc   *http.Client
	log  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRingCentral(opts RingCentralOptions) (*RingCentral, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" || opts.JWT == "" {
		return nil, ErrNotConfigured
	}
	opts.ServerURL = strings.TrimRight(opts.ServerURL, "/")
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("%w: server url is required", ErrNotConfigured)
	}
	if opts.MediaURL == "" {
		opts.MediaURL = strings.Replace(opts.ServerURL, "://platform.", "://media.", 1)
	}
	opts.MediaURL = strings.TrimRight(opts.MediaURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.RateLimitRetries <= 0 {
		opts.RateLimitRetries = defaultRateLimitRetries
	}
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = defaultRateLimitDelay
	}
	if opts.STTPollAttempts <= 0 {
		opts.STTPollAttempts = defaultSTTPollAttempts
	}
	if opts.STTPollInterval <= 0 {
		opts.STTPollInterval = defaultSTTPollInterval
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &RingCentral{
		opts:  opts,
		hc:    hc,
		log:   logger.Component(l, "ringcentral"),
		now:   time.Now,
		sleep: sleepCtx,
	}, nil
}

func (c *RingCentral) Name() string { return "ringcentral" }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached bearer token, exchanging the JWT credential when needed.
func (c *RingCentral) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}
	if err := c.checkCredential(now); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeJWTBearer)
	form.Set("assertion", c.opts.JWT)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ServerURL+"/restapi/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("ringcentral auth: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("ringcentral auth: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("ringcentral auth: empty access token")
	}
	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySkew
	if ttl <= 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	c.token = tr.AccessToken
	c.tokenExpiry = now.Add(ttl)
	return c.token, nil
}

// checkCredential rejects a JWT credential whose exp claim has passed.
// Credentials that cannot be parsed locally are left for the server to judge.
func (c *RingCentral) checkCredential(now time.Time) error {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.opts.JWT, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return &APIError{
			StatusCode: http.StatusUnauthorized,
			Code:       "JWT-EXPIRED",
			Message:    "ringcentral JWT credential expired at " + claims.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	return nil
}

func (c *RingCentral) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

type providerErrorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Errors    []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"errors"`
	// OAuth endpoint shape
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// send executes req and returns the body of a 2xx response. Any other status is
// translated by classifyResponse. It must not take c.mu.
func (c *RingCentral) send(req *http.Request) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var eb providerErrorBody
	_ = json.Unmarshal(body, &eb)
	code, msg := eb.ErrorCode, eb.Message
	if code == "" && len(eb.Errors) > 0 {
		code, msg = eb.Errors[0].ErrorCode, eb.Errors[0].Message
	}
	if code == "" {
		code = eb.Error
	}
	if msg == "" {
		msg = eb.ErrorDescription
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, classifyResponse(resp.StatusCode, resp.Header, code, msg)
}

// do performs an authenticated request against base+path.
func (c *RingCentral) do(ctx context.Context, method, base, path string, query url.Values, accept string, payload any) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	body, err := c.send(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return body, err
}

func (c *RingCentral) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, c.opts.ServerURL, path, query, "application/json", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ringcentral: decode %s: %w", path, err)
	}
	return nil
}
