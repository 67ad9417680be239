// Package dealer implements an authenticated HTTP client for the
// dealer activation service.
//
// The client is intentionally thin: it performs the login exchange,
// attaches the session and device headers to every call, and surfaces
// transport and auth failures as typed errors. Application-level
// failure codes inside a well-formed response body are returned to the
// caller as data, not errors; interpreting them is the sequencer's job.
package dealer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oemtools/satactivate/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrAuth indicates the service rejected the credentials or the
	// session token. The caller must re-authenticate before retrying.
	ErrAuth = errors.New("authentication rejected")

	// ErrTransport indicates a network or HTTP-level failure before
	// any application response could be read.
	ErrTransport = errors.New("transport failure")

	ErrMissingToken = errors.New("token missing in login response")
)

// DefaultTimeout bounds each individual dealer request.
const DefaultTimeout = 10 * time.Second

const defaultUserAgent = "SiriusXM Dealer/3.1.0 CFNetwork/1568.200.51 Darwin/24.1.0"

// Session is an authenticated context for dealer calls.
// Sessions are created by Authenticate and are never shared between
// concurrent activation runs.
type Session struct {
	Token    string
	IssuedAt time.Time
}

// Valid reports whether the session carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// Client calls dealer service endpoints.
// It is stateless across calls except for the configuration it was
// constructed with; session tokens are passed in by the caller.
type Client struct {
	baseURL   string
	appKey    string
	appSecret string
	deviceID  string
	userAgent string
	client    *http.Client
	logger    log.Logger
}

type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient swaps the underlying HTTP client (and its timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithCredentials sets the app key and secret presented during login.
func WithCredentials(key, secret string) Option {
	return func(c *Client) {
		c.appKey = key
		c.appSecret = secret
	}
}

// WithUserAgent overrides the dealer app user agent string.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a dealer client for the service at baseURL.
// The deviceID is the locally generated app-installation identifier
// sent with every request; it is distinct from the radio ID being
// activated.
func New(baseURL, deviceID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		deviceID:  deviceID,
		userAgent: defaultUserAgent,
		client:    &http.Client{Timeout: DefaultTimeout},
		logger:    log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logkeys.DeviceID, deviceID)
	return c
}

// headers returns the base header set for every dealer call, with the
// session authorization header when a valid session is supplied.
func (c *Client) headers(sess *Session) http.Header {
	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-us")
	h.Set("User-Agent", c.userAgent)
	h.Set("X-Voltmx-API-Version", "1.0")
	h.Set("X-Voltmx-DeviceId", c.deviceID)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	if sess.Valid() {
		h.Set("X-Voltmx-Authorization", sess.Token)
	}
	return h
}

// resolve turns an endpoint into an absolute URL.
// Endpoints that are already absolute (the oracle backend) pass through.
func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.baseURL + endpoint
}

func (c *Client) post(ctx context.Context, rawURL string, header http.Header, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return body, fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return body, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}
	return body, nil
}

// loginResponse is the subset of the login payload the client needs.
type loginResponse struct {
	ClaimsToken struct {
		Value string `json:"value"`
	} `json:"claims_token"`
}

// Authenticate exchanges the app credentials for a new session.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	header := c.headers(nil)
	header.Set("X-Voltmx-Platform-Type", "ios")
	header.Set("X-Voltmx-SDK-Type", "js")
	header.Set("X-Voltmx-SDK-Version", "9.5.36")
	header.Set("X-Voltmx-App-Key", c.appKey)
	header.Set("X-Voltmx-App-Secret", c.appSecret)

	body, err := c.post(ctx, c.resolve(EndpointLogin), header, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var login loginResponse
	if err = json.Unmarshal(body, &login); err != nil {
		return nil, fmt.Errorf("%w: unmarshal login response: %v", ErrAuth, err)
	}
	if login.ClaimsToken.Value == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuth, ErrMissingToken)
	}

	ctxlog.Logger(ctx, c.logger).Debug(logkeys.Message, "authenticated")
	return &Session{Token: login.ClaimsToken.Value, IssuedAt: time.Now()}, nil
}

// Call issues a single form-encoded POST to endpoint using sess.
// The raw response body is returned for any 2xx response regardless of
// the application-level status it carries. ErrAuth is returned when the
// service rejects the session; ErrTransport for connection and other
// HTTP-level failures.
func (c *Client) Call(ctx context.Context, endpoint string, form url.Values, sess *Session) ([]byte, error) {
	rawURL := c.resolve(endpoint)
	body, err := c.post(ctx, rawURL, c.headers(sess), form)
	if err != nil {
		return body, err
	}
	ctxlog.Logger(ctx, c.logger).Debug(
		logkeys.Message, "dealer call",
		logkeys.Endpoint, endpoint,
		logkeys.GenericCount, len(body),
	)
	return body, nil
}
