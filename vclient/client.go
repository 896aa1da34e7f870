// Package vclient performs the storefront's session HTTP calls.
//
// Operations that can fail for expected reasons (wrong password, bad code)
// return a vdef.Result and a nil error; the error is reserved for transport
// failures. Me is the exception: it returns an error for every failure so
// startup validation can treat any failure as "no session".
package vclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/viicommerce/vsession/vdef"
)

// API paths.
const (
	PathLogin        = "/auth/login"
	PathLogout       = "/auth/logout"
	PathMe           = "/auth/me"
	PathRegister     = "/auth/register"
	PathResetRequest = "/reset-password/request"
	PathResetVerify  = "/reset-password/verify-otp"
	PathResetSet     = "/reset-password/resPss"
)

// Default user facing messages, used when the backend does not send one.
const (
	MsgLoginFailed    = "Could not sign in"
	MsgLogoutFailed   = "Could not close the session"
	MsgRequestFailed  = "The request could not be completed"
	MsgMalformedReply = "The server returned an unexpected response"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// SessionSource supplies the current session identifier. It is consulted
// on every request; "" means no header is sent.
type SessionSource interface {
	Load() string
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, for example "https://api.example.com/v1".
	BaseURL string

	// Session provides the identifier attached to every request. Optional.
	Session SessionSource

	// HTTPClient overrides the underlying client. Its transport is wrapped
	// to attach the session header.
	HTTPClient *http.Client

	// HTTP3 uses QUIC instead of TCP when HTTPClient is nil.
	HTTP3 bool

	// TLSConfig is used for HTTP/3 connections. Optional.
	TLSConfig *tls.Config

	// Timeout bounds each request. Defaults to 15 seconds.
	Timeout time.Duration

	// Observer receives transport failures. Optional.
	Observer vdef.Observer
}

// Client is the storefront session API client.
type Client struct {
	base     *url.URL
	http     *http.Client
	closer   io.Closer
	observer vdef.Observer
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{base: base, observer: cfg.Observer}

	var hc http.Client
	var rt http.RoundTripper
	switch {
	case cfg.HTTPClient != nil:
		hc = *cfg.HTTPClient
		rt = hc.Transport
	case cfg.HTTP3:
		h3 := &http3.Transport{TLSClientConfig: cfg.TLSConfig}
		c.closer = h3
		rt = h3
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	if hc.Timeout == 0 {
		hc.Timeout = timeout
	}
	hc.Transport = &sessionTransport{base: rt, source: cfg.Session, host: base.Host}
	c.http = &hc
	return c, nil
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Close releases transport resources.
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// sessionTransport attaches the session header to each request for the API
// host, reading the identifier at send time so a cleared session stops being
// sent at once. Redirects to other hosts never carry the header.
type sessionTransport struct {
	base   http.RoundTripper
	source SessionSource
	host   string
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.source == nil || !strings.EqualFold(req.URL.Host, t.host) {
		return t.base.RoundTrip(req)
	}
	id := t.source.Load()
	if id == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set(vdef.HeaderSession, id)
	return t.base.RoundTrip(r)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vsession: http %d", e.Status)
	}
	return fmt.Sprintf("vsession: http %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden)
}

// errorBody is the error envelope of the backend. Older endpoints use "error".
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// call sends req as JSON and decodes a 2xx body into resp.
// A non-2xx status is returned as *HTTPError; anything else is a transport
// or decoding failure.
func call[Req, Resp any](ctx context.Context, c *Client, method, path string, req *Req, resp *Resp) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	u := c.base.JoinPath(path)
	hreq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		vdef.Logf(c.observer, "client: %s %s: %v", method, path, err)
		return err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return &HTTPError{Status: hresp.StatusCode, Message: msg}
	}

	if resp == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("%w: %s: %v", vdef.ErrMalformedResponse, path, err)
	}
	return nil
}

// uniform runs call and folds expected failures into a Result. Only
// transport failures are returned as an error.
func uniform[Req, Resp, T any](ctx context.Context, c *Client, method, path string, req *Req, fallback string, extract func(*Resp) (T, string, error)) (vdef.Result[T], error) {
	var resp Resp
	err := call(ctx, c, method, path, req, &resp)

	var he *HTTPError
	switch {
	case errors.As(err, &he):
		msg := he.Message
		if msg == "" {
			msg = fallback
		}
		return vdef.Fail[T](msg, he), nil
	case errors.Is(err, vdef.ErrMalformedResponse):
		return vdef.Fail[T](MsgMalformedReply, err), nil
	case err != nil:
		return vdef.Result[T]{}, err
	}

	data, msg, err := extract(&resp)
	if err != nil {
		return vdef.Fail[T](MsgMalformedReply, err), nil
	}
	return vdef.Ok(data, msg), nil
}
