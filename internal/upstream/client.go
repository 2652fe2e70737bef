package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// CorrelationHeader carries the call context correlation id upstream.
	CorrelationHeader = "X-Correlation-ID"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20
)

// Config is everything an upstream client needs, passed at construction.
type Config struct {
	System  string
	BaseURL string
	// Timeout bounds one round trip including reading the body.
	Timeout time.Duration
	Auth    Authorizer
	// Transport overrides http.DefaultTransport, mainly for tests.
	Transport http.RoundTripper
	// Limiter, when set, throttles outbound calls; waiting past the
	// context deadline yields a rate-limited error.
	Limiter   *rate.Limiter
	Extract   MessageExtractor
	UserAgent string
}

// Client performs single, non-retried JSON calls against one upstream system.
type Client struct {
	system    string
	base      *url.URL
	http      *http.Client
	auth      Authorizer
	limiter   *rate.Limiter
	decoder   Decoder
	userAgent string
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.System) == "" {
		return nil, errors.New("upstream: system name is required")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q for %s", cfg.BaseURL, cfg.System)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
		if base.RawPath != "" {
			base.RawPath += "/"
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "aiportal/" + cfg.System
	}
	return &Client{
		system:    cfg.System,
		base:      base,
		http:      &http.Client{Timeout: timeout, Transport: transport},
		auth:      cfg.Auth,
		limiter:   cfg.Limiter,
		decoder:   Decoder{System: cfg.System, Extract: cfg.Extract},
		userAgent: ua,
	}, nil
}

// System is the upstream system name used in errors, logs and metrics.
func (c *Client) System() string { return c.system }

// Decoder returns the client's error decoder.
func (c *Client) Decoder() Decoder { return c.decoder }

// Request describes one outbound call.
type Request struct {
	Operation string
	Method    string
	// Path is relative to the base URL; segments must already be escaped.
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Do sends r and decodes a 2xx JSON body into out (which may be nil).
// Every failure is returned as *Error.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return c.stamp(r, &Error{Kind: KindInternal, Message: "build request: " + err.Error(), Cause: err})
	}
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			if ue, ok := AsError(err); ok {
				return c.stamp(r, ue)
			}
			return c.stamp(r, &Error{Kind: KindAuth, Message: err.Error(), Cause: err})
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.stamp(r, &Error{Kind: KindRateLimited, Message: "outbound rate limit: " + err.Error(), Cause: err})
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.stamp(r, c.decoder.Transport(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.stamp(r, c.decoder.Transport(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.stamp(r, c.decoder.Response(resp.StatusCode, body))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return c.stamp(r, c.decoder.Body(resp.StatusCode, errors.New("empty body")))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.stamp(r, c.decoder.Body(resp.StatusCode, err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimLeft(r.Path, "/"))
	if err != nil {
		return nil, err
	}
	u := c.base.ResolveReference(ref)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if cc, ok := CallFromContext(ctx); ok && cc.CorrelationID != "" {
		req.Header.Set(CorrelationHeader, cc.CorrelationID)
	}
	return req, nil
}

// stamp fills the call identity on an error created by this client.
func (c *Client) stamp(r Request, e *Error) *Error {
	if e.System == "" {
		e.System = c.system
	}
	if e.Operation == "" {
		e.Operation = r.Operation
	}
	return e
}

// Validator is implemented by request types that declare their constraints.
type Validator interface {
	Validate() error
}

// Binding maps one upstream endpoint to one typed call.
type Binding[Req, Resp any] struct {
	Name   string
	Method string
	Path   func(Req) string
	Query  func(Req) url.Values
	Body   func(Req) any
}

// Call validates req, sends exactly one request and decodes the response.
func (b Binding[Req, Resp]) Call(ctx context.Context, c *Client, req Req) (Resp, error) {
	var out Resp
	if v, ok := any(req).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, c.invalid(b.Name, err)
		}
	}
	r := Request{Operation: b.Name, Method: b.Method}
	if b.Path != nil {
		r.Path = b.Path(req)
	}
	if b.Query != nil {
		r.Query = b.Query(req)
	}
	if b.Body != nil {
		r.Body = b.Body(req)
	}
	if err := c.Do(ctx, r, &out); err != nil {
		var zero Resp
		return zero, err
	}
	return out, nil
}

func (c *Client) invalid(op string, err error) *Error {
	if ue, ok := AsError(err); ok {
		return ue
	}
	e := Invalid(c.system, "%s", err.Error())
	e.Operation = op
	e.Cause = fmt.Errorf("%w: %w", ErrValidation, err)
	return e
}

// PathEscape escapes a single path segment.
func PathEscape(segment string) string {
	return url.PathEscape(segment)
}
