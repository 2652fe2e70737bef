// Package monitoring queries the platform Prometheus through the official
// client, translating its results and errors into portal types.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"

	"aiportal.dev/internal/upstream"
)

// System names Prometheus in errors, logs and metrics.
const System = "prometheus"

const defaultTimeout = 30 * time.Second

// Client wraps the Prometheus HTTP API.
type Client struct {
	api     v1.API
	decoder upstream.Decoder
	timeout time.Duration
}

// NewClient builds the client from the shared upstream configuration. Auth,
// when set, is applied by a RoundTripper since the Prometheus client owns
// the round trip.
func NewClient(cfg upstream.Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("monitoring: base url is required")
	}
	rt := &statusRecorder{next: upstream.RoundTripper(cfg.Auth, cfg.Transport)}
	c, err := api.NewClient(api.Config{Address: cfg.BaseURL, RoundTripper: rt})
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		api:     v1.NewAPI(c),
		decoder: upstream.Decoder{System: System, Extract: cfg.Extract},
		timeout: timeout,
	}, nil
}

type statusKey struct{}

// statusRecorder stores the HTTP status of the response in the holder the
// caller put in the request context. The Prometheus client reports
// non-API failures only as "client error: 401" strings.
type statusRecorder struct {
	next http.RoundTripper
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if resp != nil {
		if holder, ok := req.Context().Value(statusKey{}).(*atomic.Int32); ok {
			holder.Store(int32(resp.StatusCode))
		}
	}
	return resp, err
}

func withStatus(ctx context.Context) (context.Context, *atomic.Int32) {
	holder := &atomic.Int32{}
	return context.WithValue(ctx, statusKey{}, holder), holder
}

// classify maps Prometheus client failures into the unified taxonomy.
func (c *Client) classify(op string, status int, err error) *upstream.Error {
	e := c.toError(status, err)
	if e.System == "" {
		e.System = System
	}
	if e.Operation == "" {
		e.Operation = op
	}
	return e
}

func (c *Client) toError(status int, err error) *upstream.Error {
	if ue, ok := upstream.AsError(err); ok {
		return ue
	}
	var perr *v1.Error
	if !errors.As(err, &perr) {
		return c.decoder.Transport(err)
	}
	switch perr.Type {
	case v1.ErrClient, v1.ErrServer:
		if status != 0 {
			e := c.decoder.Response(status, []byte(perr.Detail))
			e.Cause = perr
			return e
		}
	}
	e := &upstream.Error{Kind: kindFor(perr.Type), Message: perr.Msg, Status: status, Cause: perr}
	if e.Message == "" {
		e.Message = string(perr.Type)
	}
	return e
}

func kindFor(t v1.ErrorType) upstream.Kind {
	switch t {
	case v1.ErrBadData, v1.ErrExec, v1.ErrClient:
		return upstream.KindClient
	case v1.ErrTimeout, v1.ErrCanceled, v1.ErrServer:
		return upstream.KindUnavailable
	case v1.ErrBadResponse:
		return upstream.KindDecode
	}
	return upstream.KindInternal
}
