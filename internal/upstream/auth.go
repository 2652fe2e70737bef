package upstream

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Authorizer decorates an outbound request with credentials. A returned
// error aborts the call before it reaches the network.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *http.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error { return f(ctx, req) }

// Chain applies authorizers in order and stops at the first failure.
func Chain(auths ...Authorizer) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req *http.Request) error {
		for _, a := range auths {
			if a == nil {
				continue
			}
			if err := a.Authorize(ctx, req); err != nil {
				return err
			}
		}
		return nil
	})
}

// StaticBearer sends a credential configured at startup.
type StaticBearer struct {
	System string
	Token  string
}

func (s StaticBearer) Authorize(_ context.Context, req *http.Request) error {
	if strings.TrimSpace(s.Token) == "" {
		return Unauthenticated(s.System, "no credential configured for "+s.System)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

// StaticHeader sends a fixed header, typically an API key.
type StaticHeader struct {
	System string
	Name   string
	Value  string
}

func (s StaticHeader) Authorize(_ context.Context, req *http.Request) error {
	if strings.TrimSpace(s.Value) == "" {
		return Unauthenticated(s.System, "no "+s.Name+" configured for "+s.System)
	}
	req.Header.Set(s.Name, s.Value)
	return nil
}

// CallerToken forwards the token the portal caller supplied, read from the
// live call context. Calls without one fail instead of going out anonymous.
type CallerToken struct {
	System string
}

func (c CallerToken) Authorize(ctx context.Context, req *http.Request) error {
	cc, ok := CallFromContext(ctx)
	if !ok || strings.TrimSpace(cc.Token) == "" {
		return Unauthenticated(c.System, "caller token required for "+c.System)
	}
	req.Header.Set("Authorization", "Bearer "+cc.Token)
	return nil
}

// TokenFunc returns a bearer token, typically from a credential cache.
type TokenFunc func(ctx context.Context) (string, error)

// TokenSource sends whatever token Fetch yields.
type TokenSource struct {
	System string
	Fetch  TokenFunc
}

func (t TokenSource) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := t.Fetch(ctx)
	if err != nil {
		if _, ok := AsError(err); ok {
			return err
		}
		return &Error{Kind: KindAuth, Message: "obtain token: " + err.Error(), System: t.System, Cause: err}
	}
	if strings.TrimSpace(tok) == "" {
		return Unauthenticated(t.System, "empty token for "+t.System)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// HMACSigner adds X-Timestamp and X-Signature headers. The signature is
// hex(HMAC-SHA256(secret, METHOD "\n" PATH "\n" TIMESTAMP "\n" hex(sha256(body)))).
type HMACSigner struct {
	System string
	Secret string
	Now    func() time.Time
}

func (h HMACSigner) Authorize(_ context.Context, req *http.Request) error {
	if h.Secret == "" {
		return Unauthenticated(h.System, "no signing secret configured for "+h.System)
	}
	body, err := peekBody(req)
	if err != nil {
		return &Error{Kind: KindInternal, Message: "read request body for signing", System: h.System, Cause: err}
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", Sign(h.Secret, req.Method, req.URL.EscapedPath(), ts, body))
	return nil
}

// Sign computes the HMACSigner signature.
func Sign(secret, method, path, ts string, body []byte) string {
	digest := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToUpper(method) + "\n" + path + "\n" + ts + "\n" + hex.EncodeToString(digest[:])))
	return hex.EncodeToString(mac.Sum(nil))
}

func peekBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// RoundTripper applies auth to every request sent through base. It is used
// for third-party clients that own the HTTP round trip.
func RoundTripper(auth Authorizer, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{auth: auth, base: base}
}

type authTransport struct {
	auth Authorizer
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request
	out := req.Clone(req.Context())
	if t.auth != nil {
		if err := t.auth.Authorize(req.Context(), out); err != nil {
			if req.Body != nil {
				_ = req.Body.Close()
			}
			return nil, err
		}
	}
	if cc, ok := CallFromContext(req.Context()); ok && cc.CorrelationID != "" {
		out.Header.Set(CorrelationHeader, cc.CorrelationID)
	}
	return t.base.RoundTrip(out)
}
