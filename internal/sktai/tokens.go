package sktai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aiportal.dev/internal/obs"
	"aiportal.dev/internal/tokencache"
	"aiportal.dev/internal/upstream"
)

// Credentials are the portal's client credentials on the platform.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

type loginRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (r loginRequest) Validate() error {
	if r.ClientID == "" || r.ClientSecret == "" {
		return errors.New("client credentials are not configured")
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

var (
	login = upstream.Binding[loginRequest, tokenResponse]{
		Name:   "Login",
		Method: http.MethodPost,
		Path:   func(loginRequest) string { return "api/v1/auth/token" },
		Body:   func(r loginRequest) any { return r },
	}
	refresh = upstream.Binding[refreshRequest, tokenResponse]{
		Name:   "RefreshToken",
		Method: http.MethodPost,
		Path:   func(refreshRequest) string { return "api/v1/auth/refresh" },
		Body:   func(r refreshRequest) any { return r },
	}
)

// Tokens obtains platform tokens and keeps them in the shared cache under
// the client id.
type Tokens struct {
	creds Credentials
	http  *upstream.Client
	cache *tokencache.Cache
	now   func() time.Time
}

// NewTokens builds the token provider. cfg points at the same platform as
// the API client; its Auth is ignored.
func NewTokens(cfg upstream.Config, creds Credentials, cache *tokencache.Cache) (*Tokens, error) {
	if cache == nil {
		return nil, errors.New("sktai: token cache is required")
	}
	cfg.System = System
	cfg.Auth = nil
	cfg.Extract = extractMessage
	c, err := upstream.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Tokens{creds: creds, http: c, cache: cache, now: time.Now}, nil
}

// Token returns a valid access token, logging in or refreshing as needed.
func (t *Tokens) Token(ctx context.Context) (string, error) {
	e, err := t.cache.Token(ctx, t.creds.ClientID, t.obtain)
	if err != nil {
		return "", err
	}
	return e.AccessToken, nil
}

// Authorizer sends the cached platform token on every call.
func (t *Tokens) Authorizer() upstream.Authorizer {
	return upstream.TokenSource{System: System, Fetch: t.Token}
}

// Invalidate drops the cached token so the next call re-authenticates.
func (t *Tokens) Invalidate(ctx context.Context) {
	t.cache.Invalidate(ctx, t.creds.ClientID)
}

func (t *Tokens) obtain(ctx context.Context, prior tokencache.Entry, ok bool) (tokencache.Entry, error) {
	if ok && prior.CanRefresh() {
		resp, err := refresh.Call(ctx, t.http, refreshRequest{RefreshToken: prior.RefreshToken})
		if err == nil {
			return t.entry(resp, prior)
		}
		switch upstream.KindOf(err) {
		case upstream.KindAuth, upstream.KindClient:
			obs.Logger().Info().Str("system", System).Err(err).Msg("refresh token rejected, logging in again")
		default:
			return tokencache.Entry{}, err
		}
	}
	resp, err := login.Call(ctx, t.http, loginRequest{
		GrantType:    "client_credentials",
		ClientID:     t.creds.ClientID,
		ClientSecret: t.creds.ClientSecret,
	})
	if err != nil {
		return tokencache.Entry{}, err
	}
	return t.entry(resp, tokencache.Entry{})
}

func (t *Tokens) entry(resp tokenResponse, prior tokencache.Entry) (tokencache.Entry, error) {
	if resp.AccessToken == "" {
		return tokencache.Entry{}, &upstream.Error{Kind: upstream.KindDecode, Message: "token response without access_token", System: System}
	}
	now := t.now()
	exp := jwtExpiry(resp.AccessToken)
	if exp.IsZero() && resp.ExpiresIn > 0 {
		exp = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if exp.IsZero() {
		return tokencache.Entry{}, &upstream.Error{Kind: upstream.KindDecode, Message: "token response without expiry", System: System}
	}
	rt := resp.RefreshToken
	if rt == "" {
		rt = prior.RefreshToken
	}
	return tokencache.Entry{
		AccessToken:  resp.AccessToken,
		RefreshToken: rt,
		IssuedAt:     now,
		ExpiresAt:    exp,
	}, nil
}

// jwtExpiry reads the exp claim without verifying the signature; the
// platform, not the portal, is the audience of the token.
func jwtExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
