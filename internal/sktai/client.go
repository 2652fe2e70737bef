package sktai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"aiportal.dev/internal/upstream"
)

// System names the platform in errors, logs and metrics.
const System = "sktai"

var (
	listModels = upstream.Binding[ModelQuery, springPage[modelDTO]]{
		Name:   "ListModels",
		Method: http.MethodGet,
		Path:   func(ModelQuery) string { return "api/v1/models" },
		Query: func(q ModelQuery) url.Values {
			v := url.Values{}
			v.Set("page", strconv.Itoa(q.Page-1))
			v.Set("size", strconv.Itoa(q.Size))
			if q.Keyword != "" {
				v.Set("keyword", q.Keyword)
			}
			return v
		},
	}
	importModel = upstream.Binding[ImportRequest, importJobDTO]{
		Name:   "ImportModel",
		Method: http.MethodPost,
		Path:   func(ImportRequest) string { return "api/v1/models/import" },
		Body:   func(r ImportRequest) any { return r },
	}
	getImportJob = upstream.Binding[string, importJobDTO]{
		Name:   "GetImportJob",
		Method: http.MethodGet,
		Path:   func(id string) string { return "api/v1/models/import/" + upstream.PathEscape(id) },
	}
)

// Client is the transport binding for the model garden API. Calls carry a
// platform token obtained through the Tokens provider.
type Client struct {
	http *upstream.Client
}

// NewClient builds the API client; auth is normally Tokens.Authorizer().
func NewClient(cfg upstream.Config, auth upstream.Authorizer) (*Client, error) {
	cfg.System = System
	cfg.Auth = auth
	cfg.Extract = extractMessage
	c, err := upstream.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{http: c}, nil
}

func (c *Client) ListModels(ctx context.Context, q ModelQuery) (springPage[modelDTO], error) {
	return listModels.Call(ctx, c.http, q)
}

func (c *Client) ImportModel(ctx context.Context, r ImportRequest) (importJobDTO, error) {
	return importModel.Call(ctx, c.http, r)
}

func (c *Client) GetImportJob(ctx context.Context, id string) (importJobDTO, error) {
	return getImportJob.Call(ctx, c.http, id)
}

// extractMessage prefers the OAuth error_description over the bare error
// code, then falls back to the generic lookup.
func extractMessage(body []byte) (string, bool) {
	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauth); err == nil && oauth.Description != "" {
		return oauth.Description, true
	}
	return upstream.ExtractJSONMessage(body)
}
