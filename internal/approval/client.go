package approval

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"aiportal.dev/internal/upstream"
)

// System names the gateway in errors, logs and metrics.
const System = "approval"

const resultOK = "0000"

// Credentials are issued by the gateway to the portal.
type Credentials struct {
	APIKey        string
	SigningSecret string
}

// result is the status block every gateway response carries, even on 200.
type result struct {
	Code    string `json:"result_code"`
	Message string `json:"result_message"`
}

// err classifies a non-success result code: 9xxx codes are gateway-side
// failures, anything else is a rejected request.
func (r result) err(op string) *upstream.Error {
	if r.Code == "" || r.Code == resultOK {
		return nil
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "result code " + r.Code
	}
	kind := upstream.KindClient
	if strings.HasPrefix(r.Code, "9") {
		kind = upstream.KindUnavailable
	}
	return &upstream.Error{Kind: kind, Message: msg, System: System, Operation: op, Status: http.StatusOK}
}

type approvalResponse struct {
	result
	Data approvalDTO `json:"data"`
}

type listResponse struct {
	result
	Total int64         `json:"total"`
	Items []approvalDTO `json:"items"`
}

var (
	submit = upstream.Binding[SubmitRequest, approvalResponse]{
		Name:   "Submit",
		Method: http.MethodPost,
		Path:   func(SubmitRequest) string { return "gw/approvals" },
		Body:   func(r SubmitRequest) any { return r },
	}
	get = upstream.Binding[string, approvalResponse]{
		Name:   "Get",
		Method: http.MethodGet,
		Path:   func(id string) string { return "gw/approvals/" + upstream.PathEscape(id) },
	}
	list = upstream.Binding[ListQuery, listResponse]{
		Name:   "List",
		Method: http.MethodGet,
		Path:   func(ListQuery) string { return "gw/approvals" },
		Query: func(q ListQuery) url.Values {
			v := url.Values{}
			v.Set("offset", strconv.Itoa(q.offset()))
			v.Set("limit", strconv.Itoa(q.Size))
			if q.Status != "" {
				v.Set("status", string(q.Status))
			}
			return v
		},
	}
)

// Client is the transport binding for the gateway. Every request carries
// the API key and an HMAC signature.
type Client struct {
	http *upstream.Client
}

func NewClient(cfg upstream.Config, creds Credentials) (*Client, error) {
	cfg.System = System
	cfg.Auth = upstream.Chain(
		upstream.StaticHeader{System: System, Name: "X-Api-Key", Value: creds.APIKey},
		upstream.HMACSigner{System: System, Secret: creds.SigningSecret},
	)
	c, err := upstream.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{http: c}, nil
}

func (c *Client) Submit(ctx context.Context, r SubmitRequest) (approvalDTO, error) {
	resp, err := submit.Call(ctx, c.http, r)
	if err != nil {
		return approvalDTO{}, err
	}
	if e := resp.err(submit.Name); e != nil {
		return approvalDTO{}, e
	}
	return resp.Data, nil
}

func (c *Client) Get(ctx context.Context, id string) (approvalDTO, error) {
	resp, err := get.Call(ctx, c.http, id)
	if err != nil {
		return approvalDTO{}, err
	}
	if e := resp.err(get.Name); e != nil {
		return approvalDTO{}, e
	}
	return resp.Data, nil
}

func (c *Client) List(ctx context.Context, q ListQuery) (listResponse, error) {
	resp, err := list.Call(ctx, c.http, q)
	if err != nil {
		return listResponse{}, err
	}
	if e := resp.err(list.Name); e != nil {
		return listResponse{}, e
	}
	return resp, nil
}
