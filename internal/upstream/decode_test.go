package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderClassifiesByStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindClient},
		{http.StatusNotFound, KindClient},
		{http.StatusConflict, KindClient},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusRequestTimeout, KindUnavailable},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadGateway, KindUnavailable},
		{http.StatusServiceUnavailable, KindUnavailable},
		{http.StatusFound, KindUnavailable},
	}
	d := Decoder{System: "datumo"}
	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			got := d.Response(tc.status, nil)
			assert.Equal(t, tc.want, got.Kind)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, "datumo", got.System)
		})
	}
}

func TestDecoderPreservesUpstreamMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"task category is not allowed"}`, "task category is not allowed"},
		{"nested error object", `{"error":{"code":"E42","message":"quota exhausted"}}`, "quota exhausted"},
		{"error string", `{"error":"invalid_grant","error_description":"refresh token revoked"}`, "invalid_grant"},
		{"detail list", `{"detail":[{"loc":["query","page"],"msg":"must be >= 1"},{"msg":"bad size"}]}`, "must be >= 1; bad size"},
		{"knitfab shape", `{"reason":"plan not found"}`, "plan not found"},
		{"plain text", "upstream exploded\n", "upstream exploded"},
		{"truncated json kept verbatim", `{"message":"half`, `{"message":"half`},
		{"json without message", `{"foo":1}`, "Internal Server Error"},
		{"empty body", "", "Internal Server Error"},
		{"json array", `[1,2]`, "Internal Server Error"},
	}
	d := Decoder{System: "x"}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := d.Response(http.StatusInternalServerError, []byte(tc.body))
			assert.Equal(t, KindUnavailable, got.Kind)
			assert.Equal(t, tc.want, got.Message)
		})
	}
}

func TestDecoderSystemExtractorWins(t *testing.T) {
	d := Decoder{System: "approval", Extract: func(body []byte) (string, bool) {
		return "gateway says no", true
	}}
	got := d.Response(http.StatusBadRequest, []byte(`{"message":"generic"}`))
	assert.Equal(t, "gateway says no", got.Message)
}

func TestDecoderSurvivesPanickingExtractor(t *testing.T) {
	d := Decoder{System: "x", Extract: func(body []byte) (string, bool) {
		panic("boom")
	}}
	got := d.Response(http.StatusBadRequest, []byte(`{"message":"fallback"}`))
	assert.Equal(t, KindClient, got.Kind)
	assert.Equal(t, "fallback", got.Message)
}

func TestDecoderTransport(t *testing.T) {
	d := Decoder{System: "sktai"}

	timeout := d.Transport(fmt.Errorf("do: %w", context.DeadlineExceeded))
	assert.Equal(t, KindUnavailable, timeout.Kind)
	assert.Equal(t, "timeout waiting for sktai", timeout.Message)
	assert.Equal(t, http.StatusGatewayTimeout, timeout.HTTPStatus())

	refused := d.Transport(errors.New("dial tcp: connection refused"))
	assert.Equal(t, KindUnavailable, refused.Kind)
	assert.Equal(t, "dial tcp: connection refused", refused.Message)
	assert.Equal(t, http.StatusBadGateway, refused.HTTPStatus())
}

func TestErrorHTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		{Kind: KindClient}: http.StatusBadRequest,
		{Kind: KindClient, Status: http.StatusNotFound}:            http.StatusNotFound,
		{Kind: KindClient, Status: http.StatusConflict}:            http.StatusConflict,
		{Kind: KindClient, Status: http.StatusUnprocessableEntity}: http.StatusUnprocessableEntity,
		{Kind: KindClient, Status: http.StatusTeapot}:              http.StatusBadRequest,
		{Kind: KindClient, Status: http.StatusOK}:                  http.StatusBadRequest,
		{Kind: KindAuth, Status: http.StatusForbidden}:             http.StatusForbidden,
		{Kind: KindAuth}:        http.StatusUnauthorized,
		{Kind: KindRateLimited}: http.StatusTooManyRequests,
		{Kind: KindUnavailable}: http.StatusBadGateway,
		{Kind: KindDecode}:      http.StatusBadGateway,
		{Kind: KindInternal}:    http.StatusInternalServerError,
	}
	for e, want := range cases {
		require.Equal(t, want, e.HTTPStatus(), "kind %s", e.Kind)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	wrapped := fmt.Errorf("ctx: %w", &Error{Kind: KindRateLimited})
	assert.Equal(t, KindRateLimited, KindOf(wrapped))
}
