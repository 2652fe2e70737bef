package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiportal.dev/internal/obs"
)

// fakeTransport records the Authorization header of every request it sees,
// keyed by the caller header the test sets.
type fakeTransport struct {
	mu     sync.Mutex
	seen   map[string]string
	status int
	body   string
	delay  time.Duration
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	if f.seen == nil {
		f.seen = map[string]string{}
	}
	f.seen[req.Header.Get("X-Caller")] = req.Header.Get("Authorization")
	f.mu.Unlock()
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	body := f.body
	if body == "" {
		body = `{}`
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func newFakeClient(t *testing.T, ft *fakeTransport) *Client {
	t.Helper()
	c, err := NewClient(Config{System: "fake", BaseURL: "http://fake.local", Auth: CallerToken{System: "fake"}, Transport: ft})
	require.NoError(t, err)
	return c
}

func callFake(ctx context.Context, c *Client, caller string) (map[string]any, error) {
	var out map[string]any
	err := c.Do(ctx, Request{Operation: "Echo", Path: "echo", Header: http.Header{"X-Caller": []string{caller}}}, &out)
	return out, err
}

func TestRunReleasesCallContextOnEveryPath(t *testing.T) {
	f := Facade{System: "fake"}
	cases := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"success", func(context.Context) (int, error) { return 1, nil }},
		{"classified failure", func(context.Context) (int, error) { return 0, &Error{Kind: KindUnavailable, Message: "down"} }},
		{"unexpected failure", func(context.Context) (int, error) { return 0, errors.New("nil map") }},
		{"panic", func(context.Context) (int, error) { panic("boom") }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var captured context.Context
			_, _ = Run(context.Background(), f, Op{Name: "Echo", Token: "tok"}, func(ctx context.Context) (int, error) {
				captured = ctx
				cc, ok := CallFromContext(ctx)
				require.True(t, ok)
				require.Equal(t, "tok", cc.Token)
				return tc.fn(ctx)
			}, nil)

			require.NotNil(t, captured)
			_, ok := CallFromContext(captured)
			assert.False(t, ok, "call context must be absent after return")
			assert.True(t, Released(captured))
		})
	}
}

func TestRunPassesClassifiedErrorsThroughUnchanged(t *testing.T) {
	ft := &fakeTransport{status: http.StatusBadGateway, body: `{"message":"model registry offline"}`}
	c := newFakeClient(t, ft)

	var fromDecoder *Error
	_, err := Run(context.Background(), Facade{System: "fake"}, Op{Name: "Echo", Token: "t"}, func(ctx context.Context) (map[string]any, error) {
		out, err := callFake(ctx, c, "p")
		fromDecoder, _ = AsError(err)
		return out, err
	}, nil)

	require.NotNil(t, fromDecoder)
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Same(t, fromDecoder, ue)
	assert.Equal(t, KindUnavailable, ue.Kind)
	assert.Equal(t, "model registry offline", ue.Message)
	assert.Equal(t, fromDecoder.Error(), err.Error())
}

func TestRunWrapsUnexpectedErrors(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	cause := errors.New("index out of range")
	_, err := Run(context.Background(), Facade{System: "fake"}, Op{Name: "Echo"}, func(context.Context) (int, error) {
		return 0, fmt.Errorf("convert row: %w", cause)
	}, nil)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInternal, ue.Kind)
	assert.Equal(t, UnexpectedMessage, ue.Message)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, buf.String(), "convert row: index out of range")
}

func TestRunRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	res, err := Run(context.Background(), Facade{System: "fake"}, Op{Name: "Echo"}, func(context.Context) ([]string, error) {
		var m map[string][]string
		m["x"] = append(m["x"], "y")
		return m["x"], nil
	}, nil)
	assert.Nil(t, res)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, buf.String(), "external call panicked")
}

func TestRunLogsSuccessSummary(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	_, err := Run(context.Background(), Facade{System: "fake"}, Op{Name: "ListThings", Fields: map[string]any{"category": "JUDGE"}},
		func(context.Context) ([]int, error) { return []int{1, 2, 3}, nil },
		func(items []int) map[string]any { return map[string]any{"count": len(items)} })
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "fake", entry["system"])
	assert.Equal(t, "ListThings", entry["operation"])
	assert.Equal(t, "JUDGE", entry["category"])
	assert.Equal(t, float64(3), entry["count"])
	assert.NotEmpty(t, entry["correlation_id"])
}

func TestConcurrentCallersNeverSeeEachOthersToken(t *testing.T) {
	ft := &fakeTransport{delay: time.Millisecond}
	c := newFakeClient(t, ft)
	f := Facade{System: "fake"}

	const callers = 64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := fmt.Sprintf("req-%d", i)
			token := fmt.Sprintf("token-%d", i)
			_, err := Run(context.Background(), f, Op{Name: "Echo", Token: token}, func(ctx context.Context) (map[string]any, error) {
				return callFake(ctx, c, caller)
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.seen, callers)
	for i := 0; i < callers; i++ {
		assert.Equal(t, fmt.Sprintf("Bearer token-%d", i), ft.seen[fmt.Sprintf("req-%d", i)])
	}
}
