package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/evaluations/tasks":           "/v1/evaluations/tasks",
		"/v1/evaluations/tasks/t-1":       "/v1/evaluations/tasks/:id",
		"/v1/evaluations/tasks/t-1/extra": "/v1/evaluations/tasks/:id/*",
		"/v1/models/import/job-9":         "/v1/models/import/:id",
		"/v1/models/import/job-9/events":  "/v1/models/import/:id/events",
		"/v1/approvals/APR-1":             "/v1/approvals/:id",
		"/v1/approvals?page=2":            "/v1/approvals",
		"/v1/monitoring/query?query=up":   "/v1/monitoring/query",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveUpstreamCounts(t *testing.T) {
	before := testutil.ToFloat64(upstreamCallsTotal.WithLabelValues("datumo", "ListTasks", "ok"))
	ObserveUpstream("datumo", "ListTasks", "ok", 12*time.Millisecond)
	after := testutil.ToFloat64(upstreamCallsTotal.WithLabelValues("datumo", "ListTasks", "ok"))
	if after-before != 1 {
		t.Fatalf("expected counter to advance by 1, got %v", after-before)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Logger().Info().Str("system", "datumo").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "system"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
}
