package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"aiportal.dev/internal/obs"
	"aiportal.dev/internal/upstream"
)

const (
	maxExprLen = 4096
	// maxPoints mirrors the Prometheus server limit per series.
	maxPoints = 11000
)

// Sample is one instant value.
type Sample struct {
	Metric    map[string]string `json:"metric"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// Point is one value of a range series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is one metric over a time range.
type Series struct {
	Metric map[string]string `json:"metric"`
	Points []Point           `json:"points"`
}

// RangeQuery is a query_range request.
type RangeQuery struct {
	Expr  string
	Start time.Time
	End   time.Time
	Step  time.Duration
}

func (q RangeQuery) Validate() error {
	if err := validateExpr(q.Expr); err != nil {
		return err
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return errors.New("start and end are required")
	}
	if !q.End.After(q.Start) {
		return errors.New("end must be after start")
	}
	if q.Step <= 0 {
		return errors.New("step must be positive")
	}
	if int64(q.End.Sub(q.Start)/q.Step) > maxPoints {
		return fmt.Errorf("range yields more than %d points, increase step", maxPoints)
	}
	return nil
}

func validateExpr(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return errors.New("query is required")
	}
	if len(expr) > maxExprLen {
		return fmt.Errorf("query must be at most %d characters", maxExprLen)
	}
	return nil
}

func (c *Client) invalid(op string, err error) *upstream.Error {
	e := upstream.Invalid(System, "%s", err.Error())
	e.Operation = op
	return e
}

// Query runs an instant query at the given time; a zero time means now.
func (c *Client) Query(ctx context.Context, expr string, at time.Time) ([]Sample, error) {
	const op = "Query"
	if err := validateExpr(expr); err != nil {
		return nil, c.invalid(op, err)
	}
	if at.IsZero() {
		at = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, status := withStatus(ctx)

	val, warnings, err := c.api.Query(ctx, strings.TrimSpace(expr), at, v1.WithTimeout(c.timeout))
	if err != nil {
		return nil, c.classify(op, int(status.Load()), err)
	}
	logWarnings(ctx, op, warnings)
	return c.samples(op, val)
}

// QueryRange runs a range query.
func (c *Client) QueryRange(ctx context.Context, q RangeQuery) ([]Series, error) {
	const op = "QueryRange"
	if err := q.Validate(); err != nil {
		return nil, c.invalid(op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, status := withStatus(ctx)

	r := v1.Range{Start: q.Start, End: q.End, Step: q.Step}
	val, warnings, err := c.api.QueryRange(ctx, strings.TrimSpace(q.Expr), r, v1.WithTimeout(c.timeout))
	if err != nil {
		return nil, c.classify(op, int(status.Load()), err)
	}
	logWarnings(ctx, op, warnings)
	m, ok := val.(model.Matrix)
	if !ok {
		return nil, c.unexpectedType(op, val)
	}
	sort.Sort(m)
	out := make([]Series, 0, len(m))
	for _, ss := range m {
		pts := make([]Point, 0, len(ss.Values))
		for _, p := range ss.Values {
			pts = append(pts, Point{Timestamp: p.Timestamp.Time().UTC(), Value: float64(p.Value)})
		}
		out = append(out, Series{Metric: labels(ss.Metric), Points: pts})
	}
	return out, nil
}

func (c *Client) samples(op string, val model.Value) ([]Sample, error) {
	switch v := val.(type) {
	case model.Vector:
		out := make([]Sample, 0, len(v))
		for _, s := range v {
			out = append(out, Sample{Metric: labels(s.Metric), Value: float64(s.Value), Timestamp: s.Timestamp.Time().UTC()})
		}
		return out, nil
	case *model.Scalar:
		return []Sample{{Metric: map[string]string{}, Value: float64(v.Value), Timestamp: v.Timestamp.Time().UTC()}}, nil
	}
	return nil, c.unexpectedType(op, val)
}

func (c *Client) unexpectedType(op string, val model.Value) *upstream.Error {
	t := "nil"
	if val != nil {
		t = val.Type().String()
	}
	return &upstream.Error{Kind: upstream.KindDecode, Message: "unexpected result type " + t, System: System, Operation: op}
}

func labels(m model.Metric) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}

func logWarnings(ctx context.Context, op string, warnings v1.Warnings) {
	if len(warnings) == 0 {
		return
	}
	cc, _ := upstream.CallFromContext(ctx)
	obs.Logger().Warn().
		Str("system", System).
		Str("operation", op).
		Str("correlation_id", cc.CorrelationID).
		Strs("warnings", warnings).
		Msg("prometheus returned warnings")
}
