package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aiportal.dev/internal/monitoring"
)

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Monitoring == nil {
		disabled(w, "monitoring")
		return
	}
	q := r.URL.Query()
	at, err := parseTime(q.Get("time"))
	if err != nil {
		badRequest(w, "time: "+err.Error())
		return
	}
	samples, err := a.svc.Monitoring.Query(r.Context(), q.Get("query"), at)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", samples)
}

func (a *API) handleQueryRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Monitoring == nil {
		disabled(w, "monitoring")
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"))
	if err != nil {
		badRequest(w, "start: "+err.Error())
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		badRequest(w, "end: "+err.Error())
		return
	}
	step, err := parseStep(q.Get("step"))
	if err != nil {
		badRequest(w, "step: "+err.Error())
		return
	}
	series, err := a.svc.Monitoring.QueryRange(r.Context(), monitoring.RangeQuery{
		Expr:  q.Get("query"),
		Start: start,
		End:   end,
		Step:  step,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", series)
}

// parseTime accepts RFC3339 or Unix seconds, as the Prometheus API does.
// An empty value is the zero time.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.New("must be RFC3339 or unix seconds")
	}
	return t, nil
}

// parseStep accepts a Go duration or a number of seconds.
func parseStep(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("must be a duration or seconds")
	}
	return d, nil
}
