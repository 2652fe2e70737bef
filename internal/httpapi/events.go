package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiportal.dev/internal/sktai"
)

const sseKeepAlive = 15 * time.Second

// streamImportJob answers GET /v1/models/import/{id}/events with a
// server-sent event per job change. The first observation decides the
// status: a failing job lookup is answered with the usual envelope.
func (a *API) streamImportJob(w http.ResponseWriter, r *http.Request, id string) {
	if a.svc.ImportJobs == nil {
		disabled(w, "models")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "client-error", "resource not found")
		return
	}

	updates := a.svc.ImportJobs.Watch(r.Context(), id)
	first, ok := <-updates
	if !ok {
		return
	}
	if first.Err != nil {
		writeFailure(w, r, first.Err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := a.writeJobEvent(w, r, first); err != nil || rc.Flush() != nil {
		return
	}
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := a.writeJobEvent(w, r, u); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

type streamError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (a *API) writeJobEvent(w io.Writer, r *http.Request, u sktai.JobUpdate) error {
	if u.Err != nil {
		_, kind, msg := classify(r, u.Err)
		return writeSSE(w, "error", streamError{Kind: string(kind), Message: msg})
	}
	return writeSSE(w, "job", u.Job)
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
