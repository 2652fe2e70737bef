package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"aiportal.dev/internal/obs"
	"aiportal.dev/internal/upstream"
)

// envelope is the body of every portal response.
type envelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	writeProblemData(w, status, kind, message, nil)
}

func writeProblemData(w http.ResponseWriter, status int, kind, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data, Error: &kind})
}

// writeFailure translates err into the envelope. Classified upstream errors
// keep their kind and message; anything else is logged and answered with a
// sanitized internal error.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, msg := classify(r, err)
	writeProblem(w, status, string(kind), msg)
}

func classify(r *http.Request, err error) (int, upstream.Kind, string) {
	ue, ok := upstream.AsError(err)
	if !ok {
		obs.Logger().Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("unclassified handler error")
		return http.StatusInternalServerError, upstream.KindInternal, upstream.UnexpectedMessage
	}
	if ue.Kind == upstream.KindInternal {
		return ue.HTTPStatus(), ue.Kind, upstream.UnexpectedMessage
	}
	return ue.HTTPStatus(), ue.Kind, ue.Message
}

func badRequest(w http.ResponseWriter, msg string) {
	writeProblem(w, http.StatusBadRequest, string(upstream.KindClient), msg)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeProblem(w, http.StatusMethodNotAllowed, string(upstream.KindClient), "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

var errBodyTooLarge = errors.New("request body too large")

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeProblem(w, http.StatusRequestEntityTooLarge, string(upstream.KindClient), err.Error())
		return
	}
	badRequest(w, err.Error())
}

// intParam returns 0 when the parameter is absent so façade defaults apply.
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < 1 {
		return 0, errors.New(name + " must be >= 1")
	}
	return val, nil
}

// pathID returns the single path segment after prefix, or "" when the path
// has none or more than one.
func pathID(r *http.Request, prefix string) string {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
