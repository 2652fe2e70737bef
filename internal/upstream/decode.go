package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maximum number of bytes of a non-JSON error body kept as message
const maxRawMessage = 2048

// MessageExtractor pulls a human-readable message out of an error body.
// It reports false when the body carries nothing it recognises.
type MessageExtractor func(body []byte) (string, bool)

// Decoder classifies failed calls for one upstream system.
type Decoder struct {
	System string
	// Extract is tried before the generic JSON lookup.
	Extract MessageExtractor
}

// Response classifies a non-2xx response. Classification depends only on
// status; the body only contributes the message.
func (d Decoder) Response(status int, body []byte) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Message: d.message(status, body),
		System:  d.System,
		Status:  status,
	}
}

// Transport classifies a failure that produced no response.
func (d Decoder) Transport(err error) *Error {
	msg := err.Error()
	switch {
	case isTimeout(err):
		msg = "timeout waiting for " + d.systemName()
	case errors.Is(err, context.Canceled):
		msg = "call to " + d.systemName() + " was canceled"
	}
	return &Error{
		Kind:    KindUnavailable,
		Message: msg,
		System:  d.System,
		Cause:   err,
	}
}

// Body classifies a 2xx response whose payload could not be decoded.
func (d Decoder) Body(status int, err error) *Error {
	return &Error{
		Kind:    KindDecode,
		Message: "malformed response body: " + err.Error(),
		System:  d.System,
		Status:  status,
		Cause:   err,
	}
}

func (d Decoder) systemName() string {
	if d.System == "" {
		return "upstream"
	}
	return d.System
}

func (d Decoder) message(status int, body []byte) string {
	if d.Extract != nil {
		if msg, ok := safeExtract(d.Extract, body); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := ExtractJSONMessage(body); ok {
		return msg
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && !json.Valid(body) {
		return truncate(trimmed, maxRawMessage)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status from " + d.systemName()
}

// a misbehaving extractor must not turn a classified failure into a panic
func safeExtract(fn MessageExtractor, body []byte) (msg string, ok bool) {
	defer func() {
		if recover() != nil {
			msg, ok = "", false
		}
	}()
	return fn(body)
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindClient
	default:
		return KindUnavailable
	}
}

var messageKeys = []string{"message", "error", "detail", "error_description", "msg", "reason", "result_message"}

// ExtractJSONMessage looks for the usual message fields in a JSON object body.
// "error" may itself be an object carrying one of the fields; "detail" may be
// a list of validation entries with "msg".
func ExtractJSONMessage(body []byte) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	return lookupMessage(obj, 0)
}

func lookupMessage(obj map[string]json.RawMessage, depth int) (string, bool) {
	if depth > 2 {
		return "", false
	}
	for _, key := range messageKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if msg, ok := lookupMessage(nested, depth+1); ok {
				return msg, true
			}
			continue
		}
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			var parts []string
			for _, item := range list {
				if msg, ok := lookupMessage(item, depth+1); ok {
					parts = append(parts, msg)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; "), true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
