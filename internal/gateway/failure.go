package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind string

const (
	// KindApplication means the backend answered with a non-2xx status.
	KindApplication Kind = "application"
	// KindTransport covers unreachable hosts, timeouts and undecodable bodies.
	KindTransport Kind = "transport"
	// KindStorage means the token store could not be read or written.
	KindStorage Kind = "storage"
)

// Failure is the single error shape every non-2xx outcome is normalized
// into. State containers store it verbatim.
type Failure struct {
	Kind   Kind                `json:"kind"`
	Status int                 `json:"status,omitempty"`
	Detail string              `json:"detail"`
	Fields map[string][]string `json:"fields,omitempty"`
	Err    error               `json:"-"`
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return f.Detail
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind) + " failure"
}

func (f *Failure) Unwrap() error { return f.Err }

// Unauthorized reports whether the backend rejected the credentials.
func (f *Failure) Unauthorized() bool {
	return f.Kind == KindApplication && (f.Status == http.StatusUnauthorized || f.Status == http.StatusForbidden)
}

// AsFailure returns err as a *Failure, wrapping foreign errors as
// transport failures. A nil err yields nil.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindTransport, Detail: err.Error(), Err: err}
}

func transportFailure(err error) *Failure {
	detail := err.Error()
	switch {
	case errors.Is(err, context.Canceled):
		detail = "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		detail = "request timed out"
	}
	return &Failure{Kind: KindTransport, Detail: detail, Err: err}
}

// StorageFailure wraps a token store error.
func StorageFailure(err error) *Failure {
	return &Failure{Kind: KindStorage, Detail: fmt.Sprintf("token store: %v", err), Err: err}
}

// decodeFailure turns an error response body into a Failure. It understands
// the backend's error bodies: {"detail": ...}, {"non_field_errors": [...]},
// {"field": ["msg"]}, {"error": ...} and a bare list of messages.
func decodeFailure(status int, body []byte) *Failure {
	f := &Failure{Kind: KindApplication, Status: status}

	var list []string
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		f.Detail = strings.Join(list, " ")
		return f
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		f.Detail = fallbackDetail(status)
		return f
	}

	for key, value := range raw {
		msgs := messages(value)
		if len(msgs) == 0 {
			continue
		}
		switch key {
		case "detail", "error":
			if f.Detail == "" || key == "detail" {
				f.Detail = strings.Join(msgs, " ")
			}
		default:
			if f.Fields == nil {
				f.Fields = make(map[string][]string)
			}
			f.Fields[key] = msgs
		}
	}

	if f.Detail == "" {
		if nfe := f.Fields["non_field_errors"]; len(nfe) > 0 {
			f.Detail = strings.Join(nfe, " ")
		}
	}
	if f.Detail == "" && len(f.Fields) > 0 {
		keys := make([]string, 0, len(f.Fields))
		for k := range f.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(f.Fields[k], " "))
		}
		f.Detail = strings.Join(parts, "; ")
	}
	if f.Detail == "" {
		f.Detail = fallbackDetail(status)
	}
	return f
}

func messages(value json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list
	}
	return nil
}

func fallbackDetail(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}
