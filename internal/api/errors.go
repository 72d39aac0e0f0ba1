package api

import (
	"encoding/json"
	"errors"
)

// ErrorKind classifies every failure the client can surface.
type ErrorKind string

const (
	// KindUnauthenticated: no token was available; raised before any
	// network call.
	KindUnauthenticated ErrorKind = "unauthenticated"
	// KindHTTP: the backend answered with a non-2xx status.
	KindHTTP ErrorKind = "http"
	// KindDuplicateAccount: signup hit an existing account.
	KindDuplicateAccount ErrorKind = "duplicate_account"
	// KindNetwork: the request never completed or the body was not JSON.
	KindNetwork ErrorKind = "network"
	// KindInvalidInput: the call was rejected locally before sending.
	KindInvalidInput ErrorKind = "invalid_input"
)

// Error is the single failure shape returned by every operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	// Detail is the message the backend put in the response body, empty
	// when the body was absent or unparsable.
	Detail string
	Err    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind (and Op when the target sets one), so
// errors.Is(err, ErrUnauthenticated) holds for every operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Message: "Not authenticated"}
	ErrDuplicateAccount = &Error{Kind: KindDuplicateAccount, Message: "Account already exists"}
)

// KindOf returns the kind of err, or "" when err did not come from this
// package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// StatusOf returns the HTTP status carried by err, 0 if none.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// errorBody is the backend's failure payload. FastAPI sends detail either as
// a string or as a list of validation errors.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

func (b errorBody) text() string {
	if len(b.Detail) > 0 {
		var s string
		if err := json.Unmarshal(b.Detail, &s); err == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(b.Detail, &items); err == nil {
			for _, it := range items {
				if it.Msg != "" {
					return it.Msg
				}
			}
		}
	}
	return b.Message
}

func parseErrorBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		return ""
	}
	return b.text()
}
