package g2b

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

type ErrorKind string

const (
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindInvalidParams ErrorKind = "invalid_parameters"
	KindUpstream      ErrorKind = "upstream_error"
	KindAccessDenied  ErrorKind = "access_denied"
	KindUnknown       ErrorKind = "unknown"
)

// Result codes reported inside a 200 response body.
const (
	codeNormal = "00"
	codeNoData = "03"
)

var resultCodeKinds = map[string]ErrorKind{
	"01": KindUpstream, // application error
	"02": KindUpstream, // database error
	"04": KindUpstream, // http error
	"05": KindUpstream, // service timeout
	"10": KindInvalidParams,
	"11": KindInvalidParams, // missing mandatory parameter
	"12": KindInvalidParams, // no such service
	"20": KindAccessDenied,
	"22": KindQuotaExceeded,
	"30": KindAccessDenied, // service key not registered
	"31": KindAccessDenied, // key expired
	"32": KindAccessDenied, // unregistered IP
}

// APIError is an upstream failure classified by retryability.
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("g2b %s (code %s): %s", e.Kind, e.Code, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.Kind == KindQuotaExceeded || e.Kind == KindUpstream
}

func errorForCode(code, message string) *APIError {
	kind, ok := resultCodeKinds[code]
	if !ok {
		kind = KindUnknown
	}
	return &APIError{Kind: kind, Code: code, Message: message}
}

func errorForStatus(status int, body string) *APIError {
	kind := KindUnknown
	switch {
	case status == 429:
		kind = KindQuotaExceeded
	case status == 401 || status == 403:
		kind = KindAccessDenied
	case status >= 500:
		kind = KindUpstream
	case status >= 400:
		kind = KindInvalidParams
	}
	return &APIError{Kind: kind, Code: fmt.Sprintf("http_%d", status), Message: truncate(body, maxMessageBytes)}
}

const maxMessageBytes = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IsRetryable reports whether err is an upstream error worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsFatal reports whether err is an upstream error that must abort the run.
func IsFatal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Retryable()
}
