package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotAResource = fmt.Errorf("not a hal resource")
var ErrLinkWithoutHref = fmt.Errorf("link must have href")
var ErrShapeMismatch = fmt.Errorf("unexpected response shape")
var ErrDeclaration = fmt.Errorf("invalid declaration")
var ErrNotTemplated = fmt.Errorf("uri is not templated")
var ErrUnknownType = fmt.Errorf("unknown type")
var ErrInvalidTemplate = fmt.Errorf("invalid uri template")
var ErrMissingURI = fmt.Errorf("missing uri")

var ErrBadRequest = fmt.Errorf("bad request")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrConflict = fmt.Errorf("conflict")
var ErrInternal = fmt.Errorf("internal error")
var ErrNotFound = fmt.Errorf("not found")
var ErrRequest = fmt.Errorf("request error")
var ErrUnauthorized = fmt.Errorf("unauthorized")

type myError struct {
	msg     string
	target  error
	payload []byte
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

// NewNotAResourceError reports a document that can not be parsed as a
// single HAL resource. The offending document is kept for diagnostics.
func NewNotAResourceError(msg string, payload []byte) error {
	return &myError{
		msg:     msg,
		target:  ErrNotAResource,
		payload: payload,
	}
}

func NewLinkWithoutHrefError(relation string, payload []byte) error {
	return &myError{
		msg:     fmt.Sprintf("link %q must have href", relation),
		target:  ErrLinkWithoutHref,
		payload: payload,
	}
}

func NewShapeMismatchError(msg string, payload []byte) error {
	return &myError{
		msg:     msg,
		target:  ErrShapeMismatch,
		payload: payload,
	}
}

func NewDeclarationError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrDeclaration,
	}
}

func NewUnknownTypeError(typeName string) error {
	return &myError{
		msg:    fmt.Sprintf("type %q has not been registered", typeName),
		target: ErrUnknownType,
	}
}

// PayloadOf returns the raw document attached to a malformed input error.
func PayloadOf(err error) ([]byte, bool) {
	var e *myError
	if errors.As(err, &e) && e.payload != nil {
		return e.payload, true
	}
	return nil, false
}

// NewErrorFromResponse maps a failed response to one of the sentinel
// errors, using an RFC 7807 problem report in the body when there is one.
func NewErrorFromResponse(code int, contentType string, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	detail := http.StatusText(code)

	if strings.HasPrefix(contentType, ProblemReportContentType) || strings.Contains(contentType, "json") {
		if err := json.Unmarshal(body, report); err == nil {
			switch {
			case report.Detail != "":
				detail = report.Detail
			case report.Title != "":
				detail = report.Title
			}
		}
	}

	target := ErrInternal

	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		target = ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		target = ErrUnauthorized
	case code == http.StatusConflict:
		target = ErrConflict
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		target = ErrBadRequest
	}

	return &myError{
		msg:     fmt.Sprintf("[code: %d] %s", code, detail),
		target:  target,
		payload: body,
	}
}

const (
	//ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"
)
