package domain

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Headers understood by App Bridge and the Shopify admin
const (
	HeaderRetryInvalidSession = "X-Shopify-Retry-Invalid-Session-Request"
	HeaderReauthorize         = "X-Shopify-API-Request-Failure-Reauthorize"
	HeaderReauthorizeURL      = "X-Shopify-API-Request-Failure-Reauthorize-Url"
	HeaderBounce              = "X-Shopify-Bounce"
)

// Response is an HTTP outcome decided by the authentication layer.
// It is returned as an error so callers cannot mistake it for success.
type Response struct {
	Status int
	Header http.Header
	Body   string
	// Reason is a log-friendly explanation, never written to the client
	Reason string
}

// NewResponse creates a response with an empty header set
func NewResponse(status int, reason string) *Response {
	return &Response{Status: status, Header: http.Header{}, Reason: reason}
}

// Redirect creates a 302 to location
func Redirect(location, reason string) *Response {
	resp := NewResponse(http.StatusFound, reason)
	resp.Header.Set("Location", location)
	return resp
}

// HTML creates a 200 text/html response
func HTML(body, reason string) *Response {
	resp := NewResponse(http.StatusOK, reason)
	resp.Header.Set("Content-Type", "text/html;charset=utf-8")
	resp.Body = body
	return resp
}

func (r *Response) Error() string {
	if r.Reason != "" {
		return fmt.Sprintf("auth response %d: %s", r.Status, r.Reason)
	}
	return fmt.Sprintf("auth response %d", r.Status)
}

// Location returns the redirect target, if any
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Write sends the response to w
func (r *Response) Write(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(r.Status)
	if r.Body != "" {
		_, _ = io.WriteString(w, r.Body)
	}
}

// AsResponse extracts a *Response from err
func AsResponse(err error) (*Response, bool) {
	var resp *Response
	if errors.As(err, &resp) {
		return resp, true
	}
	return nil, false
}
