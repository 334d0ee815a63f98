package activitypub

import (
	"net/http"
	"net/url"
	"strings"
)

// SignedRequestContext is the signature material of an inbox request,
// captured once so verification does not depend on the live request.
type SignedRequestContext struct {
	Method string
	// Path is the escaped path as it appeared on the wire.
	Path      string
	Query     string
	Signature string
	// Headers has lower-cased keys, repeated headers joined with ", ".
	Headers map[string]string
}

func NewSignedRequestContext(r *http.Request) SignedRequestContext {
	headers := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	return SignedRequestContext{
		Method:    r.Method,
		Path:      r.URL.EscapedPath(),
		Query:     r.URL.RawQuery,
		Signature: r.Header.Get("Signature"),
		Headers:   headers,
	}
}

func (s SignedRequestContext) Header(name string) string {
	return s.Headers[strings.ToLower(name)]
}

// Request rebuilds a bodiless *http.Request carrying the captured method,
// target and headers, which is all a signature covers.
func (s SignedRequestContext) Request() *http.Request {
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	u := &url.URL{Path: s.Path, RawQuery: s.Query}
	if p, err := url.PathUnescape(s.Path); err == nil {
		u.Path, u.RawPath = p, s.Path
	}
	return &http.Request{
		Method: s.Method,
		URL:    u,
		Header: h,
		Host:   s.Headers["host"],
	}
}
