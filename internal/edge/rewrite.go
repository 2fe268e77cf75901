// Package edge rewrites requests at the CDN before they reach the function.
package edge

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/pkg/lambda"
)

// Rewrite prepares a viewer request for the origin.
//
// Without a host header the request is rejected with 400. When domainName is
// empty or matches the host, the host is copied into the forwarded-host
// header and query keys containing "/" are percent-encoded, since a raw "/"
// in a key corrupts the CDN cache key. Other keys pass through untouched.
// Requests for any other host are redirected to domainName with 308.
func Rewrite(req *Request, domainName string) Result {
	host, ok := req.Headers["host"]
	if !ok {
		return Result{Response: &Response{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]Value{},
			Cookies:    map[string]Value{},
		}}
	}

	if domainName == "" || host.Value == domainName {
		req.Headers[lambda.ForwardedHostHeader] = Value{Value: host.Value}

		query := make(map[string]QueryValue, len(req.QueryString))
		for key, value := range req.QueryString {
			if strings.Contains(key, "/") {
				key = EncodeURIComponent(key)
			}
			query[key] = value
		}
		req.QueryString = query

		return Result{Request: req}
	}

	return Result{Response: &Response{
		StatusCode:        http.StatusPermanentRedirect,
		StatusDescription: "Permanent Redirect",
		Headers: map[string]Value{
			"location": {Value: "https://" + domainName + req.URI + redirectSearch(req.QueryString)},
		},
		Cookies: map[string]Value{},
	}}
}

// HandleEvent runs Rewrite on a full CloudFront Functions event.
func HandleEvent(ev *Event, domainName string) Result {
	return Rewrite(&ev.Request, domainName)
}

// redirectSearch rebuilds the query string for a redirect location.
func redirectSearch(query map[string]QueryValue) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var pairs []string
	for _, key := range keys {
		entry := query[key]
		if len(entry.MultiValue) == 0 {
			pairs = append(pairs, key+"="+entry.Value)
			continue
		}
		for _, v := range entry.MultiValue {
			pairs = append(pairs, key+"="+v.Value)
		}
	}

	return "?" + strings.Join(pairs, "&")
}

// ViewerRequest is the Lambda@Edge flavour of the rewrite: it forwards the
// host, re-encodes the query string and, for GET and HEAD, points the URI at
// the prerendered file so the CDN can cache it. table must be unprefixed.
func ViewerRequest(req *OriginRequest, table prerendered.Table) *OriginRequest {
	if host, ok := req.Headers["host"]; ok {
		forwarded := make([]OriginHeader, 0, len(host))
		for _, h := range host {
			forwarded = append(forwarded, OriginHeader{Value: h.Value})
		}
		req.Headers[lambda.ForwardedHostHeader] = forwarded
	}

	req.QueryString = NormalizeQueryString(req.QueryString)

	if !lambda.IsPrerenderMethod(req.Method) {
		return req
	}

	if file, ok := table.Lookup(req.URI); ok {
		req.URI = "/" + file
	}
	return req
}

// NormalizeQueryString re-encodes a raw query string in form encoding,
// keeping pair order. "/enter" becomes "%2Fenter".
func NormalizeQueryString(raw string) string {
	if raw == "" {
		return ""
	}

	var pairs []string
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, url.QueryEscape(unescape(key))+"="+url.QueryEscape(unescape(value)))
	}
	return strings.Join(pairs, "&")
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// EncodeURIComponent escapes everything except letters, digits and
// -_.!~*'() the way browsers' encodeURIComponent does.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

// HandleOriginEvent runs ViewerRequest on the first record of a Lambda@Edge event.
func HandleOriginEvent(ev *OriginEvent, table prerendered.Table) (*OriginRequest, error) {
	if len(ev.Records) == 0 {
		return nil, errors.New("lambda@edge event has no records")
	}
	return ViewerRequest(&ev.Records[0].CF.Request, table), nil
}
