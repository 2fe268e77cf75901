package apigateway

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeHeaders flattens an event's header containers into one map with
// lower-case keys. Multi-value headers are joined with ",", single-value
// headers overwrite them, and a separate cookie list lands under "cookie".
func NormalizeHeaders(single map[string]string, multi map[string][]string, cookies []string) map[string]string {
	headers := make(map[string]string, len(single)+len(multi)+1)

	for key, values := range multi {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(key)] = strings.Join(values, ",")
	}

	for key, value := range single {
		if value == "" {
			continue
		}
		headers[strings.ToLower(key)] = value
	}

	if len(cookies) > 0 {
		headers["cookie"] = strings.Join(cookies, "; ")
	}

	return headers
}

// SplitHeaderValues reverses the "," join done by NormalizeHeaders.
func SplitHeaderValues(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

// NormalizeQuery rebuilds a query string from v1 query maps. Every value of
// a multi-value key becomes its own pair; the single-value map only
// contributes keys the multi-value map lacks. Keys are emitted sorted.
func NormalizeQuery(single map[string]string, multi map[string][]string) string {
	keys := make([]string, 0, len(single)+len(multi))
	for key := range multi {
		keys = append(keys, key)
	}
	for key := range single {
		if _, ok := multi[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var buf strings.Builder
	for _, key := range keys {
		values, ok := multi[key]
		if !ok {
			values = []string{single[key]}
		}
		for _, value := range values {
			if buf.Len() > 0 {
				buf.WriteByte('&')
			}
			buf.WriteString(url.QueryEscape(key))
			buf.WriteByte('=')
			buf.WriteString(url.QueryEscape(value))
		}
	}

	if buf.Len() == 0 {
		return ""
	}
	return "?" + buf.String()
}

// SplitCookiesString splits a combined set-cookie header into individual
// cookies. A comma only separates cookies when the text after it looks like
// the start of a new "name=value" pair, so commas in Expires dates survive.
func SplitCookiesString(value string) []string {
	var cookies []string

	pos := 0
	start := 0
	n := len(value)

	skipWhitespace := func() bool {
		for pos < n && isCookieWhitespace(value[pos]) {
			pos++
		}
		return pos < n
	}

	for pos < n {
		start = pos
		separatorFound := false

		for skipWhitespace() {
			if value[pos] != ',' {
				pos++
				continue
			}

			lastComma := pos
			pos++
			skipWhitespace()
			nextStart := pos

			for pos < n && value[pos] != '=' && value[pos] != ';' && value[pos] != ',' {
				pos++
			}

			if pos < n && value[pos] == '=' {
				separatorFound = true
				pos = nextStart
				cookies = append(cookies, value[start:lastComma])
				start = pos
			} else {
				pos = lastComma + 1
			}
		}

		if !separatorFound || pos >= n {
			cookies = append(cookies, value[start:n])
		}
	}

	return cookies
}

func isCookieWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
