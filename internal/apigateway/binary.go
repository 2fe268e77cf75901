package apigateway

import (
	"mime"
	"strings"
)

// textContentTypes are the application/* and image/* types whose bodies are
// safe to send as UTF-8 text.
var textContentTypes = map[string]struct{}{
	"application/json":                  {},
	"application/ld+json":               {},
	"application/xml":                   {},
	"application/javascript":            {},
	"application/ecmascript":            {},
	"application/x-javascript":          {},
	"application/x-www-form-urlencoded": {},
	"application/graphql":               {},
	"application/xhtml+xml":             {},
	"image/svg+xml":                     {},
}

// IsBinaryContentType reports whether a body with this content type must be
// base64-encoded. Missing or unparsable content types count as binary.
func IsBinaryContentType(contentType string) bool {
	if contentType == "" {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}

	if strings.HasPrefix(mediaType, "text/") {
		return false
	}
	if _, ok := textContentTypes[mediaType]; ok {
		return false
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return false
	}

	return true
}
