package apigateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// NormalizeBody turns whatever the platform put in the body field into bytes.
//
// Binary payloads pass through. Strings are base64-decoded when the event says
// so and taken as UTF-8 otherwise. Anything else that is not null is a body
// the platform already parsed as JSON; it is marshalled back, which does not
// necessarily reproduce the original bytes (key order and whitespace may
// differ).
func NormalizeBody(body any, isBase64Encoded bool) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return v, nil
	case string:
		return decodeStringBody(v, isBase64Encoded)
	case json.RawMessage:
		return normalizeRawBody(v, isBase64Encoded)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode structured body: %w", err)
		}
		return data, nil
	}
}

func normalizeRawBody(raw json.RawMessage, isBase64Encoded bool) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte{}, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("invalid string body: %w", err)
		}
		return decodeStringBody(s, isBase64Encoded)
	}

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("invalid structured body: %w", err)
	}
	return NormalizeBody(parsed, isBase64Encoded)
}

func decodeStringBody(s string, isBase64Encoded bool) ([]byte, error) {
	if !isBase64Encoded {
		return []byte(s), nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 body: %w", err)
	}
	return data, nil
}
