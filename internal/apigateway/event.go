package apigateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// Version identifies which API Gateway payload format an event uses.
type Version int

const (
	// VersionV1 is the REST API / payload format 1.0 event.
	VersionV1 Version = iota + 1
	// VersionV2 is the HTTP API / function URL payload format 2.0 event.
	VersionV2
)

func (v Version) String() string {
	switch v {
	case VersionV1:
		return "1.0"
	case VersionV2:
		return "2.0"
	default:
		return "unknown"
	}
}

// versionV2 is the discriminator value of payload format 2.0 events.
const versionV2 = "2.0"

// ErrUnknownEvent is returned for payloads that match neither event format.
var ErrUnknownEvent = errors.New("event is neither an API Gateway v1 nor v2 proxy event")

// Event is one of the two API Gateway proxy events. Exactly one of V1 and V2
// is set, matching Version. Body holds the raw body field so bodies the
// platform already parsed into JSON objects are not lost.
type Event struct {
	Version Version
	V1      *events.APIGatewayProxyRequest
	V2      *events.APIGatewayV2HTTPRequest
	Body    any
}

// v1Envelope and v2Envelope shadow the string body of the aws-lambda-go
// types with a raw message.
type v1Envelope struct {
	events.APIGatewayProxyRequest
	Body json.RawMessage `json:"body"`
}

type v2Envelope struct {
	events.APIGatewayV2HTTPRequest
	Body json.RawMessage `json:"body"`
}

type discriminator struct {
	Version    *string `json:"version"`
	HTTPMethod string  `json:"httpMethod"`
}

// DecodeEvent parses a raw invocation payload.
func DecodeEvent(payload []byte) (*Event, error) {
	var head discriminator
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}

	if head.Version != nil && *head.Version == versionV2 {
		var env v2Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("failed to decode v2 event: %w", err)
		}
		ev := env.APIGatewayV2HTTPRequest
		return &Event{Version: VersionV2, V2: &ev, Body: rawBody(env.Body)}, nil
	}

	if head.HTTPMethod == "" {
		return nil, ErrUnknownEvent
	}

	var env v1Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode v1 event: %w", err)
	}
	ev := env.APIGatewayProxyRequest
	return &Event{Version: VersionV1, V1: &ev, Body: rawBody(env.Body)}, nil
}

// FromV1 wraps an already decoded v1 event.
func FromV1(ev *events.APIGatewayProxyRequest) *Event {
	return &Event{Version: VersionV1, V1: ev, Body: ev.Body}
}

// FromV2 wraps an already decoded v2 event.
func FromV2(ev *events.APIGatewayV2HTTPRequest) *Event {
	return &Event{Version: VersionV2, V2: ev, Body: ev.Body}
}

func rawBody(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// IsBase64Encoded reports the event's body encoding flag.
func (e *Event) IsBase64Encoded() bool {
	switch e.Version {
	case VersionV1:
		return e.V1.IsBase64Encoded
	case VersionV2:
		return e.V2.IsBase64Encoded
	}
	return false
}
