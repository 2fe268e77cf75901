package apigateway

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

const v1Payload = `{
	"httpMethod": "POST",
	"path": "/items",
	"headers": {"Host": "example.com", "Content-Type": "application/json"},
	"multiValueHeaders": {"Accept": ["text/html", "application/json"]},
	"queryStringParameters": {"page": "2"},
	"multiValueQueryStringParameters": {"tag": ["a", "b"]},
	"body": "{\"name\":\"x\"}",
	"isBase64Encoded": false,
	"requestContext": {"identity": {"sourceIp": "203.0.113.9"}}
}`

const v2Payload = `{
	"version": "2.0",
	"rawPath": "/items",
	"rawQueryString": "page=2&tag=a&tag=b",
	"headers": {"host": "example.com", "content-type": "application/json", "accept": "text/html,application/json"},
	"body": "eyJuYW1lIjoieCJ9",
	"isBase64Encoded": true,
	"requestContext": {"http": {"method": "POST", "path": "/items", "sourceIp": "203.0.113.9"}}
}`

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Version
		wantErr error
	}{
		{"v1", v1Payload, VersionV1, nil},
		{"v2", v2Payload, VersionV2, nil},
		{"other version is v1", `{"version":"1.0","httpMethod":"GET","path":"/"}`, VersionV1, nil},
		{"unknown shape", `{"Records":[]}`, 0, ErrUnknownEvent},
		{"not json", `nope`, 0, ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if ev.Version != tt.want {
				t.Errorf("Version = %v, want %v", ev.Version, tt.want)
			}
			if (ev.V1 != nil) != (tt.want == VersionV1) || (ev.V2 != nil) != (tt.want == VersionV2) {
				t.Error("exactly one variant must be set")
			}
		})
	}
}

func TestToCanonicalRequest_EquivalentEvents(t *testing.T) {
	v1, err := DecodeEvent([]byte(v1Payload))
	if err != nil {
		t.Fatalf("DecodeEvent v1: %v", err)
	}
	v2, err := DecodeEvent([]byte(v2Payload))
	if err != nil {
		t.Fatalf("DecodeEvent v2: %v", err)
	}

	r1, err := ToCanonicalRequest(v1)
	if err != nil {
		t.Fatalf("ToCanonicalRequest v1: %v", err)
	}
	r2, err := ToCanonicalRequest(v2)
	if err != nil {
		t.Fatalf("ToCanonicalRequest v2: %v", err)
	}

	if r1.Method != r2.Method || r1.Path != r2.Path {
		t.Errorf("method/path differ: %s %s vs %s %s", r1.Method, r1.Path, r2.Method, r2.Path)
	}
	if !reflect.DeepEqual(r1.Headers, r2.Headers) {
		t.Errorf("headers differ:\n v1 %v\n v2 %v", r1.Headers, r2.Headers)
	}
	if string(r1.Body) != string(r2.Body) || string(r1.Body) != `{"name":"x"}` {
		t.Errorf("bodies differ: %q vs %q", r1.Body, r2.Body)
	}
	if r1.URL != "/items?page=2&tag=a&tag=b" || r2.URL != r1.URL {
		t.Errorf("URL = %q / %q", r1.URL, r2.URL)
	}
	if r1.RemoteAddress != "203.0.113.9" || r2.RemoteAddress != "203.0.113.9" {
		t.Errorf("RemoteAddress = %q / %q", r1.RemoteAddress, r2.RemoteAddress)
	}
}

func TestToCanonicalRequest_Wrapped(t *testing.T) {
	req, err := ToCanonicalRequest(FromV2(&events.APIGatewayV2HTTPRequest{
		RawPath: "/",
		Cookies: []string{"a=1", "b=2"},
		Headers: map[string]string{"host": "example.com"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: "GET"},
		},
	}))
	if err != nil {
		t.Fatalf("ToCanonicalRequest failed: %v", err)
	}
	if req.Headers["cookie"] != "a=1; b=2" {
		t.Errorf("cookie = %q", req.Headers["cookie"])
	}
	if req.URL != "/" {
		t.Errorf("URL = %q", req.URL)
	}

	if _, err := ToCanonicalRequest(&Event{Version: VersionV1}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("empty variant: error = %v", err)
	}
	if _, err := ToCanonicalRequest(nil); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("nil event: error = %v", err)
	}
}
