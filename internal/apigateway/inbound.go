package apigateway

import (
	"fmt"

	"lambda-web-adapter/pkg/lambda"
)

// ToCanonicalRequest converts an API Gateway event into the request the
// adapter works with.
func ToCanonicalRequest(ev *Event) (*lambda.Request, error) {
	if ev == nil {
		return nil, ErrUnknownEvent
	}

	switch ev.Version {
	case VersionV1:
		if ev.V1 == nil {
			return nil, ErrUnknownEvent
		}
		return fromV1(ev)
	case VersionV2:
		if ev.V2 == nil {
			return nil, ErrUnknownEvent
		}
		return fromV2(ev)
	default:
		return nil, ErrUnknownEvent
	}
}

func fromV1(ev *Event) (*lambda.Request, error) {
	src := ev.V1

	body, err := NormalizeBody(ev.Body, src.IsBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("v1 event body: %w", err)
	}

	return &lambda.Request{
		Method:        src.HTTPMethod,
		Path:          src.Path,
		URL:           src.Path + NormalizeQuery(src.QueryStringParameters, src.MultiValueQueryStringParameters),
		Headers:       NormalizeHeaders(src.Headers, src.MultiValueHeaders, nil),
		Body:          body,
		RemoteAddress: src.RequestContext.Identity.SourceIP,
	}, nil
}

func fromV2(ev *Event) (*lambda.Request, error) {
	src := ev.V2

	body, err := NormalizeBody(ev.Body, src.IsBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("v2 event body: %w", err)
	}

	url := src.RawPath
	if src.RawQueryString != "" {
		url += "?" + src.RawQueryString
	}

	return &lambda.Request{
		Method:        src.RequestContext.HTTP.Method,
		Path:          src.RawPath,
		URL:           url,
		Headers:       NormalizeHeaders(src.Headers, nil, src.Cookies),
		Body:          body,
		RemoteAddress: src.RequestContext.HTTP.SourceIP,
	}, nil
}
