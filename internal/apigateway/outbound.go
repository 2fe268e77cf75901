package apigateway

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"lambda-web-adapter/pkg/lambda"
)

const setCookieHeader = "set-cookie"

// CollectHeaders flattens response headers into a lower-case single-value map
// and pulls the set-cookie values out separately, one entry per cookie.
func CollectHeaders(header http.Header) (map[string]string, []string) {
	flat := make(map[string]string, len(header))
	var cookies []string

	for key, values := range header {
		name := strings.ToLower(key)
		if name == setCookieHeader {
			for _, value := range values {
				cookies = append(cookies, SplitCookiesString(value)...)
			}
			continue
		}
		if len(values) == 0 {
			continue
		}
		flat[name] = strings.Join(values, ", ")
	}

	return flat, cookies
}

// ToPlatformResult converts resp into the result shape matching version:
// events.APIGatewayProxyResponse for v1, events.APIGatewayV2HTTPResponse for v2.
func ToPlatformResult(resp *lambda.Response, version Version) (any, error) {
	switch version {
	case VersionV1:
		return ToV1Result(resp)
	case VersionV2:
		return ToV2Result(resp)
	default:
		return nil, ErrUnknownEvent
	}
}

// ToV1Result builds a REST API proxy result. Cookies go into the multi-value
// headers because the flat map can only hold one of them.
func ToV1Result(resp *lambda.Response) (events.APIGatewayProxyResponse, error) {
	body, isBase64, err := encodeBody(resp)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	headers, cookies := CollectHeaders(resp.Header)
	multi := map[string][]string{}
	if len(cookies) > 0 {
		multi[setCookieHeader] = cookies
	}

	return events.APIGatewayProxyResponse{
		StatusCode:        resp.StatusCode,
		Headers:           headers,
		MultiValueHeaders: multi,
		Body:              body,
		IsBase64Encoded:   isBase64,
	}, nil
}

// ToV2Result builds an HTTP API proxy result with cookies in their own list.
func ToV2Result(resp *lambda.Response) (events.APIGatewayV2HTTPResponse, error) {
	body, isBase64, err := encodeBody(resp)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	headers, cookies := CollectHeaders(resp.Header)
	if cookies == nil {
		cookies = []string{}
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode:      resp.StatusCode,
		Headers:         headers,
		Cookies:         cookies,
		Body:            body,
		IsBase64Encoded: isBase64,
	}, nil
}

// TextResult builds a plain-text result, used for errors and prerendered pages.
func TextResult(version Version, statusCode int, headers map[string]string, body string) any {
	if headers == nil {
		headers = map[string]string{"content-type": "text/plain; charset=utf-8"}
	}

	if version == VersionV2 {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: statusCode,
			Headers:    headers,
			Cookies:    []string{},
			Body:       body,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        statusCode,
		Headers:           headers,
		MultiValueHeaders: map[string][]string{},
		Body:              body,
	}
}

// encodeBody drains the response body once and encodes it for the result.
func encodeBody(resp *lambda.Response) (string, bool, error) {
	isBase64 := IsBinaryContentType(resp.Header.Get("Content-Type"))

	if resp.Body == nil {
		return "", isBase64, nil
	}

	data, err := resp.Body.ReadAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to read response body: %w", err)
	}

	if isBase64 {
		return base64.StdEncoding.EncodeToString(data), true, nil
	}
	return string(data), false, nil
}
