package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/pkg/lambda"
)

// plainTextHeaders are set on responses the adapter writes itself
var plainTextHeaders = map[string]string{
	"content-type": "text/plain; charset=utf-8",
}

// ErrorResponse turns err into the response the client sees. HTTPErrors keep
// their status and message; anything else becomes an opaque 500.
func ErrorResponse(err error) *lambda.Response {
	status := lambda.StatusCode(err)

	message := http.StatusText(status)
	var httpErr *lambda.HTTPError
	if errors.As(err, &httpErr) {
		message = httpErr.Message
	} else {
		logrus.WithError(err).Error("Request failed")
	}

	header := http.Header{}
	for key, value := range plainTextHeaders {
		header.Set(key, value)
	}
	return lambda.NewResponse(status, header, []byte(message))
}

// isMissingFile reports whether err means a prerendered file is absent from
// storage, in which case the request falls through to the application.
func isMissingFile(err error) bool {
	return storage.IsNotFound(err)
}
