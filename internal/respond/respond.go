// Package respond runs an application http.Handler and captures its output
// as a lambda.Response.
package respond

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"lambda-web-adapter/pkg/lambda"
)

// Responder produces a response for a request.
type Responder interface {
	Respond(ctx context.Context, req *http.Request) (*lambda.Response, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req *http.Request) (*lambda.Response, error)

// Respond implements Responder.Respond
func (f ResponderFunc) Respond(ctx context.Context, req *http.Request) (*lambda.Response, error) {
	return f(ctx, req)
}

// BufferedResponder runs the handler to completion and keeps its whole body in memory.
type BufferedResponder struct {
	handler http.Handler
}

// Buffered creates a BufferedResponder
func Buffered(h http.Handler) *BufferedResponder {
	return &BufferedResponder{handler: h}
}

// Respond implements Responder.Respond
func (b *BufferedResponder) Respond(ctx context.Context, req *http.Request) (resp *lambda.Response, err error) {
	rec := newRecorder()

	defer func() {
		if p := recover(); p != nil {
			logrus.WithFields(logrus.Fields{
				"method": req.Method,
				"path":   req.URL.Path,
				"panic":  fmt.Sprint(p),
			}).Error("Handler panicked")
			resp = nil
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	b.handler.ServeHTTP(rec, req.WithContext(ctx))

	return lambda.NewResponse(rec.statusCode(), rec.header, rec.body.Bytes()), nil
}

// recorder is an in-memory http.ResponseWriter.
type recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.header.Get("Content-Type") == "" && r.body.Len() == 0 && len(p) > 0 {
		r.header.Set("Content-Type", http.DetectContentType(p))
	}
	return r.body.Write(p)
}

// Flush is a no-op; the body is only sent once the handler returns.
func (r *recorder) Flush() {}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
