package respond

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"lambda-web-adapter/pkg/lambda"
)

// StreamingResponder runs the handler in its own goroutine and returns as
// soon as the status and headers are known. The body is read from a pipe
// while the handler is still writing; cancelling the body cancels the
// handler's request context.
type StreamingResponder struct {
	handler http.Handler
}

// Streaming creates a StreamingResponder
func Streaming(h http.Handler) *StreamingResponder {
	return &StreamingResponder{handler: h}
}

// Respond implements Responder.Respond
func (s *StreamingResponder) Respond(ctx context.Context, req *http.Request) (*lambda.Response, error) {
	handlerCtx, cancel := context.WithCancelCause(ctx)
	pr, pw := io.Pipe()
	w := newStreamWriter(pw)

	go func() {
		defer cancel(nil)
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("handler panic: %v", p)
				logrus.WithFields(logrus.Fields{
					"method": req.Method,
					"path":   req.URL.Path,
					"panic":  fmt.Sprint(p),
				}).Error("Handler panicked")
				w.fail(err)
				pw.CloseWithError(err)
				return
			}
			w.release()
			pw.Close()
		}()

		s.handler.ServeHTTP(w, req.WithContext(handlerCtx))
	}()

	select {
	case <-w.ready:
	case <-ctx.Done():
		cancel(ctx.Err())
		pr.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}

	if w.err != nil {
		return nil, w.err
	}

	resp := &lambda.Response{
		StatusCode: w.sentStatus,
		Header:     w.snapshot,
	}
	if w.hasBody {
		resp.Body = lambda.NewBody(pr, func(reason error) {
			cancel(reason)
			pr.CloseWithError(reason)
		})
	} else {
		pr.Close()
	}

	return resp, nil
}

// streamWriter holds headers back until the first Write, Flush or handler
// return, then forwards writes straight into the pipe.
type streamWriter struct {
	pw     *io.PipeWriter
	header http.Header
	status int

	once       sync.Once
	ready      chan struct{}
	snapshot   http.Header
	sentStatus int
	hasBody    bool
	err        error
}

func newStreamWriter(pw *io.PipeWriter) *streamWriter {
	return &streamWriter{
		pw:     pw,
		header: http.Header{},
		ready:  make(chan struct{}),
	}
}

func (w *streamWriter) Header() http.Header {
	return w.header
}

func (w *streamWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.once.Do(func() {
		if w.header.Get("Content-Type") == "" {
			w.header.Set("Content-Type", http.DetectContentType(p))
		}
		w.publish(true)
	})
	return w.pw.Write(p)
}

// Flush implements http.Flusher. Writes already go straight to the pipe, so
// it only releases the headers.
func (w *streamWriter) Flush() {
	w.once.Do(func() { w.publish(true) })
}

// release is called when the handler returns.
func (w *streamWriter) release() {
	w.once.Do(func() { w.publish(false) })
}

func (w *streamWriter) fail(err error) {
	w.once.Do(func() {
		w.err = err
		w.publish(false)
	})
}

func (w *streamWriter) publish(hasBody bool) {
	w.snapshot = w.header.Clone()
	w.sentStatus = w.statusCode()
	w.hasBody = hasBody
	close(w.ready)
}

func (w *streamWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
