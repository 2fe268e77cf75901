package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
)

// ErrAlreadyOpen is returned when a destination is opened twice.
var ErrAlreadyOpen = errors.New("destination already opened")

// FunctionURLDestination feeds a Lambda function URL streaming response.
// The runtime reads the response body from an io.Pipe, so Write blocks until
// the runtime has taken the previous chunk.
type FunctionURLDestination struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	opened chan struct{}
	resp   *events.LambdaFunctionURLStreamingResponse
}

// NewFunctionURLDestination creates an unopened destination.
func NewFunctionURLDestination() *FunctionURLDestination {
	pr, pw := io.Pipe()
	return &FunctionURLDestination{
		pr:     pr,
		pw:     pw,
		opened: make(chan struct{}),
	}
}

// Open implements Destination.Open
func (d *FunctionURLDestination) Open(statusCode int, headers map[string]string, cookies []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resp != nil {
		return ErrAlreadyOpen
	}

	d.resp = &events.LambdaFunctionURLStreamingResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Cookies:    cookies,
		Body:       d.pr,
	}
	close(d.opened)
	return nil
}

// Write implements Destination.Write
func (d *FunctionURLDestination) Write(p []byte) error {
	_, err := d.pw.Write(p)
	return err
}

// End implements Destination.End
func (d *FunctionURLDestination) End() error {
	return d.pw.Close()
}

// Abort implements Destination.Abort
func (d *FunctionURLDestination) Abort(err error) {
	d.pw.CloseWithError(err)
}

// Opened is closed once Open has been called.
func (d *FunctionURLDestination) Opened() <-chan struct{} {
	return d.opened
}

// Response waits until the destination is opened and returns the streaming
// response to hand back to the Lambda runtime.
func (d *FunctionURLDestination) Response(ctx context.Context) (*events.LambdaFunctionURLStreamingResponse, error) {
	select {
	case <-d.opened:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.resp, nil
	case <-ctx.Done():
		d.pr.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}
}

// ResponseWriterDestination writes a streamed response to an
// http.ResponseWriter, flushing after every chunk.
type ResponseWriterDestination struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
	err    error
}

// NewResponseWriterDestination creates a destination around w
func NewResponseWriterDestination(w http.ResponseWriter) *ResponseWriterDestination {
	return &ResponseWriterDestination{w: w, rc: http.NewResponseController(w)}
}

// Open implements Destination.Open
func (d *ResponseWriterDestination) Open(statusCode int, headers map[string]string, cookies []string) error {
	if d.opened {
		return ErrAlreadyOpen
	}
	d.opened = true

	h := d.w.Header()
	for key, value := range headers {
		h.Set(key, value)
	}
	for _, cookie := range cookies {
		h.Add("Set-Cookie", cookie)
	}
	d.w.WriteHeader(statusCode)
	return nil
}

// Write implements Destination.Write
func (d *ResponseWriterDestination) Write(p []byte) error {
	if _, err := d.w.Write(p); err != nil {
		return err
	}
	if err := d.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// End implements Destination.End
func (d *ResponseWriterDestination) End() error {
	return nil
}

// Abort implements Destination.Abort. The caller decides how to tear down
// the connection; see Err.
func (d *ResponseWriterDestination) Abort(err error) {
	d.err = err
}

// Opened reports whether the status line has been written
func (d *ResponseWriterDestination) Opened() bool {
	return d.opened
}

// Err returns the error the stream was aborted with, if any
func (d *ResponseWriterDestination) Err() error {
	return d.err
}
