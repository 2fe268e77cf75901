package lambda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrBodyConsumed is returned when a response body is read a second time.
var ErrBodyConsumed = errors.New("response body is locked: it was already read")

// BodyConsumedMessage is sent to the client when a handler hands back a body
// that was already drained.
const BodyConsumedMessage = "Fatal error: Response body is locked. " +
	"This can happen when the response was already read (for example through 'io.ReadAll')."

// Request is the platform-neutral description of one inbound HTTP request.
// Header keys are lower-case; multi-valued headers are joined with "," and
// cookies with "; ".
type Request struct {
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers"`
	Body          []byte            `json:"body"`
	RemoteAddress string            `json:"remote_address"`
}

// Header returns the value of a header, matching the key case-insensitively.
func (r *Request) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

// ForwardHost replaces the host header with the value carried in the
// forwarded-host side channel, if one is present.
func (r *Request) ForwardHost() {
	if forwarded, ok := r.Headers[ForwardedHostHeader]; ok && forwarded != "" {
		r.Headers["host"] = forwarded
	}
}

// HasBody reports whether the method may carry a request body to the app.
func (r *Request) HasBody() bool {
	return !IsPrerenderMethod(r.Method)
}

// HTTPRequest builds the request handed to the application:
// https://{host}{url}, with the body dropped for GET and HEAD.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if r.HasBody() && len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	remote := r.RemoteAddress
	ctx = WithClientAddress(ctx, func() (string, error) { return remote, nil })

	target := "https://" + r.Headers["host"] + r.URL
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s %s: %w", r.Method, r.URL, err)
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	req.Host = r.Headers["host"]
	req.RemoteAddr = r.RemoteAddress
	if body != http.NoBody {
		req.ContentLength = int64(len(r.Body))
	}

	return req, nil
}

// Response is the generic HTTP response produced by the application.
// Body is nil when the response has no body. It can be read once.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       *Body
}

// NewResponse creates a response with a fully buffered body.
func NewResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       NewBody(io.NopCloser(bytes.NewReader(body)), nil),
	}
}

// Body is a single-use response body. Cancel releases whatever is producing it.
type Body struct {
	mu       sync.Mutex
	rc       io.ReadCloser
	cancel   func(error)
	consumed bool
}

// NewBody wraps a reader. cancel may be nil.
func NewBody(rc io.ReadCloser, cancel func(error)) *Body {
	return &Body{rc: rc, cancel: cancel}
}

// Reader hands out the underlying reader exactly once.
func (b *Body) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed {
		return nil, ErrBodyConsumed
	}
	b.consumed = true
	return b.rc, nil
}

// ReadAll drains the body.
func (b *Body) ReadAll() ([]byte, error) {
	rc, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Locked reports whether the body was already handed out.
func (b *Body) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}

// Cancel stops the producer and closes the reader.
func (b *Body) Cancel(reason error) {
	if b.cancel != nil {
		b.cancel(reason)
	}
	b.rc.Close()
}

// HTTPError is an error carrying the HTTP status the client should see.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the HTTP status of err, falling back to 500.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return http.StatusInternalServerError
}
