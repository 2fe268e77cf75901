package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/apigateway"
	"lambda-web-adapter/pkg/lambda"
)

// State is the lifecycle position of a Bridge.
type State int

const (
	StateInit State = iota
	StateStreaming
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// DefaultChunkSize is the read buffer used when pumping a response body.
const DefaultChunkSize = 32 * 1024

// Destination is where a streamed response goes. Open is called exactly once
// before any Write. Write blocks until the destination can take more data
// and must not retain p. After End or Abort nothing else is called.
type Destination interface {
	Open(statusCode int, headers map[string]string, cookies []string) error
	Write(p []byte) error
	End() error
	Abort(err error)
}

// Bridge pumps one response body into one destination.
type Bridge struct {
	ChunkSize int

	mu      sync.Mutex
	state   State
	written int64
}

// NewBridge creates a Bridge in the init state.
func NewBridge() *Bridge {
	return &Bridge{ChunkSize: DefaultChunkSize}
}

// State returns the current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Written returns the number of body bytes handed to the destination.
func (b *Bridge) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Pipe streams resp into dst using a fresh Bridge.
func Pipe(ctx context.Context, resp *lambda.Response, dst Destination) error {
	return NewBridge().Pipe(ctx, resp, dst)
}

// Pipe opens dst with the response status and headers, then copies the body
// chunk by chunk. When dst fails or ctx ends first, the body is cancelled with
// that error and dst is aborted; partial output is never retried.
func (b *Bridge) Pipe(ctx context.Context, resp *lambda.Response, dst Destination) error {
	if b.State() != StateInit {
		return errors.New("bridge already used")
	}

	if resp.Body != nil && resp.Body.Locked() {
		return b.lockedBody(dst)
	}

	headers, cookies := apigateway.CollectHeaders(resp.Header)
	if err := dst.Open(resp.StatusCode, headers, cookies); err != nil {
		return b.abort(resp.Body, dst, err)
	}

	if resp.Body == nil {
		b.setState(StateComplete)
		return dst.End()
	}

	rc, err := resp.Body.Reader()
	if err != nil {
		return b.abort(resp.Body, dst, err)
	}

	b.setState(StateStreaming)

	stop := context.AfterFunc(ctx, func() {
		resp.Body.Cancel(context.Cause(ctx))
	})
	defer stop()

	size := b.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)

	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			if writeErr := dst.Write(buf[:n]); writeErr != nil {
				return b.abort(resp.Body, dst, writeErr)
			}
			b.mu.Lock()
			b.written += int64(n)
			b.mu.Unlock()
		}

		if readErr == io.EOF {
			b.setState(StateComplete)
			rc.Close()
			return dst.End()
		}
		if readErr != nil {
			if ctx.Err() != nil {
				readErr = context.Cause(ctx)
			}
			return b.abort(resp.Body, dst, readErr)
		}
	}
}

// lockedBody answers a response whose body was drained elsewhere with a
// visible 500 instead of the application's status and headers.
func (b *Bridge) lockedBody(dst Destination) error {
	logrus.WithError(lambda.ErrBodyConsumed).Error("Response body is locked")
	b.setState(StateAborted)

	headers := map[string]string{"content-type": "text/plain; charset=utf-8"}
	if err := dst.Open(http.StatusInternalServerError, headers, nil); err != nil {
		dst.Abort(err)
		return lambda.ErrBodyConsumed
	}
	if err := dst.Write([]byte(lambda.BodyConsumedMessage)); err != nil {
		dst.Abort(err)
		return lambda.ErrBodyConsumed
	}
	if err := dst.End(); err != nil {
		return err
	}
	return lambda.ErrBodyConsumed
}

func (b *Bridge) abort(body *lambda.Body, dst Destination, err error) error {
	b.setState(StateAborted)

	if body != nil {
		body.Cancel(err)
	}
	dst.Abort(err)

	logrus.WithFields(logrus.Fields{
		"error": err.Error(),
	}).Warn("Response stream aborted")

	return err
}
