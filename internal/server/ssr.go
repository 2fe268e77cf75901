package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/handlers"
	"lambda-web-adapter/internal/stream"
	"lambda-web-adapter/pkg/lambda"
)

// ssr hands the request to the application and streams its response back.
func (s *Server) ssr(c *gin.Context) {
	ctx := c.Request.Context()
	done := s.opts.Metrics.RequestStarted("server")

	resp := s.render(c)
	done(resp.StatusCode)

	dst := stream.NewResponseWriterDestination(c.Writer)
	bridge := stream.NewBridge()

	err := bridge.Pipe(ctx, resp, dst)
	s.opts.Metrics.StreamFinished(bridge.State().String(), bridge.Written())
	c.Abort()

	if err == nil || errors.Is(err, lambda.ErrBodyConsumed) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"state":  bridge.State().String(),
		"error":  err.Error(),
	}).Warn("Streaming response did not complete")

	// Status already sent; drop the connection so the client sees a truncated body.
	if dst.Opened() {
		panic(http.ErrAbortHandler)
	}
}

// render builds the application request and runs the responder. Failures
// become error responses.
func (s *Server) render(c *gin.Context) *lambda.Response {
	if err := s.opts.Gate.Wait(c.Request.Context()); err != nil {
		logrus.WithError(err).Error("Application initialization failed")
		return handlers.ErrorResponse(err)
	}

	req, err := s.applicationRequest(c.Request)
	if err != nil {
		return handlers.ErrorResponse(lambda.NewHTTPError(http.StatusBadRequest, "%s", err.Error()))
	}

	resp, err := s.opts.Responder.Respond(req.Context(), req)
	if err != nil {
		return handlers.ErrorResponse(err)
	}
	return resp
}

// applicationRequest rebuilds r against the public origin. The client
// address is resolved only if the application asks for it.
func (s *Server) applicationRequest(r *http.Request) (*http.Request, error) {
	ctx := lambda.WithClientAddress(r.Context(), func() (string, error) {
		return s.clientAddress(r)
	})

	var body io.Reader = http.NoBody
	if r.Header.Get("Content-Type") != "" && r.ContentLength != 0 {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, s.origin(r)+r.URL.RequestURI(), body)
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.Clone()
	if body != http.NoBody {
		req.ContentLength = r.ContentLength
	}
	if addr, err := s.clientAddress(r); err == nil {
		req.RemoteAddr = addr
	}

	return req, nil
}

// origin returns the configured origin, or one derived from the protocol
// and host headers.
func (s *Server) origin(r *http.Request) string {
	if s.opts.Origin != "" {
		return strings.TrimSuffix(s.opts.Origin, "/")
	}

	protocol := "https"
	if s.opts.ProtocolHeader != "" {
		if value := r.Header.Get(s.opts.ProtocolHeader); value != "" {
			protocol = value
		}
	}

	host := r.Host
	if s.opts.HostHeader != "host" {
		host = r.Header.Get(s.opts.HostHeader)
	}

	return protocol + "://" + host
}

// clientAddress reads the address header when one is configured, honouring
// XFFDepth for x-forwarded-for. Otherwise it uses the socket address.
func (s *Server) clientAddress(r *http.Request) (string, error) {
	header := s.opts.AddressHeader
	if header == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr, nil
		}
		return host, nil
	}

	values := r.Header.Values(header)
	if len(values) == 0 {
		return "", fmt.Errorf("address header was specified with %sADDRESS_HEADER=%s but is absent from request", s.opts.EnvPrefix, header)
	}
	value := strings.Join(values, ",")

	if header != "x-forwarded-for" {
		return value, nil
	}

	if s.opts.XFFDepth < 1 {
		return "", fmt.Errorf("%sXFF_DEPTH must be a positive integer", s.opts.EnvPrefix)
	}

	addresses := strings.Split(value, ",")
	if s.opts.XFFDepth > len(addresses) {
		return "", fmt.Errorf("%sXFF_DEPTH is %d, but only found %d addresses", s.opts.EnvPrefix, s.opts.XFFDepth, len(addresses))
	}

	return strings.TrimSpace(addresses[len(addresses)-s.opts.XFFDepth]), nil
}
