package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/apigateway"
	"lambda-web-adapter/internal/metrics"
	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/internal/respond"
	"lambda-web-adapter/internal/stream"
	"lambda-web-adapter/pkg/lambda"
)

// LambdaHandlerConfig holds the collaborators of a LambdaHandler
type LambdaHandlerConfig struct {
	Gate          *lambda.Gate
	Responder     respond.Responder
	Files         storage.FileStorage
	Table         prerendered.Table
	BodySizeLimit int64
	Metrics       *metrics.Metrics
}

// LambdaHandler answers API Gateway and function URL invocations
type LambdaHandler struct {
	gate          *lambda.Gate
	responder     respond.Responder
	files         storage.FileStorage
	table         prerendered.Table
	bodySizeLimit int64
	metrics       *metrics.Metrics
}

// NewLambdaHandler creates a new Lambda handler. A nil Gate means the
// application needs no initialization.
func NewLambdaHandler(cfg LambdaHandlerConfig) *LambdaHandler {
	gate := cfg.Gate
	if gate == nil {
		gate = lambda.NewGate(nil)
	}
	table := cfg.Table
	if table == nil {
		table = prerendered.Table{}
	}

	return &LambdaHandler{
		gate:          gate,
		responder:     cfg.Responder,
		files:         cfg.Files,
		table:         table,
		bodySizeLimit: cfg.BodySizeLimit,
		metrics:       cfg.Metrics,
	}
}

// HandleBuffered answers an invocation with a complete API Gateway result:
// events.APIGatewayProxyResponse for v1 events, events.APIGatewayV2HTTPResponse
// for v2. An event of neither shape fails the invocation.
func (h *LambdaHandler) HandleBuffered(ctx context.Context, payload json.RawMessage) (any, error) {
	ev, req, err := h.prepare(ctx, payload)
	if err != nil {
		return nil, err
	}

	source := ev.Version.String()
	done := h.metrics.RequestStarted(source)

	resp := h.resolve(ctx, source, req)

	result, err := apigateway.ToPlatformResult(resp, ev.Version)
	if err != nil {
		if errors.Is(err, lambda.ErrBodyConsumed) {
			logrus.WithError(err).Error("Response body is locked")
			done(http.StatusInternalServerError)
			return apigateway.TextResult(ev.Version, http.StatusInternalServerError, plainTextHeaders, lambda.BodyConsumedMessage), nil
		}

		logrus.WithError(err).Error("Failed to build gateway result")
		done(http.StatusInternalServerError)
		return apigateway.TextResult(ev.Version, http.StatusInternalServerError, plainTextHeaders, http.StatusText(http.StatusInternalServerError)), nil
	}

	done(resp.StatusCode)
	return result, nil
}

// HandleStreaming answers an invocation with a function URL streaming
// response. It returns as soon as the status and headers are known; the body
// keeps flowing from a background goroutine while the runtime reads it.
func (h *LambdaHandler) HandleStreaming(ctx context.Context, payload json.RawMessage) (*events.LambdaFunctionURLStreamingResponse, error) {
	ev, req, err := h.prepare(ctx, payload)
	if err != nil {
		return nil, err
	}

	source := ev.Version.String()
	done := h.metrics.RequestStarted(source)

	resp := h.resolve(ctx, source, req)
	done(resp.StatusCode)

	dst := stream.NewFunctionURLDestination()
	bridge := stream.NewBridge()

	errc := make(chan error, 1)
	go func() {
		err := bridge.Pipe(ctx, resp, dst)
		h.metrics.StreamFinished(bridge.State().String(), bridge.Written())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"method": req.Method,
				"path":   req.Path,
				"state":  bridge.State().String(),
				"error":  err.Error(),
			}).Warn("Streaming response did not complete")
		}
		errc <- err
	}()

	select {
	case <-dst.Opened():
	case err := <-errc:
		select {
		case <-dst.Opened():
		default:
			return nil, err
		}
	case <-ctx.Done():
		dst.Abort(ctx.Err())
		return nil, ctx.Err()
	}

	return dst.Response(ctx)
}

// prepare waits for initialization and turns the payload into a canonical request
func (h *LambdaHandler) prepare(ctx context.Context, payload json.RawMessage) (*apigateway.Event, *lambda.Request, error) {
	if err := h.gate.Wait(ctx); err != nil {
		return nil, nil, err
	}

	ev, err := apigateway.DecodeEvent(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := apigateway.ToCanonicalRequest(ev)
	if err != nil {
		return nil, nil, err
	}

	return ev, req, nil
}

// resolve produces the response for a canonical request. It never fails:
// errors are turned into responses carrying their status.
func (h *LambdaHandler) resolve(ctx context.Context, source string, req *lambda.Request) *lambda.Response {
	start := time.Now()

	resp, err := h.serve(ctx, source, req)
	if err != nil {
		resp = ErrorResponse(err)
	}

	logrus.WithFields(logrus.Fields{
		"source":   source,
		"method":   req.Method,
		"path":     req.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Request handled")

	return resp
}

func (h *LambdaHandler) serve(ctx context.Context, source string, req *lambda.Request) (*lambda.Response, error) {
	if lambda.IsPrerenderMethod(req.Method) {
		if file, ok := h.table.Lookup(req.Path); ok {
			resp, err := h.servePrerendered(ctx, req.Method, file)
			switch {
			case err == nil:
				h.metrics.PrerenderedHit(source)
				return resp, nil
			case !isMissingFile(err):
				return nil, err
			}
			logrus.WithFields(logrus.Fields{
				"path": req.Path,
				"file": file,
			}).Warn("Prerendered file missing from storage, falling back to the application")
		}
	}

	req.ForwardHost()

	if req.HasBody() && h.bodySizeLimit > 0 && int64(len(req.Body)) > h.bodySizeLimit {
		return nil, lambda.NewHTTPError(http.StatusRequestEntityTooLarge,
			"Content-length of %d exceeds limit of %d bytes.", len(req.Body), h.bodySizeLimit)
	}

	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, lambda.NewHTTPError(http.StatusBadRequest, "%s", err.Error())
	}

	return h.responder.Respond(ctx, httpReq)
}

// servePrerendered answers with the stored page. HEAD only looks up the
// metadata.
func (h *LambdaHandler) servePrerendered(ctx context.Context, method, file string) (*lambda.Response, error) {
	if h.files == nil {
		return nil, storage.NewStorageError("Open", file, storage.ErrFileNotFound, false)
	}

	header := http.Header{}
	for key, value := range lambda.PrerenderedFileHeaders {
		header.Set(key, value)
	}

	if method == http.MethodHead {
		md, err := h.files.GetMetadata(ctx, file)
		if err != nil {
			return nil, err
		}
		header.Set("content-length", strconv.FormatInt(md.Size, 10))
		return &lambda.Response{StatusCode: http.StatusOK, Header: header}, nil
	}

	rc, _, err := h.files.Open(ctx, file)
	if err != nil {
		return nil, err
	}

	return &lambda.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       lambda.NewBody(rc, nil),
	}, nil
}
