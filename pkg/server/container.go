// Package server wires the adapter together around an application handler
// and runs it either as a Lambda function or as a standalone HTTP server.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/config"
	"lambda-web-adapter/internal/handlers"
	"lambda-web-adapter/internal/metrics"
	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/internal/respond"
	httpserver "lambda-web-adapter/internal/server"
	"lambda-web-adapter/pkg/lambda"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "web_adapter"

// App is the application being adapted
type App struct {
	Handler http.Handler
	// Init runs once before the first request. Optional.
	Init lambda.InitFunc
}

// Container holds all adapter dependencies
type Container struct {
	Config    *config.Config
	Storage   storage.FileStorage
	Manifest  *prerendered.Manifest
	Gate      *lambda.Gate
	Responder respond.Responder
	Lambda    *handlers.LambdaHandler
	Server    *httpserver.Server
	Metrics   *metrics.Metrics
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, app App) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if app.Handler == nil {
		return nil, errors.New("application handler is required")
	}

	m := metrics.New(MetricsNamespace)

	files, err := storage.CreateFromConfig(ctx, &storage.StorageConfig{
		Type:     cfg.Storage.Type,
		BasePath: cfg.Storage.LocalPath,
		Bucket:   cfg.Storage.S3Bucket,
		Region:   cfg.Storage.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	manifest, err := loadManifest(ctx, cfg.Lambda, files)
	if err != nil {
		files.Close()
		return nil, err
	}

	gate := lambda.NewGate(observeInit(app.Init, m))

	var responder respond.Responder = respond.Buffered(app.Handler)
	if cfg.Lambda.Stream {
		responder = respond.Streaming(app.Handler)
	}

	lambdaHandler := handlers.NewLambdaHandler(handlers.LambdaHandlerConfig{
		Gate:          gate,
		Responder:     responder,
		Files:         files,
		Table:         manifest.Mappings,
		BodySizeLimit: cfg.Server.BodySizeLimit,
		Metrics:       m,
	})

	srv := httpserver.New(httpserver.Options{
		ClientDir:      filepath.Join(cfg.Lambda.BuildDir, "client"),
		StaticDir:      filepath.Join(cfg.Lambda.BuildDir, "static"),
		AppPath:        cfg.Server.AppPath,
		Files:          files,
		Table:          manifest.Mappings,
		Origin:         cfg.Server.Origin,
		XFFDepth:       cfg.Server.XFFDepth,
		AddressHeader:  cfg.Server.AddressHeader,
		ProtocolHeader: cfg.Server.ProtocolHeader,
		HostHeader:     cfg.Server.HostHeader,
		BodySizeLimit:  cfg.Server.BodySizeLimit,
		EnvPrefix:      cfg.EnvPrefix,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		HealthPath:     httpserver.DefaultHealthPath,
		MetricsPath:    httpserver.DefaultMetricsPath,
		Gate:           gate,
		Responder:      responder,
		Metrics:        m,
	})

	logrus.WithFields(logrus.Fields{
		"storage":     cfg.Storage.Type,
		"prerendered": len(manifest.Files),
		"stream":      cfg.Lambda.Stream,
		"mode":        config.GetDeploymentMode(),
	}).Info("Adapter initialized")

	return &Container{
		Config:    cfg,
		Storage:   files,
		Manifest:  manifest,
		Gate:      gate,
		Responder: responder,
		Lambda:    lambdaHandler,
		Server:    srv,
		Metrics:   m,
	}, nil
}

// loadManifest reads the prerendered manifest from disk, or from storage
// under its base name when the file is not part of the deployment. The
// manifest prefix must match the configured prerendered directory, since
// every table entry is a storage key under it.
func loadManifest(ctx context.Context, cfg config.LambdaConfig, files storage.FileStorage) (*prerendered.Manifest, error) {
	var (
		manifest *prerendered.Manifest
		err      error
	)

	if _, statErr := os.Stat(cfg.Manifest); statErr == nil {
		manifest, err = prerendered.LoadManifest(cfg.Manifest)
	} else {
		manifest, err = fetchManifest(ctx, files, path.Base(filepath.ToSlash(cfg.Manifest)))
	}
	if err != nil {
		return nil, err
	}

	if len(manifest.Files) > 0 && manifest.Prefix != cfg.PrerenderedDir {
		return nil, fmt.Errorf("prerendered manifest was built for directory %q, but the adapter is configured with %q", manifest.Prefix, cfg.PrerenderedDir)
	}
	return manifest, nil
}

func fetchManifest(ctx context.Context, files storage.FileStorage, key string) (*prerendered.Manifest, error) {
	data, err := files.Retrieve(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			logrus.WithField("key", key).Debug("No prerendered manifest, serving everything from the application")
			return &prerendered.Manifest{Mappings: prerendered.Table{}}, nil
		}
		return nil, fmt.Errorf("failed to fetch prerendered manifest: %w", err)
	}

	return prerendered.ReadManifest(bytes.NewReader(data))
}

// observeInit records how long initialization took
func observeInit(fn lambda.InitFunc, m *metrics.Metrics) lambda.InitFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) error {
		start := time.Now()
		err := fn(ctx)
		m.InitObserved(time.Since(start))
		if err != nil {
			logrus.WithError(err).Error("Application initialization failed")
		}
		return err
	}
}

// LambdaHandler returns the function registered with the Lambda runtime:
// the streaming handler when streaming is enabled, the buffered one otherwise.
func (c *Container) LambdaHandler() any {
	if c.Config.Lambda.Stream {
		return c.Lambda.HandleStreaming
	}
	return c.Lambda.HandleBuffered
}

// StartLambda hands control to the Lambda runtime. It does not return.
func (c *Container) StartLambda() {
	awslambda.Start(c.LambdaHandler())
}

// ListenAndServe runs the standalone server until ctx is cancelled
func (c *Container) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(c.Config.Server.Host, c.Config.Server.Port)
	return c.Server.ListenAndServe(ctx, addr, c.Config.Server.SocketPath)
}

// Run starts the Lambda runtime inside Lambda and the HTTP server elsewhere
func (c *Container) Run(ctx context.Context) error {
	if config.IsServerlessMode() {
		c.StartLambda()
		return nil
	}
	return c.ListenAndServe(ctx)
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.Storage != nil {
		return c.Storage.Close()
	}
	return nil
}
