package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/metrics"
	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/internal/respond"
	"lambda-web-adapter/pkg/lambda"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// echoApp reports the request it saw, including the client address
func echoApp() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		addr, err := lambda.ClientAddress(r.Context())
		if err != nil {
			addr = "error: " + err.Error()
		}

		w.Header().Set("Content-Type", "text/plain")
		w.Header().Add("Set-Cookie", "a=1; Path=/")
		w.Header().Add("Set-Cookie", "b=2; Path=/")
		fmt.Fprintf(w, "%s %s addr=%s body=%s", r.Method, r.URL.String(), addr, body)
	})
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()

	root := t.TempDir()
	clientDir := filepath.Join(root, "client")
	staticDir := filepath.Join(root, "static")
	writeFile(t, filepath.Join(clientDir, "_app", "immutable", "app.js"), "console.log(1)")
	writeFile(t, filepath.Join(clientDir, "favicon.png"), "png")
	writeFile(t, filepath.Join(staticDir, "robots.txt"), "User-agent: *")

	files := storage.NewMockFileStorage()
	if err := files.Store(context.Background(), "prerendered/about.html", []byte("<h1>About</h1>"), nil); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	table, _ := prerendered.BuildTable([]string{"about.html"}, "prerendered")

	opts := Options{
		ClientDir:     clientDir,
		StaticDir:     staticDir,
		AppPath:       "_app",
		Files:         files,
		Table:         table,
		XFFDepth:      1,
		HostHeader:    "host",
		BodySizeLimit: 32,
		HealthPath:    DefaultHealthPath,
		MetricsPath:   DefaultMetricsPath,
		Responder:     respond.Buffered(echoApp()),
		Metrics:       metrics.New("test"),
	}
	if mutate != nil {
		mutate(&opts)
	}

	return New(opts)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_StaticFiles(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name          string
		path          string
		wantBody      string
		wantImmutable bool
	}{
		{"immutable client asset", "/_app/immutable/app.js", "console.log(1)", true},
		{"client asset", "/favicon.png", "png", false},
		{"static file", "/robots.txt", "User-agent: *", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}

			cacheControl := w.Header().Get("Cache-Control")
			if tt.wantImmutable && cacheControl != immutableCacheControl {
				t.Errorf("Cache-Control = %q, want %q", cacheControl, immutableCacheControl)
			}
			if !tt.wantImmutable && cacheControl != "" {
				t.Errorf("Cache-Control = %q, want none", cacheControl)
			}
		})
	}

	t.Run("path traversal stays inside the directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = "/../static/robots.txt"
		w := do(s, req)
		if !strings.HasPrefix(w.Body.String(), "GET ") {
			t.Errorf("body = %q, want the application's response", w.Body.String())
		}
	})
}

func TestServer_Prerendered(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("page", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/about", nil))
		if w.Code != http.StatusOK || w.Body.String() != "<h1>About</h1>" {
			t.Errorf("response = %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("trailing slash redirect keeps the query", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/about/?tab=team", nil))
		if w.Code != http.StatusPermanentRedirect {
			t.Fatalf("status = %d, want 308", w.Code)
		}
		if location := w.Header().Get("Location"); location != "/about?tab=team" {
			t.Errorf("Location = %q", location)
		}
	})

	t.Run("POST goes to the application", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/about", strings.NewReader("x=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := do(s, req)
		if !strings.HasPrefix(w.Body.String(), "POST ") {
			t.Errorf("body = %q, want the application's response", w.Body.String())
		}
	})
}

func TestServer_SSR(t *testing.T) {
	t.Run("origin from host header", func(t *testing.T) {
		s := newTestServer(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/form?q=1", strings.NewReader("hello"))
		req.Host = "www.example.com"
		req.Header.Set("Content-Type", "text/plain")
		req.RemoteAddr = "192.0.2.10:5000"
		w := do(s, req)

		want := "POST https://www.example.com/form?q=1 addr=192.0.2.10 body=hello"
		if w.Body.String() != want {
			t.Errorf("body = %q, want %q", w.Body.String(), want)
		}
		if cookies := w.Header().Values("Set-Cookie"); len(cookies) != 2 {
			t.Errorf("Set-Cookie = %v, want two cookies", cookies)
		}
	})

	t.Run("configured origin and no body without content type", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) { o.Origin = "http://localhost:3000/" })

		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("ignored"))
		w := do(s, req)

		want := "POST http://localhost:3000/form addr=192.0.2.1 body="
		if w.Body.String() != want {
			t.Errorf("body = %q, want %q", w.Body.String(), want)
		}
	})

	t.Run("protocol and host headers", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) {
			o.ProtocolHeader = "x-forwarded-proto"
			o.HostHeader = "x-forwarded-host"
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-Proto", "http")
		req.Header.Set("X-Forwarded-Host", "proxy.example.com")
		w := do(s, req)

		if !strings.HasPrefix(w.Body.String(), "GET http://proxy.example.com/ ") {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("declared body over the limit", func(t *testing.T) {
		s := newTestServer(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(strings.Repeat("x", 64)))
		req.Header.Set("Content-Type", "text/plain")
		w := do(s, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", w.Code)
		}
	})

	t.Run("responder error", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) {
			o.Responder = respond.ResponderFunc(func(ctx context.Context, req *http.Request) (*lambda.Response, error) {
				return nil, errors.New("database down")
			})
		})

		w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if strings.Contains(w.Body.String(), "database") {
			t.Errorf("internal error leaked: %q", w.Body.String())
		}
	})

	t.Run("failed initialization", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) {
			o.Gate = lambda.NewGate(func(ctx context.Context) error { return errors.New("boom") })
		})

		w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestServer_SSRBodyNeverNil(t *testing.T) {
	strict := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "%s len=%d", r.Method, len(data))
	})
	s := newTestServer(t, func(o *Options) { o.Responder = respond.Buffered(strict) })

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"GET", httptest.NewRequest(http.MethodGet, "/page", nil), "GET len=0"},
		{"POST without content type", httptest.NewRequest(http.MethodPost, "/page", strings.NewReader("x")), "POST len=0"},
		{"DELETE without body", httptest.NewRequest(http.MethodDelete, "/page", nil), "DELETE len=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.req)
			if w.Code != http.StatusOK || w.Body.String() != tt.want {
				t.Errorf("response = %d %q, want 200 %q", w.Code, w.Body.String(), tt.want)
			}
		})
	}
}

func TestServer_ClientAddress(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		depth   int
		xff     string
		want    string
		wantErr string
	}{
		{"rightmost by default", "x-forwarded-for", 1, "203.0.113.1, 198.51.100.2", "198.51.100.2", ""},
		{"depth two", "x-forwarded-for", 2, "203.0.113.1, 198.51.100.2", "203.0.113.1", ""},
		{"depth beyond the list", "x-forwarded-for", 3, "203.0.113.1, 198.51.100.2", "", "XFF_DEPTH is 3, but only found 2 addresses"},
		{"header absent", "x-forwarded-for", 1, "", "", "is absent from request"},
		{"other header used verbatim", "x-real-ip", 1, "", "", "is absent from request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(o *Options) {
				o.AddressHeader = tt.header
				o.XFFDepth = tt.depth
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			got, err := s.clientAddress(req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("clientAddress failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("address = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("error only surfaces when the application asks", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) {
			o.AddressHeader = "x-forwarded-for"
			o.Responder = respond.Buffered(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "ok")
			}))
		})

		w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK || w.Body.String() != "ok" {
			t.Errorf("response = %d %q", w.Code, w.Body.String())
		}
	})
}

func TestServer_Streaming(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: %d\n\n", i)
			w.(http.Flusher).Flush()
		}
	})
	s := newTestServer(t, func(o *Options) { o.Responder = respond.Streaming(app) })

	w := do(s, httptest.NewRequest(http.MethodGet, "/events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if want := "data: 0\n\ndata: 1\n\ndata: 2\n\n"; w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
	if !w.Flushed {
		t.Error("response was never flushed")
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	// Initialization runs on first use
	if err := s.opts.Gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	w := do(s, httptest.NewRequest(http.MethodGet, DefaultHealthPath, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("health = %d %q", w.Code, w.Body.String())
	}

	do(s, httptest.NewRequest(http.MethodGet, "/page", nil))

	w = do(s, httptest.NewRequest(http.MethodGet, DefaultMetricsPath, nil))
	if !strings.Contains(w.Body.String(), "test_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	s := newTestServer(t, nil)
	socket := filepath.Join(t.TempDir(), "adapter.sock")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- s.ListenAndServe(ctx, "", socket)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never created its socket")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("ListenAndServe returned %v", err)
	}
}
