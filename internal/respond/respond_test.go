package respond

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lambda-web-adapter/pkg/lambda"
)

func TestBuffered(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantStatus  int
		wantBody    string
		contentType string
	}{
		{
			name: "explicit status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				io.WriteString(w, `{"ok":true}`)
			},
			wantStatus:  http.StatusCreated,
			wantBody:    `{"ok":true}`,
			contentType: "application/json",
		},
		{
			name: "implicit status and sniffed content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "<html><body>hi</body></html>")
			},
			wantStatus:  http.StatusOK,
			wantBody:    "<html><body>hi</body></html>",
			contentType: "text/html; charset=utf-8",
		},
		{
			name: "second WriteHeader is ignored",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				w.WriteHeader(http.StatusTeapot)
			},
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			resp, err := Buffered(tt.handler).Respond(context.Background(), req)
			if err != nil {
				t.Fatalf("Respond failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body, err := resp.Body.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if string(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
		})
	}
}

func TestBuffered_Panic(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	resp, err := Buffered(h).Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err == nil || resp != nil {
		t.Fatalf("Respond = %v, %v; want a panic error", resp, err)
	}
}

func TestStreaming_HeadersBeforeBody(t *testing.T) {
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "first,")
		w.(http.Flusher).Flush()
		<-release
		io.WriteString(w, "second")
	})

	resp, err := Streaming(h).Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || resp.Header.Get("Content-Type") != "text/plain" {
		t.Errorf("head = %d %v", resp.StatusCode, resp.Header)
	}

	rc, err := resp.Body.Reader()
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(rc, buf); err != nil || string(buf) != "first," {
		t.Fatalf("first chunk = %q, %v", buf, err)
	}

	close(release)
	rest, err := io.ReadAll(rc)
	if err != nil || string(rest) != "second" {
		t.Errorf("rest = %q, %v", rest, err)
	}
}

func TestStreaming_NoBody(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	})

	resp, err := Streaming(h).Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound || resp.Body != nil {
		t.Errorf("response = %d body=%v", resp.StatusCode, resp.Body)
	}
}

func TestStreaming_CancelStopsHandler(t *testing.T) {
	stopped := make(chan error, 1)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "tick")
		<-r.Context().Done()
		stopped <- context.Cause(r.Context())
	})

	resp, err := Streaming(h).Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	reason := errors.New("client went away")
	resp.Body.Cancel(reason)

	select {
	case got := <-stopped:
		if !errors.Is(got, reason) {
			t.Errorf("handler context cause = %v, want %v", got, reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestStreaming_PanicBeforeHeaders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	_, err := Streaming(h).Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want the panic", err)
	}
}

func TestResponderFunc(t *testing.T) {
	called := false
	f := ResponderFunc(func(ctx context.Context, req *http.Request) (*lambda.Response, error) {
		called = true
		return nil, nil
	})
	f.Respond(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("function was not called")
	}
}
