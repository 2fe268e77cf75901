package storage

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestMockFileStorage(t *testing.T) {
	ctx := context.Background()
	storage := NewMockFileStorage()
	defer storage.Close()

	t.Run("Store and Open", func(t *testing.T) {
		err := storage.Store(ctx, "prerendered/index.html", []byte("home"), &StoreOptions{
			CacheControl: "public, max-age=0",
		})
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}

		body, metadata, err := storage.Open(ctx, "prerendered/index.html")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer body.Close()

		data, _ := io.ReadAll(body)
		if string(data) != "home" {
			t.Errorf("Body = %q, want %q", data, "home")
		}
		if metadata.ContentType != "text/html; charset=utf-8" {
			t.Errorf("ContentType = %q", metadata.ContentType)
		}
		if metadata.CacheControl != "public, max-age=0" {
			t.Errorf("CacheControl = %q", metadata.CacheControl)
		}
	})

	t.Run("Store without overwrite", func(t *testing.T) {
		err := storage.Store(ctx, "prerendered/index.html", []byte("again"), &StoreOptions{})
		if !IsAlreadyExists(err) {
			t.Errorf("Expected already exists, got %v", err)
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		if _, err := storage.Retrieve(ctx, "missing"); !IsNotFound(err) {
			t.Errorf("Expected not found, got %v", err)
		}
		exists, err := storage.Exists(ctx, "missing")
		if err != nil || exists {
			t.Errorf("Exists() = %v, %v; want false, nil", exists, err)
		}
	})

	t.Run("Queued failures", func(t *testing.T) {
		boom := errors.New("boom")
		storage.FailNext(boom)

		if _, err := storage.Retrieve(ctx, "prerendered/index.html"); !errors.Is(err, boom) {
			t.Errorf("Expected queued failure, got %v", err)
		}
		if _, err := storage.Retrieve(ctx, "prerendered/index.html"); err != nil {
			t.Errorf("Failure should be consumed, got %v", err)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		storage.Reset()
		if storage.FileCount() != 0 {
			t.Errorf("FileCount() = %d after reset", storage.FileCount())
		}
	})
}
