package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateReturnsImageBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_key" {
			t.Fatalf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("Accept"); got != "image/jpeg" {
			t.Fatalf("unexpected accept %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["inputs"] != "a red fox" {
			t.Fatalf("unexpected inputs %q", body["inputs"])
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	}))
	defer server.Close()

	c := New(Config{APIURL: server.URL + "/models/sdxl", APIKey: "hf_key"})
	img, err := c.Generate(context.Background(), "a red fox")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(img) != 4 || img[0] != 0xFF {
		t.Fatalf("unexpected image bytes %v", img)
	}
}

func TestGenerateStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
	}))
	defer server.Close()

	c := New(Config{APIURL: server.URL, APIKey: "k"})
	_, err := c.Generate(context.Background(), "p")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Body != `{"error":"Model is currently loading"}` {
		t.Fatalf("unexpected status error %+v", se)
	}
}
