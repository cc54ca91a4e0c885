package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Client Tests
// =============================================================================

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{
		BaseURL: "https://api.example.com/",
		Timeout: 10 * time.Second,
	})

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", client.httpClient.Timeout)
	}
}

func TestClient_PostAttachesTokenAndJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Accept") != "image/jpeg" {
			t.Errorf("Accept = %s, want image/jpeg", r.Header.Get("Accept"))
		}

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["inputs"] != "a cat" {
			t.Errorf("body[inputs] = %s, want a cat", body["inputs"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		Token:   "sk_test",
		Headers: map[string]string{"Accept": "image/jpeg"},
	})

	resp, err := client.Post(context.Background(), "/generate", map[string]string{"inputs": "a cat"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
}

func TestClient_AbsoluteURLOverridesBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/direct" {
			t.Errorf("Path = %s, want /direct", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: "http://unused.invalid"})
	resp, err := client.Get(context.Background(), server.URL+"/direct")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
}

func TestDecodeResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	var result map[string]string
	if err := DecodeResponse(resp, &result); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("result[message] = %s, want hello", result["message"])
	}
}

func TestDecodeResponse_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"message":"user not found"}]}`))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("DecodeResponse() error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", se.StatusCode)
	}
	if got := se.Message("errors.0.long_message", "errors.0.message"); got != "user not found" {
		t.Errorf("Message() = %q, want user not found", got)
	}
}

func TestStatusErrorMessageFallsBackToBody(t *testing.T) {
	se := &StatusError{StatusCode: 500, Body: []byte("  plain failure \n")}
	if got := se.Message("error.message"); got != "plain failure" {
		t.Errorf("Message() = %q, want plain failure", got)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("0123456789"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("ReadAllStrict() error = %v, want ErrBodyTooLarge", err)
	}
	data, err := ReadAllStrict(strings.NewReader("01234"), 5)
	if err != nil || string(data) != "01234" {
		t.Errorf("ReadAllStrict() = %q, %v", data, err)
	}
}

func TestDecodeJSONRejectsEmpty(t *testing.T) {
	var v map[string]string
	if err := DecodeJSON(strings.NewReader(""), &v); err == nil {
		t.Error("DecodeJSON() should reject empty body")
	}
}

func TestWriteErrorUsesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("db unavailable"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.Message != "db unavailable" {
		t.Errorf("unexpected envelope %+v", env)
	}
}
