// Package testutil provides common testing utilities and fake Clerk endpoints.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aisaas/backend/infra/clerk"
)

// SessionKeys is an RSA key pair standing in for a Clerk instance's JWT key.
type SessionKeys struct {
	Private *rsa.PrivateKey
	// PEM is the public key in the form CLERK_JWT_KEY expects.
	PEM string
}

// NewSessionKeys generates a fresh key pair.
func NewSessionKeys(t testing.TB) *SessionKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return &SessionKeys{
		Private: key,
		PEM:     string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	}
}

// Token signs a one-minute session token for userID on plan. An empty plan
// leaves the claim out.
func (k *SessionKeys) Token(t testing.TB, userID, plan string) string {
	t.Helper()
	claims := clerk.Claims{
		SessionID: "sess_" + userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	if plan != "" {
		claims.Plan = "u:" + plan
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k.Private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// ClerkServer fakes the user endpoints of the Clerk Backend API, keeping
// private metadata in memory.
type ClerkServer struct {
	*httptest.Server

	mu       sync.RWMutex
	metadata map[string]map[string]interface{}
	patches  int
}

// NewClerkServer starts a fake closed with the test.
func NewClerkServer(t testing.TB) *ClerkServer {
	t.Helper()
	s := &ClerkServer{metadata: make(map[string]map[string]interface{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetMetadata replaces a user's private metadata.
func (s *ClerkServer) SetMetadata(userID string, md map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[userID] = md
}

// Metadata returns a copy of a user's private metadata.
func (s *ClerkServer) Metadata(userID string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.metadata[userID]))
	for k, v := range s.metadata[userID] {
		out[k] = v
	}
	return out
}

// Patches returns how many metadata updates were received.
func (s *ClerkServer) Patches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patches
}

func (s *ClerkServer) serve(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/users/")
	userID, suffix, _ := strings.Cut(rest, "/")
	if userID == "" || rest == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	switch {
	case r.Method == http.MethodGet && suffix == "":
	case r.Method == http.MethodPatch && suffix == "metadata":
		var body struct {
			PrivateMetadata map[string]interface{} `json:"private_metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"message":"invalid body"}]}`))
			return
		}
		s.mu.Lock()
		if s.metadata[userID] == nil {
			s.metadata[userID] = make(map[string]interface{})
		}
		for k, v := range body.PrivateMetadata {
			s.metadata[userID][k] = v
		}
		s.patches++
		s.mu.Unlock()
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(clerk.User{ID: userID, PrivateMetadata: s.Metadata(userID)})
}
