// Package clerk verifies Clerk session tokens and talks to the Clerk Backend API.
package clerk

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Plan keys reported for a session.
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// ErrUnauthorizedParty is returned when the token was minted for an origin
// that is not in the authorized party list.
var ErrUnauthorizedParty = errors.New("clerk: unauthorized party")

// Claims are the session token claims the backend relies on.
type Claims struct {
	AuthorizedParty string `json:"azp,omitempty"`
	SessionID       string `json:"sid,omitempty"`
	Plan            string `json:"pla,omitempty"`
	jwt.RegisteredClaims
}

// Session is a verified session.
type Session struct {
	UserID    string
	SessionID string
	Plan      string
}

// Premium reports whether the session is on the premium plan.
func (s Session) Premium() bool {
	return s.Plan == PlanPremium
}

// SessionVerifier validates RS256 session JWTs against the instance's
// public key.
type SessionVerifier struct {
	publicKey   *rsa.PublicKey
	parties     map[string]bool
	premiumPlan string
	parser      *jwt.Parser
}

// NewSessionVerifier parses a PEM-encoded RSA public key. premiumPlan is the
// plan key the instance assigns to paid users; parties, when non-empty,
// restricts the accepted azp claim.
func NewSessionVerifier(pemKey, premiumPlan string, parties []string) (*SessionVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalizePEM(pemKey)))
	if err != nil {
		return nil, fmt.Errorf("parse clerk jwt key: %w", err)
	}
	return newSessionVerifier(key, premiumPlan, parties), nil
}

func newSessionVerifier(key *rsa.PublicKey, premiumPlan string, parties []string) *SessionVerifier {
	if premiumPlan == "" {
		premiumPlan = PlanPremium
	}
	allowed := make(map[string]bool, len(parties))
	for _, p := range parties {
		allowed[strings.TrimRight(p, "/")] = true
	}
	return &SessionVerifier{
		publicKey:   key,
		parties:     allowed,
		premiumPlan: premiumPlan,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// Verify validates the token and returns the session it represents.
func (v *SessionVerifier) Verify(tokenString string) (Session, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return Session{}, err
	}
	if !token.Valid {
		return Session{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims)
	}
	if len(v.parties) > 0 && claims.AuthorizedParty != "" && !v.parties[strings.TrimRight(claims.AuthorizedParty, "/")] {
		return Session{}, fmt.Errorf("%w: %s", ErrUnauthorizedParty, claims.AuthorizedParty)
	}

	return Session{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Plan:      v.resolvePlan(claims.Plan),
	}, nil
}

// resolvePlan maps the pla claim ("u:premium", "premium", "o:team") to
// PlanPremium or PlanFree. Only user-scoped plans count.
func (v *SessionVerifier) resolvePlan(claim string) string {
	plan := claim
	if scope, rest, ok := strings.Cut(claim, ":"); ok {
		if scope != "u" {
			return PlanFree
		}
		plan = rest
	}
	if plan == v.premiumPlan {
		return PlanPremium
	}
	return PlanFree
}

// normalizePEM restores newlines in keys supplied as a single env line.
func normalizePEM(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), `\n`, "\n")
}
