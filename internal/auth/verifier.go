// Package auth verifies bearer tokens and exposes the per-request identity
// profile used for scope authorization.
package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
)

// Profile carries the verified claims the gateway trusts for scope checks.
// ID claims are normalized to decimal strings.
type Profile struct {
	Username      string
	Scopes        []string
	EventID       string
	JobID         string
	PrParentJobID string
	PipelineID    string
}

// HasScope reports whether the profile carries the named auth scope.
func (p *Profile) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier validates RS256-signed bearer tokens against a public key.
type Verifier struct {
	publicKey *rsa.PublicKey
	maxAge    time.Duration
}

// NewVerifier loads the PEM-encoded RSA public key at path.
func NewVerifier(path string, maxAge time.Duration) (*Verifier, error) {
	pem, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read jwt public key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return &Verifier{publicKey: key, maxAge: maxAge}, nil
}

// NewVerifierWithKey builds a verifier from an already-parsed key (tests).
func NewVerifierWithKey(key *rsa.PublicKey, maxAge time.Duration) *Verifier {
	return &Verifier{publicKey: key, maxAge: maxAge}
}

// Verify parses and validates a bearer token, returning the identity profile.
// Only RS256 signatures are accepted; tokens older than maxAge are rejected.
func (v *Verifier) Verify(tokenStr string) (*Profile, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CategoryAuth, serrors.SeverityInfo, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "malformed claims")
	}

	if v.maxAge > 0 {
		iat, err := claims.GetIssuedAt()
		if err != nil || iat == nil {
			return nil, serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "token missing issued-at")
		}
		if time.Since(iat.Time) > v.maxAge {
			return nil, serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "token too old")
		}
	}

	return profileFromClaims(claims), nil
}

func profileFromClaims(claims jwt.MapClaims) *Profile {
	p := &Profile{
		Username:      claimString(claims, "username"),
		EventID:       claimID(claims, "eventId"),
		JobID:         claimID(claims, "jobId"),
		PrParentJobID: claimID(claims, "prParentJobId"),
		PipelineID:    claimID(claims, "pipelineId"),
	}
	if raw, ok := claims["scope"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				p.Scopes = append(p.Scopes, str)
			}
		}
	}
	return p
}

func claimString(claims jwt.MapClaims, name string) string {
	if s, ok := claims[name].(string); ok {
		return s
	}
	return ""
}

// claimID normalizes numeric or string identifier claims to decimal strings.
func claimID(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}
