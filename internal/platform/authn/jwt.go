// Package authn verifies bearer tokens that name the calling principal.
package authn

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("authn: invalid token")

// ErrTokenExpired is returned when an otherwise valid token has expired.
var ErrTokenExpired = errors.New("authn: token expired")

// Verifier signs and checks HS256 tokens whose subject is the principal.
type Verifier struct {
	key      []byte
	issuer   string
	audience string
}

// NewVerifier constructs a Verifier. It returns nil when secret is empty.
func NewVerifier(secret, issuer, audience string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{key: []byte(secret), issuer: issuer, audience: audience}
}

// Issue signs a token for principal valid for ttl.
func (v *Verifier) Issue(principal shared.Principal, ttl time.Duration) (string, error) {
	if principal.IsZero() {
		return "", shared.ErrInvalidPrincipal
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    v.issuer,
		ID:        uuid.NewString(),
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

// Verify checks the signature, expiry, issuer and audience and returns the subject.
func (v *Verifier) Verify(token string) (shared.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	p := shared.ParsePrincipal(claims.Subject)
	if p.IsZero() {
		return "", ErrInvalidToken
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
