package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTesterAuthDisabled is returned when no secret has been configured.
var ErrTesterAuthDisabled = errors.New("session: tester auth disabled")

// ErrInvalidTesterToken is returned by ValidateToken on any parse, signature,
// or expiry failure.
var ErrInvalidTesterToken = errors.New("session: invalid tester token")

// TesterIdentity is the subject bound to one interactive-tester session.
type TesterIdentity struct {
	UserID string
}

// testerClaims embeds the standard registered claims, grounded on the
// teacher's auth.Claims shape (subject-as-user-id, signed HS256).
type testerClaims struct {
	jwt.RegisteredClaims
}

// TesterAuth signs and verifies the interactive tester CLI's session
// tokens (spec §6's second CLI entrypoint), grounded on the teacher's
// internal/auth JWTService.
type TesterAuth struct {
	secret []byte
	expiry time.Duration
}

// NewTesterAuth builds a TesterAuth from config.TesterConfig's secret and
// expiry.
func NewTesterAuth(secret string, expiry time.Duration) *TesterAuth {
	return &TesterAuth{secret: []byte(secret), expiry: expiry}
}

// IssueToken signs a session token for identity, valid for t.expiry (no
// expiry claim at all when expiry <= 0).
func (t *TesterAuth) IssueToken(identity TesterIdentity) (string, error) {
	if t == nil || len(t.secret) == 0 {
		return "", ErrTesterAuthDisabled
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("session: tester identity requires a user id")
	}

	claims := testerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if t.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(t.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken parses and verifies a session token, returning the bound
// identity.
func (t *TesterAuth) ValidateToken(token string) (TesterIdentity, error) {
	if t == nil || len(t.secret) == 0 {
		return TesterIdentity{}, ErrTesterAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &testerClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return TesterIdentity{}, ErrInvalidTesterToken
	}

	claims, ok := parsed.Claims.(*testerClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return TesterIdentity{}, ErrInvalidTesterToken
	}

	return TesterIdentity{UserID: claims.Subject}, nil
}
