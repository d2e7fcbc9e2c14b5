package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid covers every verification failure: bad signature,
// expired, issuer/audience mismatch, wrong token type, malformed
// structure. Callers never learn which.
var ErrTokenInvalid = errors.New("token invalid")

const (
	TypeAccess  = "ACCESS"
	TypeRefresh = "REFRESH"
)

type AccessClaims struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	TokenType  string `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims binds the session twice: SessionID names the stored
// row, Secret must match that row's current hash. Replay of a rotated
// token carries a Secret the store no longer recognizes.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	SessionID string `json:"session_id"`
	Secret    string `json:"secret"`
	jwt.RegisteredClaims
}

// Codec signs and verifies bearer tokens with a shared HS256 secret.
// Stateless; constructed once at process start.
type Codec struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c *Codec) registered(sub string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    c.Issuer,
		Audience:  jwt.ClaimStrings{c.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) SignAccess(claims AccessClaims) (string, error) {
	claims.TokenType = TypeAccess
	claims.RegisteredClaims = c.registered(claims.Subject, c.AccessTTL, time.Now())
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
}

func (c *Codec) SignRefresh(sub, sessionID, secret string) (string, error) {
	claims := RefreshClaims{
		TokenType:        TypeRefresh,
		SessionID:        sessionID,
		Secret:           secret,
		RegisteredClaims: c.registered(sub, c.RefreshTTL, time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return c.Secret, nil
	}, jwt.WithIssuer(c.Issuer), jwt.WithAudience(c.Audience), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// VerifyAccess resolves a bearer access token into its claims.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// DecodeSessionID extracts the session id from a refresh token
// without verifying it. Logout must succeed on a token that is
// already expired or rotated; nothing else may use this path.
func (c *Codec) DecodeSessionID(tokenStr string) (string, bool) {
	var claims RefreshClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return "", false
	}
	if claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}
