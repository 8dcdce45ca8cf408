// Package stream turns large results (long directory listings and file
// content) into bounded chunks addressable by opaque continuation tokens.
// Tokens are stateless: everything needed to resume is signed into the
// token itself, so chunk delivery survives process restarts without any
// server-held cursor.
package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/infinitecloud/infinitecloud/internal/fs"
)

// Token kinds.
const (
	KindListing = "listing"
	KindContent = "content"
)

// ErrExpired is returned when a token no longer redeems: bad signature,
// past its TTL, or pointing at a node that has since disappeared.
var ErrExpired = errors.New("continuation token expired")

// Claims is the signed payload of a continuation token.
type Claims struct {
	Kind   string    `json:"kind"`
	Chat   fs.ChatID `json:"chat"`
	Path   string    `json:"path"`
	Offset int64     `json:"offset"`
	jwt.RegisteredClaims
}

// Tokenizer signs and verifies continuation tokens with an HMAC secret.
type Tokenizer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenizer creates a Tokenizer. ttl bounds how long an unredeemed token
// stays valid.
func NewTokenizer(secret string, ttl time.Duration) *Tokenizer {
	return &Tokenizer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a continuation token.
func (t *Tokenizer) Issue(kind string, chat fs.ChatID, path string, offset int64) (string, error) {
	now := time.Now()
	claims := &Claims{
		Kind:   kind,
		Chat:   chat,
		Path:   path,
		Offset: offset,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Redeem verifies a token and returns its claims. Any verification failure
// maps to ErrExpired: callers cannot distinguish forged from stale, and
// must restart pagination either way.
func (t *Tokenizer) Redeem(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if !token.Valid {
		return nil, ErrExpired
	}
	if claims.Kind != KindListing && claims.Kind != KindContent {
		return nil, ErrExpired
	}
	return claims, nil
}
