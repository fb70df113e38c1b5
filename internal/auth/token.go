// Package auth verifies the signed bearer tokens that identify API callers.
// Tokens are minted by the identity service; Issue exists for tooling and
// tests that need to stand in for it.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const tokenVersion = "v1"

// DefaultLeeway absorbs clock skew between the identity service and the API.
const DefaultLeeway = 30 * time.Second

// Claims identify the caller. Workspace roles are looked up per request and
// never carried in the token.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	JTI   string `json:"jti"`
	Exp   int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type Verifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewVerifier(secret string, leeway time.Duration) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		leeway: leeway,
		now:    time.Now,
	}
}

// Issue encodes claims as "v1.<payload>.<signature>".
func (v *Verifier) Issue(claims Claims) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	signed := tokenVersion + "." + base64.RawURLEncoding.EncodeToString(body)
	return signed + "." + v.sign(signed), nil
}

func (v *Verifier) Verify(token string) (Claims, error) {
	cut := strings.LastIndexByte(token, '.')
	if cut < 0 {
		return Claims{}, ErrInvalidToken
	}
	signed, signature := token[:cut], token[cut+1:]
	if !hmac.Equal([]byte(signature), []byte(v.sign(signed))) {
		return Claims{}, ErrInvalidToken
	}

	version, payload, ok := strings.Cut(signed, ".")
	if !ok || version != tokenVersion {
		return Claims{}, ErrInvalidToken
	}
	body, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if v.now().Add(-v.leeway).Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (v *Verifier) sign(signed string) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(signed))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
