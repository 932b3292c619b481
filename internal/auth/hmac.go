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

var (
	// ErrInvalidToken indicates the token failed structure or signature checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
)

// TokenClaims is the minimal JWT payload used for visitor admission. Subject
// carries the visitor id the session will be registered under.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

// wireClaims is the JSON shape of the payload segment.
type wireClaims struct {
	Subject  string `json:"sub"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat,omitempty"`
	Audience string `json:"aud,omitempty"`
}

const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

// HMACTokenVerifier validates compact JWT-style tokens signed with HS256.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier constructs a verifier for the shared secret and clock
// skew allowance.
func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if v == nil || clock == nil {
		return
	}
	v.now = clock
}

// Verify checks structure, signature, and expiry, returning the embedded claims.
func (v *HMACTokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	//1.- The signature covers the raw header.payload text, not the decoded bytes.
	signed := parts[0] + "." + parts[1]
	signature, err := decodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signature, hmacSum([]byte(signed), v.secret)) {
		return nil, ErrInvalidToken
	}

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload wireClaims
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredToken
	}

	return &TokenClaims{
		Subject:   payload.Subject,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
		Audience:  payload.Audience,
	}, nil
}

// SignToken mints a compact HS256 token for the supplied claims. The portal
// backend owning the shared secret issues production tokens; this helper
// serves development tooling and tests.
func SignToken(secret string, claims TokenClaims) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("hmac secret must not be empty")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token subject must not be empty")
	}
	if claims.ExpiresAt.IsZero() {
		return "", errors.New("token expiry must be set")
	}
	payload := wireClaims{
		Subject:  claims.Subject,
		Expires:  claims.ExpiresAt.Unix(),
		Audience: claims.Audience,
	}
	if !claims.IssuedAt.IsZero() {
		payload.Issued = claims.IssuedAt.Unix()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	signed := encodeSegment([]byte(tokenHeader)) + "." + encodeSegment(payloadBytes)
	return signed + "." + encodeSegment(hmacSum([]byte(signed), []byte(secret))), nil
}

func hmacSum(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}

func encodeSegment(segment []byte) string {
	return base64.RawURLEncoding.EncodeToString(segment)
}
