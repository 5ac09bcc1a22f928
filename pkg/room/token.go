package room

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenIssuer mints and verifies the scoped credential a client presents
// to enter a room's replication session. The credential binds (user, room,
// expiry) under an HMAC; clients treat it as opaque.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

var ErrBadToken = errors.New("invalid token")

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Mint issues a token admitting user into room until the ttl elapses.
func (t *TokenIssuer) Mint(userID, roomID string, now time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d", userID, roomID, now.Add(t.ttl).Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + t.sign(payload)))
}

// Verify checks the token against room and returns the user it admits.
// Fields parse from the right: the user id is free-form and may itself
// contain the separator, while room ids and expiries never do.
func (t *TokenIssuer) Verify(token, roomID string, now time.Time) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrBadToken
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) < 4 {
		return "", ErrBadToken
	}
	mac := parts[len(parts)-1]
	payload := strings.Join(parts[:len(parts)-1], "|")
	if !hmac.Equal([]byte(t.sign(payload)), []byte(mac)) {
		return "", ErrBadToken
	}
	userID := strings.Join(parts[:len(parts)-3], "|")
	if parts[len(parts)-3] != roomID {
		return "", ErrBadToken
	}
	exp, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || now.Unix() > exp {
		return "", ErrBadToken
	}
	return userID, nil
}

func (t *TokenIssuer) sign(payload string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
