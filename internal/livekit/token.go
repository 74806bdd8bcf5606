// Package livekit mints access tokens for realtime media rooms.
package livekit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnavailable is returned when the issuer has no API key or secret.
var ErrUnavailable = errors.New("livekit credentials not configured")

const (
	DefaultRoom = "demo-room"
	DefaultTTL  = time.Hour
)

// VideoGrant is the room permission embedded in a token.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

// Claims is the token payload understood by LiveKit servers.
type Claims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// Token is a minted token with the values it was minted for.
type Token struct {
	JWT      string `json:"token"`
	WSURL    string `json:"wsUrl"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Issuer signs room tokens with an API key and secret.
type Issuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
	room      string
	ttl       time.Duration
	now       func() time.Time
}

// NewIssuer creates an Issuer. Empty room and non-positive ttl use the defaults.
func NewIssuer(apiKey, apiSecret, wsURL, room string, ttl time.Duration) *Issuer {
	if room == "" {
		room = DefaultRoom
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		room:      room,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether both credentials are set.
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && i.apiSecret != ""
}

// Mint returns an HS256 token allowing identity to join room for ttl. An
// empty identity becomes "agent-<random>", an empty room the configured
// room, and a non-positive ttl the configured ttl.
func (i *Issuer) Mint(identity, room string, ttl time.Duration) (Token, error) {
	if !i.Configured() {
		return Token{}, ErrUnavailable
	}
	if identity = strings.TrimSpace(identity); identity == "" {
		identity = randomIdentity()
	}
	if room == "" {
		room = i.room
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: VideoGrant{RoomJoin: true, Room: room},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return Token{}, fmt.Errorf("signing livekit token: %w", err)
	}
	return Token{JWT: signed, WSURL: i.wsURL, Room: room, Identity: identity}, nil
}

// randomIdentity returns "agent-" plus ten hex digits.
func randomIdentity() string {
	u := uuid.New()
	return fmt.Sprintf("agent-%x", u[:5])
}
