package livekit

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func parse(t *testing.T, token, secret string) *Claims {
	t.Helper()
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	return claims
}

func TestMint_SignedWithSecretAndCarriesGrant(t *testing.T) {
	iss := NewIssuer("APIkey123", "s3cret", "wss://demo.livekit.cloud", "", 0)
	fixed := time.Now().Truncate(time.Second)
	iss.now = func() time.Time { return fixed }

	tok, err := iss.Mint("caller-1", "", 0)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if tok.Room != DefaultRoom || tok.Identity != "caller-1" || tok.WSURL != "wss://demo.livekit.cloud" {
		t.Errorf("token = %+v", tok)
	}

	c := parse(t, tok.JWT, "s3cret")
	if c.Issuer != "APIkey123" || c.Subject != "caller-1" {
		t.Errorf("iss/sub = %q/%q", c.Issuer, c.Subject)
	}
	if !c.Video.RoomJoin || c.Video.Room != DefaultRoom {
		t.Errorf("video grant = %+v", c.Video)
	}
	if got := c.ExpiresAt.Time.Sub(c.NotBefore.Time); got != DefaultTTL {
		t.Errorf("ttl = %v, want %v", got, DefaultTTL)
	}
}

func TestMint_WrongSecretFails(t *testing.T) {
	tok, err := NewIssuer("k", "right", "", "", 0).Mint("a", "", 0)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	_, err = jwt.ParseWithClaims(tok.JWT, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte("wrong"), nil
	})
	if err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestMint_DefaultsIdentityAndHonorsOverrides(t *testing.T) {
	iss := NewIssuer("k", "s", "", "lobby", 10*time.Minute)

	tok, err := iss.Mint("", "", 0)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !strings.HasPrefix(tok.Identity, "agent-") || len(tok.Identity) <= len("agent-") {
		t.Errorf("Identity = %q, want agent-<random>", tok.Identity)
	}
	if tok.Room != "lobby" {
		t.Errorf("Room = %q, want lobby", tok.Room)
	}

	tok, err = iss.Mint("bob", "vip", 2*time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	c := parse(t, tok.JWT, "s")
	if c.Video.Room != "vip" || c.ExpiresAt.Time.Sub(c.NotBefore.Time) != 2*time.Minute {
		t.Errorf("claims = %+v", c)
	}
}

func TestMint_MissingCredentials(t *testing.T) {
	for _, iss := range []*Issuer{
		NewIssuer("", "s", "", "", 0),
		NewIssuer("k", "", "", "", 0),
	} {
		if _, err := iss.Mint("a", "", 0); !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
		if iss.Configured() {
			t.Error("Configured() = true with a missing credential")
		}
	}
}

func TestMint_DefaultIdentitiesAreDistinct(t *testing.T) {
	iss := NewIssuer("k", "s", "", "lobby", time.Minute)
	idRe := regexp.MustCompile(`^agent-[0-9a-f]{10}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := iss.Mint("", "", 0)
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		if !idRe.MatchString(tok.Identity) {
			t.Fatalf("Identity = %q, want agent-<10 hex>", tok.Identity)
		}
		if seen[tok.Identity] {
			t.Fatalf("identity %q issued twice", tok.Identity)
		}
		seen[tok.Identity] = true
	}
}
