package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("Str0ng!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "Str0ng!pass" {
		t.Fatal("hash equals plaintext")
	}
	if !hasher.Verify("Str0ng!pass", hash) {
		t.Error("correct password rejected")
	}
	if hasher.Verify("Wr0ng!pass", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	first, err := hasher.Hash("Str0ng!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := hasher.Hash("Str0ng!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same password are identical")
	}
	if !hasher.Verify("Str0ng!pass", first) || !hasher.Verify("Str0ng!pass", second) {
		t.Error("salted hashes do not both verify")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{name: "zero uses default", cost: 0, want: bcrypt.DefaultCost},
		{name: "negative uses default", cost: -1, want: bcrypt.DefaultCost},
		{name: "below min clamped", cost: 1, want: bcrypt.MinCost},
		{name: "above max clamped", cost: 99, want: bcrypt.MaxCost},
		{name: "in range kept", cost: 12, want: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHasher(tt.cost)
			if h.cost != tt.want {
				t.Errorf("cost = %d, want %d", h.cost, tt.want)
			}
		})
	}
}

const testKey = "test-signing-key-0123456789abcdef-0123456789abcdef"

func TestNewTokenCodecRequiresKey(t *testing.T) {
	if _, err := NewTokenCodec(nil, time.Minute); err == nil {
		t.Fatal("codec constructed without signing key")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	codec, err := NewTokenCodec([]byte(testKey), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.SetNow(func() time.Time { return issued })

	token, err := codec.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(issued.Add(30 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want issued+30m", claims.ExpiresAt)
	}
}

func TestTokenExpiry(t *testing.T) {
	codec, err := NewTokenCodec([]byte(testKey), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	codec.SetNow(func() time.Time { return now })

	token, err := codec.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Still valid just inside the lifetime.
	now = issued.Add(29 * time.Minute)
	if _, err := codec.Verify(token); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	// Expired once the lifetime plus leeway has passed.
	now = issued.Add(30*time.Minute + DefaultLeeway + time.Second)
	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenTamperRejected(t *testing.T) {
	codec, err := NewTokenCodec([]byte(testKey), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	token, err := codec.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := codec.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongKeyRejected(t *testing.T) {
	codec, err := NewTokenCodec([]byte(testKey), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	other, err := NewTokenCodec([]byte("another-signing-key-another-signing-key-x"), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	token, err := other.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("cross-key token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	codec, err := NewTokenCodec([]byte(testKey), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}
