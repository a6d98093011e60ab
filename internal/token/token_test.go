package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicegate/internal/domain"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer("s1", []byte("t1"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func TestNewIssuerRequiresKey(t *testing.T) {
	if _, err := NewIssuer("s1", nil, time.Minute); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := NewIssuer("s1", []byte("k"), 0); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestIssueRejectsEmptyIDs(t *testing.T) {
	i := newIssuer(t)
	if _, err := i.Issue("", "room"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty user: %v", err)
	}
	if _, err := i.Issue("u1", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty room: %v", err)
	}
}

func TestIssueIsFreshEveryTime(t *testing.T) {
	i := newIssuer(t)
	a, err := i.Issue("u1", "s1_voice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := i.Issue("u1", "s1_voice")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("identical tokens for repeated issue")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	i := newIssuer(t)
	raw, err := i.Issue("u1", "s1_voice")
	if err != nil {
		t.Fatal(err)
	}
	c, err := i.Verify(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "u1" || c.RoomID != "s1_voice" || c.Issuer != "s1" {
		t.Fatalf("unexpected claims %+v", c)
	}
	if len(c.Nonce) != 2*NonceBytes || c.ID != c.Nonce {
		t.Fatalf("nonce %q / jti %q", c.Nonce, c.ID)
	}
}

func TestVerifyRejectsTamperingAndExpiry(t *testing.T) {
	i := newIssuer(t)
	raw, err := i.Issue("u1", "s1_voice")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewIssuer("s1", []byte("another-key"), time.Minute)
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign key accepted: %v", err)
	}

	parts := strings.Split(raw, ".")
	tail := "AA"
	if strings.HasSuffix(parts[1], tail) {
		tail = "BB"
	}
	parts[1] = parts[1][:len(parts[1])-2] + tail
	if _, err := i.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered payload accepted: %v", err)
	}

	i.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := i.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy gone") }

func TestIssueFailsWithoutEntropy(t *testing.T) {
	i := newIssuer(t)
	i.rand = failingReader{}
	if _, err := i.Issue("u1", "r"); err == nil {
		t.Fatal("expected error when the random source fails")
	}
}
