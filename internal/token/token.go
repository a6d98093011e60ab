// Package token issues the credential an end user presents to the SFU when
// joining a voice room.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/voicegate/internal/domain"
)

const NonceBytes = 16

var ErrInvalidToken = errors.New("invalid user token")

// Claims bind one user to one room. The nonce makes every token unique even
// for identical (user, room) pairs issued in the same second.
type Claims struct {
	UserID domain.UserID `json:"user_id"`
	RoomID domain.RoomID `json:"room_id"`
	Nonce  string        `json:"nonce"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens with the secret shared with the SFU.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	rand   io.Reader
}

func NewIssuer(issuer string, key []byte, ttl time.Duration) (*Issuer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: token signing key is required", domain.ErrConfiguration)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", domain.ErrConfiguration)
	}
	return &Issuer{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		rand:   rand.Reader,
	}, nil
}

func (i *Issuer) Issue(userID domain.UserID, roomID domain.RoomID) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is empty", domain.ErrInvalidArgument)
	}
	if roomID == "" {
		return "", fmt.Errorf("%w: room id is empty", domain.ErrInvalidArgument)
	}

	nonce := make([]byte, NonceBytes)
	if _, err := io.ReadFull(i.rand, nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	n := hex.EncodeToString(nonce)
	now := i.now()

	claims := Claims{
		UserID: userID,
		RoomID: roomID,
		Nonce:  n,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        n,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Verify checks signature, expiry and issuer. The SFU performs the same check
// on its side; this one exists for tooling and tests.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
