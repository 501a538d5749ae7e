package utils // package utils provides helpers for signing and verifying player tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/room-lobby/internal/model"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid player token")

// PlayerToken is a signed capability for one player row.  Whoever holds
// it may act as that player: leave the room and, for hosts, delete the
// room or start the game.
type PlayerToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// PlayerClaims are the claims carried by a player token.  Subject holds
// the player id.
type PlayerClaims struct {
	RoomID string `json:"room"`
	IsHost bool   `json:"host"`
	jwt.RegisteredClaims
}

// NewPlayerToken builds and signs an HS256 JWT for a player.
func NewPlayerToken(secret string, p model.Player, ttl time.Duration) (PlayerToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := PlayerClaims{
		RoomID: p.RoomID,
		IsHost: p.IsHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return PlayerToken{}, err
	}
	return PlayerToken{Token: signed, Exp: exp}, nil
}

// ParsePlayerToken verifies raw and returns its claims.  Only HMAC
// signatures are accepted.
func ParsePlayerToken(secret, raw string) (PlayerClaims, error) {
	var claims PlayerClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" || claims.RoomID == "" {
		return PlayerClaims{}, ErrInvalidToken
	}
	return claims, nil
}
