package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

// ErrInvalidSessionToken reports a malformed or tampered session token.
// It is terminal for the authorization attempt carrying the token.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionClaims carries a session's identity through the OAuth state
// parameter. The token is self-describing: decoding needs nothing beyond the
// token and the derived signing key.
type SessionClaims struct {
	GuildID   string                `json:"gid"`
	RoleID    string                `json:"rid"`
	ChannelID string                `json:"cid"`
	Security  domain.SecurityConfig `json:"sec"`
	jwt.RegisteredClaims
}

// StateTokenCodec encodes and decodes session tokens as HS256 JWTs. Encoding
// is deterministic: the same fields and creation instant always yield the
// same token, so the token doubles as the session's storage key.
type StateTokenCodec struct {
	key []byte
}

const stateTokenKeyInfo = "guildgate state token v1"

// NewStateTokenCodec derives the signing key from the OAuth client secret so
// no extra secret has to be provisioned.
func NewStateTokenCodec(clientSecret string) (*StateTokenCodec, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(clientSecret), nil, []byte(stateTokenKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive state token key: %w", err)
	}
	return &StateTokenCodec{key: key}, nil
}

// Encode produces the opaque session token for the given session fields.
func (c *StateTokenCodec) Encode(guildID, roleID, channelID string, sec domain.SecurityConfig, createdAt time.Time) (string, error) {
	claims := SessionClaims{
		GuildID:   guildID,
		RoleID:    roleID,
		ChannelID: channelID,
		Security:  sec,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(createdAt.UTC().Truncate(time.Second)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Decode recovers the session fields from a token. Any parse or signature
// failure is reported as ErrInvalidSessionToken.
func (c *StateTokenCodec) Decode(token string) (*domain.Session, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSessionToken
	}
	if claims.IssuedAt == nil || claims.GuildID == "" {
		return nil, ErrInvalidSessionToken
	}
	return &domain.Session{
		Token:     token,
		GuildID:   claims.GuildID,
		RoleID:    claims.RoleID,
		ChannelID: claims.ChannelID,
		CreatedAt: claims.IssuedAt.Time,
		Security:  claims.Security,
	}, nil
}
