// Package auth mints and verifies the HS256 access tokens presented to the
// settlement API. The user id travels in `sub`, the platform role in `role`.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

const clockLeeway = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// AccessTokenPayload is what a caller supplies when minting.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// Claims is a verified token.
type Claims struct {
	UserID uuid.UUID
	Role   enums.Role
	ID     string
	Expiry time.Time
}

type wireClaims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// MintAccessToken signs a token valid for cfg.ExpirationMinutes from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "" || cfg.Issuer == "":
		return "", errors.New("jwt secret and issuer are required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}

	jti := payload.JTI
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := wireClaims{
		Role: payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry and decodes the caller.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	var wc wireClaims
	_, err := jwt.ParseWithClaims(raw, &wc,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(wc.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, errors.New("token subject is not a user id")
	}
	if !wc.Role.IsValid() {
		return nil, fmt.Errorf("token carries invalid role %q", wc.Role)
	}
	return &Claims{
		UserID: userID,
		Role:   wc.Role,
		ID:     wc.ID,
		Expiry: wc.ExpiresAt.Time,
	}, nil
}
