// Package auth issues and checks the development backend's login tokens and
// password hashes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: 7 * 24 * time.Hour,
		Issuer: "eventfinder-devapi",
	}
}

func CreateToken(userID int64, username string, cfg TokenConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("missing secret")
	}
	if userID <= 0 {
		return "", errors.New("missing userID")
	}
	if cfg.Expiry <= 0 {
		return "", errors.New("invalid expiry")
	}

	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
			ID:        uuid.NewString(),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

func VerifyToken(tokenString string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("missing secret")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
