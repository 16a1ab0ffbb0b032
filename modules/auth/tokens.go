package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the claims carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type  string   `json:"typ"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// TokenPair is returned by GenerateToken and RefreshToken.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Identity is what a token is issued for.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// GenerateToken issues an access and a refresh token for id.
func (s *Service) GenerateToken(ctx context.Context, id Identity) (*TokenPair, error) {
	now := s.now()
	access, err := s.sign(id, tokenTypeAccess, now, s.options.JWT.Expiration)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(id, tokenTypeRefresh, now, s.options.JWT.RefreshExpiration)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.options.JWT.Expiration)
	s.emit(ctx, EventTypeTokenIssued, map[string]any{"subject": id.Subject, "expiresAt": expiresAt})
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.options.JWT.Expiration.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateToken verifies an access token and returns its claims. Refresh tokens are
// rejected.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	return s.parse(ctx, token, tokenTypeAccess)
}

// RefreshToken exchanges a refresh token for a new pair carrying the same identity.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(ctx, refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.GenerateToken(ctx, Identity{Subject: claims.Subject, Email: claims.Email, Roles: claims.Roles})
}

func (s *Service) sign(id Identity, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.options.JWT.Issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:  tokenType,
		Email: id.Email,
		Roles: id.Roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *Service) parse(ctx context.Context, token, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.options.JWT.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		s.emit(ctx, EventTypeAuthFailed, map[string]any{"reason": "expired", "tokenType": tokenType})
		return nil, ErrTokenExpired
	case err != nil:
		s.emit(ctx, EventTypeAuthFailed, map[string]any{"reason": "invalid", "tokenType": tokenType})
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case claims.Type != tokenType:
		s.emit(ctx, EventTypeAuthFailed, map[string]any{"reason": "wrong type", "tokenType": tokenType})
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, tokenType)
	}
	return claims, nil
}
