package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capmd/capmd/pkg/models"
)

// JWT validation errors.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// JWTConfig configures owner session tokens.
type JWTConfig struct {
	// Secret signs tokens with HMAC-SHA256. Must be at least 32 characters.
	Secret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// SessionClaims are the claims carried by owner session tokens.
type SessionClaims struct {
	OwnerID string `json:"oid"`
	Email   string `json:"email"`
	// TokenType distinguishes access from refresh tokens so one can never
	// be presented in place of the other.
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is the access/refresh pair handed out on login.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// JWTService issues and validates owner session tokens.
type JWTService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// NewJWTService creates a JWTService from the given configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(cfg.Secret))
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 720 * time.Hour
	}
	return &JWTService{
		secret:          []byte(cfg.Secret),
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
		now:             time.Now,
	}, nil
}

// GenerateTokenPair issues a fresh access/refresh pair for the owner.
func (s *JWTService) GenerateTokenPair(owner *models.Owner) (*TokenPair, error) {
	now := s.now().UTC()
	accessExpiry := now.Add(s.accessTokenTTL)

	access, err := s.sign(owner, "access", now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := s.sign(owner, "refresh", now, now.Add(s.refreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
		ExpiresAt:    accessExpiry,
	}, nil
}

func (s *JWTService) sign(owner *models.Owner, tokenType string, now, expiry time.Time) (string, error) {
	claims := SessionClaims{
		OwnerID:   owner.ID,
		Email:     owner.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateAccessToken parses and validates an access token.
func (s *JWTService) ValidateAccessToken(token string) (*SessionClaims, error) {
	return s.validate(token, "access")
}

// ValidateRefreshToken parses and validates a refresh token.
func (s *JWTService) ValidateRefreshToken(token string) (*SessionClaims, error) {
	return s.validate(token, "refresh")
}

func (s *JWTService) validate(token, wantType string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
