package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"readingsurvey/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TabTokenService issues and checks tokens that bind a client to one tab session
type TabTokenService struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTabTokenService creates a token service; ttl <= 0 issues tokens without expiry
func NewTabTokenService(secret string, ttl time.Duration) *TabTokenService {
	return &TabTokenService{
		jwtSecret: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// NewTab returns a fresh tab id and its token
func (s *TabTokenService) NewTab() (string, string, error) {
	tabID := uuid.New().String()
	token, err := s.Issue(tabID)
	if err != nil {
		return "", "", err
	}
	return tabID, token, nil
}

// Issue signs a token for tabID
func (s *TabTokenService) Issue(tabID string) (string, error) {
	now := s.now()
	claims := &model.TabClaims{
		TabID: tabID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Validate returns the tab id carried by tokenString
func (s *TabTokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.TabClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.TabClaims)
	if !ok || !token.Valid || claims.TabID == "" {
		return "", ErrInvalidToken
	}
	return claims.TabID, nil
}
