package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/gin-gonic/gin"
)

const coordinatorSubject = "coordinator"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid coordinator token")
)

// MintToken signs a coordinator token valid for ttl.
func MintToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("coordinator secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": coordinatorSubject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken checks signature, expiry and subject.
func VerifyToken(secret, raw string) error {
	if raw == "" {
		return ErrMissingToken
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["sub"] != coordinatorSubject {
		return ErrInvalidToken
	}
	return nil
}

// RequireCoordinator guards coordinator routes. An empty secret lets every
// request through.
func RequireCoordinator(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if err := VerifyToken(secret, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
