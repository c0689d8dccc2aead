package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/flomify/flomify/internal/pkg/usercontext"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the access token claims issued by the hosted auth provider.
// The subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.StandardClaims
}

// ParseToken validates an HS256 access token and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// AuthMiddleware resolves the caller from the Authorization bearer token.
// Requests without a valid token continue as anonymous.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			log.Debugf("[Auth] Rejected token on %s: %v", c.Path(), err)
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAPIAuth ensures an authenticated caller and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
