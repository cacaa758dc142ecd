// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"softspot/internal/config"
	"softspot/internal/identity"
	"softspot/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Authenticator verifies identity-provider session tokens. Tokens are signed
// with HS256 (shared secret) or RS256 (provider public key).
type Authenticator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

// NewAuthenticator builds an Authenticator from config. A PEM public key takes
// precedence over the shared secret.
func NewAuthenticator(cfg *config.Config) (*Authenticator, error) {
	a := &Authenticator{issuer: cfg.JWTIssuer}
	if cfg.JWTPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT_PUBLIC_KEY: %w", err)
		}
		a.publicKey = key
		return a, nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("no token verification key configured")
	}
	a.secret = []byte(cfg.JWTSecret)
	return a, nil
}

// Verify parses and validates tokenString and returns the caller identity.
func (a *Authenticator) Verify(tokenString string) (identity.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if a.publicKey == nil {
				return nil, ErrInvalidToken
			}
			return a.publicKey, nil
		case *jwt.SigningMethodHMAC:
			if a.secret == nil {
				return nil, ErrInvalidToken
			}
			return a.secret, nil
		default:
			return nil, ErrInvalidToken
		}
	}, opts...)
	if err != nil || !token.Valid {
		return identity.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Identity{}, ErrInvalidToken
	}

	// Subject carries the identity provider's user id.
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return identity.Identity{}, ErrInvalidToken
	}

	id := identity.Identity{UserID: sub}
	if username, ok := claims["username"].(string); ok {
		id.Username = username
	} else if username, ok := claims["preferred_username"].(string); ok {
		id.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}

// Required enforces a valid bearer token. The resolved identity and the raw
// token are stored on the user context for the service layer.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return models.RespondWithAppError(c, models.NewAuthRequiredError())
		}

		id, err := a.Verify(tokenString)
		if err != nil {
			return models.RespondWithAppError(c, &models.AppError{
				Code:    models.CodeAuthRequired,
				Message: "Invalid or expired token",
			})
		}

		attach(c, id, tokenString)
		return c.Next()
	}
}

// Optional resolves an identity when a valid token is present and otherwise
// continues anonymously.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenString := bearerToken(c); tokenString != "" {
			if id, err := a.Verify(tokenString); err == nil {
				attach(c, id, tokenString)
			}
		}
		return c.Next()
	}
}

// WebSocketRequired validates a token passed as the "token" query parameter,
// since browsers cannot set headers on WebSocket upgrades.
func (a *Authenticator) WebSocketRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")
		if tokenString == "" {
			tokenString = bearerToken(c)
		}
		if tokenString == "" {
			return models.RespondWithAppError(c, models.NewAuthRequiredError())
		}
		id, err := a.Verify(tokenString)
		if err != nil {
			return models.RespondWithAppError(c, models.NewAuthRequiredError())
		}
		attach(c, id, tokenString)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.Split(c.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func attach(c *fiber.Ctx, id identity.Identity, token string) {
	c.Locals("userID", id.UserID)
	ctx := identity.With(c.UserContext(), id)
	ctx = identity.WithToken(ctx, token)
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	c.SetUserContext(ctx)
}
