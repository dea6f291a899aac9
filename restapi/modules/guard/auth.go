package guard

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ortelius/storefront-guard/internal/crypt"
)

// AdminTokenHeader carries the static service token
const AdminTokenHeader = "X-Admin-Token"

// Roles allowed on the security API when a bearer token is used
var adminRoles = map[string]bool{"admin": true, "security": true}

// AuthConfig holds the credentials accepted by RequireAdminToken. Either may be empty.
type AuthConfig struct {
	Token     string
	JWTSecret []byte
}

// Claims represents the JWT claims issued by the identity service
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateJWT validates an HS256 token and returns its claims
func ValidateJWT(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// RequireAdminToken accepts either the static X-Admin-Token (compared in
// constant time) or a bearer JWT with an admin or security role. With neither
// configured every request is refused.
func RequireAdminToken(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if presented := c.Get(AdminTokenHeader); presented != "" && cfg.Token != "" {
			if crypt.TokensEqual(presented, cfg.Token) {
				c.Locals("username", "service")
				c.Locals("role", "admin")
				return c.Next()
			}
			return unauthorized(c)
		}

		bearer := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if bearer == "" || bearer == c.Get(fiber.HeaderAuthorization) || len(cfg.JWTSecret) == 0 {
			return unauthorized(c)
		}

		claims, err := ValidateJWT(cfg.JWTSecret, bearer)
		if err != nil {
			return unauthorized(c)
		}
		if !adminRoles[claims.Role] {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Insufficient permissions",
			})
		}

		c.Locals("username", claims.Subject)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Authentication required",
	})
}
