package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const tenantLocal = "tenant_id"

// TenantAuth returns a middleware that parses the Bearer token and stores
// the tenant_id claim for handlers. The surrounding authorization layer
// issues the tokens; this core only consumes the tenant identity.
func TenantAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, ok := bearerToken(c.Get("Authorization"))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth token"})
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid claims"})
		}
		tenantID, ok := claims["tenant_id"].(string)
		if !ok || tenantID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "tenant_id missing"})
		}

		c.Locals(tenantLocal, tenantID)
		return c.Next()
	}
}

// TenantID retrieves the authenticated tenant for a request.
func TenantID(c *fiber.Ctx) string {
	if id, ok := c.Locals(tenantLocal).(string); ok {
		return id
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}
