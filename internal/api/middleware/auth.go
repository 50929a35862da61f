package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studyhall/studyhall-backend/internal/auth"
)

// UserContext carries the authenticated user's identity through the request.
type UserContext struct {
	UserID string
	Email  string
	Role   string
}

// AuthRequired creates a middleware that requires a valid bearer token.
func AuthRequired(jwtService *auth.JWTService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get("Authorization"))

		// Web clients may carry the token in a cookie instead.
		if token == "" {
			token = c.Cookies("access_token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("user_email", claims.Email)
		c.Locals("user_role", claims.Role)
		return c.Next()
	}
}

// AdminRequired restricts a route to tokens carrying the admin role. Must
// run after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if role != auth.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}

// GetUserContext retrieves the authenticated user from the fiber context.
func GetUserContext(c *fiber.Ctx) (*UserContext, bool) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return nil, false
	}
	email, _ := c.Locals("user_email").(string)
	role, _ := c.Locals("user_role").(string)
	return &UserContext{UserID: userID, Email: email, Role: role}, true
}
