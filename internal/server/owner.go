package server

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

const ownerKey = "owner_id"

// requireOwner rejects requests without an owner id and stores it for handlers.
func (s *Server) requireOwner(c fiber.Ctx) error {
	owner := strings.TrimSpace(c.Get(s.cfg.OwnerHeader))
	if owner == "" {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	c.Locals(ownerKey, owner)
	return c.Next()
}

func ownerID(c fiber.Ctx) string {
	owner, _ := c.Locals(ownerKey).(string)
	return owner
}
