package server

import (
	"github.com/gofiber/fiber/v3"
)

// jsonData writes data and meta in the standard envelope.
func jsonData(c fiber.Ctx, status int, data, meta any) error {
	body := fiber.Map{"data": data}
	if meta != nil {
		body["meta"] = meta
	}
	return c.Status(status).JSON(body)
}

// jsonError writes an error envelope. Details may be empty.
func jsonError(c fiber.Ctx, status int, code string, details ...string) error {
	errs := fiber.Map{"code": code}
	if len(details) > 0 {
		errs["details"] = details
	}
	return c.Status(status).JSON(fiber.Map{"errors": errs})
}
