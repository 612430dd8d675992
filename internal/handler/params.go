package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// uuidParams reads the named path params. Ids are uuid columns in postgres,
// so anything else is reported in the returned map and never reaches the
// store.
func uuidParams(c *fiber.Ctx, names ...string) ([]string, fiber.Map) {
	values := make([]string, len(names))
	var invalid fiber.Map
	for i, name := range names {
		v := c.Params(name)
		if _, err := uuid.Parse(v); err != nil || len(v) != 36 {
			if invalid == nil {
				invalid = fiber.Map{}
			}
			invalid[name] = "uuid"
			continue
		}
		values[i] = v
	}
	return values, invalid
}
