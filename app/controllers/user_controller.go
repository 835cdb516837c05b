package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/uproot-labs/uproot/app/repository"
)

type profileUpdateRequest struct {
	Name            *string `json:"name"`
	Industry        *string `json:"industry"`
	ExperienceYears *int    `json:"experience_years"`
	Skills          *string `json:"skills"`
	Bio             *string `json:"bio"`
	PhoneNumber     *string `json:"phone_number"`
}

// HandleGetProfile returns the logged-in user's profile.
func HandleGetProfile(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	user, err := repository.GetGlobalRepositories().User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	}

	return c.JSON(fiber.Map{"user": user})
}

// HandleUpdateProfile applies partial profile updates. Only fields present in
// the payload are changed.
func HandleUpdateProfile(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req profileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Industry != nil {
		user.Industry = strings.TrimSpace(*req.Industry)
	}
	if req.ExperienceYears != nil {
		user.ExperienceYears = *req.ExperienceYears
	}
	if req.Skills != nil {
		user.Skills = strings.TrimSpace(*req.Skills)
	}
	if req.Bio != nil {
		user.Bio = strings.TrimSpace(*req.Bio)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}

	if err := user.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": validationMessage(err)})
	}

	if err := repos.User.Update(user); err != nil {
		log.Errorf("[User] profile update failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "update_failed"})
	}

	return c.JSON(fiber.Map{"user": user})
}
