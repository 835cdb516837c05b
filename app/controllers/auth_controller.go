package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/mail"
	"github.com/uproot-labs/uproot/internal/pkg/ratelimit"
	"github.com/uproot-labs/uproot/internal/pkg/session"
	"github.com/uproot-labs/uproot/internal/pkg/usercontext"
)

const (
	signupRateLimit        = 5
	passwordResetRateLimit = 3
	resetSubmitRateLimit   = 5
	authRateWindow         = 15 * time.Minute
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup creates a new user account and logs it in.
func HandleSignup(c *fiber.Ctx) error {
	if !ratelimit.Allow(c.Context(), ratelimit.Key("signup", GetClientIP(c)), signupRateLimit, authRateWindow) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests"})
	}

	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := models.ValidatePasswordStrength(req.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "weak_password", "message": err.Error()})
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": validationMessage(err)})
	}

	repos := repository.GetGlobalRepositories()
	if _, err := repos.User.GetByEmail(req.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "signup_failed"})
	}

	if err := repos.User.Create(user); err != nil {
		log.Errorf("[Auth] signup failed for %s: %v", req.Email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "signup_failed"})
	}

	if err := establishSession(c, user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// HandleLogin authenticates credentials and establishes a session.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account_disabled"})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repos.User.Update(user); err != nil {
		log.Warnf("[Auth] failed to record last login for user %d: %v", user.ID, err)
	}

	if err := establishSession(c, user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_failed"})
	}

	return c.JSON(fiber.Map{"user": user})
}

// HandleLogout destroys the session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_failed"})
	}
	if err := sess.Destroy(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandlePasswordResetRequest mails a reset token. The response never reveals
// whether the email exists.
func HandlePasswordResetRequest(c *fiber.Ctx) error {
	if !ratelimit.Allow(c.Context(), ratelimit.Key("password-reset", GetClientIP(c)), passwordResetRateLimit, authRateWindow) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests"})
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email_required"})
	}

	accepted := fiber.Map{"ok": true, "message": "if the account exists, a reset email has been sent"}

	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByEmail(req.Email)
	if err != nil {
		return c.JSON(accepted)
	}

	if err := user.GenerateResetToken(); err != nil {
		log.Errorf("[Auth] reset token generation failed for user %d: %v", user.ID, err)
		return c.JSON(accepted)
	}
	if err := repos.User.Update(user); err != nil {
		log.Errorf("[Auth] reset token persist failed for user %d: %v", user.ID, err)
		return c.JSON(accepted)
	}

	go func(email, token string) {
		if err := mail.SendPasswordResetMail(email, token); err != nil {
			log.Errorf("[Auth] reset mail to %s failed: %v", email, err)
		}
	}(user.Email, user.ResetToken)

	return c.JSON(accepted)
}

// HandlePasswordReset sets a new password from a valid reset token.
func HandlePasswordReset(c *fiber.Ctx) error {
	if !ratelimit.Allow(c.Context(), ratelimit.Key("reset-password", GetClientIP(c)), resetSubmitRateLimit, authRateWindow) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests"})
	}

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token_required"})
	}
	if err := models.ValidatePasswordStrength(req.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "weak_password", "message": err.Error()})
	}

	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByResetToken(req.Token)
	if err != nil || !user.IsResetTokenValid(req.Token) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_token"})
	}

	if err := user.SetPassword(req.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset_failed"})
	}
	user.ResetToken = ""
	user.ResetSentAt = nil
	if err := repos.User.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset_failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

func establishSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	return sess.Save()
}
