package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/ai"
)

const maxResumeBytes = 200 * 1024

// HandleGetResume returns the user's resume document.
func HandleGetResume(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	resume, err := repository.GetGlobalRepositories().Resume.GetByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resume_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resume_load_failed"})
	}

	return c.JSON(fiber.Map{"resume": resume})
}

// HandlePutResume creates or replaces the user's resume content.
func HandlePutResume(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content_required"})
	}
	if len(req.Content) > maxResumeBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content_too_large"})
	}

	resume := &models.Resume{UserID: userCtx.UserID, Content: req.Content}
	if err := repository.GetGlobalRepositories().Resume.Upsert(resume); err != nil {
		log.Errorf("[Resume] save failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resume_save_failed"})
	}

	return c.JSON(fiber.Map{"resume": resume})
}

// HandleImproveResume asks the LLM for an improved resume plus ATS feedback
// and stores the result.
func HandleImproveResume(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	repos := repository.GetGlobalRepositories()
	resume, err := repos.Resume.GetByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resume_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resume_load_failed"})
	}

	var req struct {
		TargetRole string `json:"target_role"`
	}
	_ = c.BodyParser(&req)

	client := ai.NewClientFromEnv()
	if !client.IsConfigured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ai_not_configured"})
	}

	user, err := repos.User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	}

	prompt := buildResumePrompt(user, resume.Content, req.TargetRole)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	improved, err := client.Complete(ctx, []ai.Message{
		{Role: "system", Content: "You are an expert resume coach. Rewrite the resume in markdown, then append a line 'ATS_SCORE: <0-100>' and a line 'FEEDBACK: <one paragraph>'."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		log.Errorf("[Resume] improvement failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ai_request_failed"})
	}

	content, score, feedback := splitResumeCompletion(improved)
	resume.Content = content
	resume.ATSScore = score
	resume.Feedback = feedback
	if err := repos.Resume.Upsert(resume); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resume_save_failed"})
	}

	return c.JSON(fiber.Map{"resume": resume})
}

func buildResumePrompt(user *models.User, content, targetRole string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate: %s", user.Name)
	if user.Industry != "" {
		fmt.Fprintf(&b, ", industry: %s", user.Industry)
	}
	if user.ExperienceYears > 0 {
		fmt.Fprintf(&b, ", %d years of experience", user.ExperienceYears)
	}
	if user.Skills != "" {
		fmt.Fprintf(&b, ", skills: %s", user.Skills)
	}
	b.WriteString("\n")
	if targetRole != "" {
		fmt.Fprintf(&b, "Target role: %s\n", targetRole)
	}
	b.WriteString("\nResume:\n\n")
	b.WriteString(content)
	return b.String()
}

// splitResumeCompletion pulls the trailing ATS_SCORE / FEEDBACK lines out of
// the completion. Missing markers leave score 0 and feedback empty.
func splitResumeCompletion(completion string) (content string, score int, feedback string) {
	content = completion
	if idx := strings.LastIndex(completion, "ATS_SCORE:"); idx >= 0 {
		content = strings.TrimSpace(completion[:idx])
		rest := completion[idx+len("ATS_SCORE:"):]
		if fidx := strings.Index(rest, "FEEDBACK:"); fidx >= 0 {
			feedback = strings.TrimSpace(rest[fidx+len("FEEDBACK:"):])
			rest = rest[:fidx]
		}
		fmt.Sscanf(strings.TrimSpace(rest), "%d", &score)
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
	}
	return content, score, feedback
}
