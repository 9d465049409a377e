package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/scoring"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type ScoreHandler struct {
	scorer *scoring.Scorer
}

func NewScoreHandler(scorer *scoring.Scorer) *ScoreHandler {
	return &ScoreHandler{scorer: scorer}
}

// Override records a reviewer verdict on a persisted score. The AI output
// is never rewritten; overrides are an annotation layer.
func (h *ScoreHandler) Override(c *fiber.Ctx) error {
	var req struct {
		ReviewerScore   string `json:"reviewer_score"`
		ReviewerComment string `json:"reviewer_comment"`
		Actor           string `json:"actor"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Actor == "" {
		req.Actor = "reviewer"
	}

	err := h.scorer.Override(c.Params("id"), models.Verdict(req.ReviewerScore), req.ReviewerComment, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, sqlite.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Score not found",
			})
		case errors.Is(err, scoring.ErrAssessmentNotCompleted):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Overrides are only allowed after the assessment has completed",
			})
		default:
			if !models.Verdict(req.ReviewerScore).Valid() {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "reviewer_score must be one of: compliant, partial, non-compliant, not-applicable",
				})
			}
			logger.Error("Failed to apply override", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to apply override",
			})
		}
	}

	return c.JSON(fiber.Map{
		"score_id":       c.Params("id"),
		"reviewer_score": req.ReviewerScore,
	})
}
