package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type AssessmentHandler struct {
	db         *sqlite.Client
	runner     *assessment.Runner
	runTimeout time.Duration
}

func NewAssessmentHandler(db *sqlite.Client, runner *assessment.Runner, runTimeout time.Duration) *AssessmentHandler {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &AssessmentHandler{
		db:         db,
		runner:     runner,
		runTimeout: runTimeout,
	}
}

// Start validates the scope, creates the run and executes it in the
// background. Callers poll or subscribe to the websocket stream for
// progress.
func (h *AssessmentHandler) Start(c *fiber.Ctx) error {
	var req struct {
		ProjectID string `json:"project_id"`
		ScopeType string `json:"scope_type"`
		ScopeID   string `json:"scope_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	scope := assessment.Scope{Type: req.ScopeType, ID: req.ScopeID}

	run, elements, err := h.runner.Start(req.ProjectID, scope)
	if err != nil {
		switch {
		case errors.Is(err, sqlite.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		case errors.Is(err, assessment.ErrNoElementsInScope):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No measurable elements found for requested scope",
			})
		case errors.Is(err, assessment.ErrAssessmentActive):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "An assessment is already running for this project",
			})
		default:
			logger.Error("Failed to start assessment", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to start assessment",
			})
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
		defer cancel()
		if err := h.runner.Run(ctx, run, elements); err != nil {
			logger.Error("Assessment run failed",
				zap.String("assessment_id", run.ID), zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":         run.ID,
		"project_id": run.ProjectID,
		"scope_type": run.ScopeType,
		"scope_id":   run.ScopeID,
		"status":     run.Status,
		"total_mes":  run.TotalMEs,
		"started_at": run.StartedAt,
	})
}

func (h *AssessmentHandler) Get(c *fiber.Ctx) error {
	run, err := h.db.GetAssessment(c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Assessment not found",
			})
		}
		logger.Error("Failed to load assessment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load assessment",
		})
	}

	return c.JSON(fiber.Map{
		"id":            run.ID,
		"project_id":    run.ProjectID,
		"scope_type":    run.ScopeType,
		"scope_id":      run.ScopeID,
		"status":        run.Status,
		"total_mes":     run.TotalMEs,
		"processed_mes": run.ProcessedMEs,
		"progress":      run.Progress(),
		"started_at":    run.StartedAt,
		"completed_at":  run.CompletedAt,
	})
}

func (h *AssessmentHandler) Scores(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	if _, err := h.db.GetAssessment(assessmentID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Assessment not found",
			})
		}
		logger.Error("Failed to load assessment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load assessment",
		})
	}

	scores, err := h.db.ListScoresByAssessment(assessmentID)
	if err != nil {
		logger.Error("Failed to list scores", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list scores",
		})
	}

	out := make([]fiber.Map, 0, len(scores))
	for _, s := range scores {
		matches, err := h.db.ListMatchesByScore(s.ID)
		if err != nil {
			logger.Warn("Failed to list evidence matches",
				zap.String("score_id", s.ID), zap.Error(err))
		}

		matchesOut := make([]fiber.Map, 0, len(matches))
		for _, m := range matches {
			matchesOut = append(matchesOut, fiber.Map{
				"evidence_id":      m.EvidenceID,
				"document_name":    m.DocumentName,
				"relevance_score":  m.RelevanceScore,
				"matched_sections": m.MatchedSections,
			})
		}

		out = append(out, fiber.Map{
			"id":               s.ID,
			"me_id":            s.MEID,
			"me_code":          s.MECode,
			"me_text":          s.METext,
			"ai_score":         s.AIScore,
			"ai_confidence":    s.AIConfidence,
			"match_score":      s.MatchScore,
			"justification":    s.Justification,
			"evidence_missing": s.EvidenceMissing,
			"gaps":             s.Gaps,
			"recommendations":  s.Recommendations,
			"reviewer_score":   s.ReviewerScore,
			"reviewer_comment": s.ReviewerComment,
			"evidence_matches": matchesOut,
			"created_at":       s.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"assessment_id": assessmentID,
		"scores":        out,
	})
}
