package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/internal/selfassess"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

var validResponseTypes = map[string]bool{
	models.ResponseMet:          true,
	models.ResponseNotMet:       true,
	models.ResponsePartiallyMet: true,
	models.ResponseNumeric:      true,
}

type ResponseHandler struct {
	db      *sqlite.Client
	service *selfassess.Service
}

func NewResponseHandler(db *sqlite.Client, service *selfassess.Service) *ResponseHandler {
	return &ResponseHandler{db: db, service: service}
}

// Record stores a batch of self-assessment answers for a project.
func (h *ResponseHandler) Record(c *fiber.Ctx) error {
	var req struct {
		Responses []struct {
			MEID         string `json:"me_id"`
			ResponseType string `json:"response_type"`
			Value        string `json:"value"`
			Comment      string `json:"comment"`
		} `json:"responses"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Responses) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one response is required",
		})
	}

	projectID := c.Params("id")
	if _, err := h.db.GetProject(projectID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		}
		logger.Error("Failed to load project", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load project",
		})
	}

	now := time.Now()
	stored := 0
	for _, r := range req.Responses {
		if r.MEID == "" || !validResponseTypes[r.ResponseType] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Each response needs me_id and a valid response_type",
			})
		}

		response := &models.ActivityResponse{
			ID:           uuid.New().String(),
			ProjectID:    projectID,
			MEID:         r.MEID,
			ResponseType: r.ResponseType,
			Value:        r.Value,
			Comment:      r.Comment,
			CreatedAt:    now,
		}
		if err := h.db.InsertActivityResponse(response); err != nil {
			logger.Error("Failed to store response", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store responses",
			})
		}
		stored++
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"project_id": projectID,
		"stored":     stored,
	})
}

// SelfAssess runs the scoring pipeline over recorded responses instead
// of the AI judgment source.
func (h *ResponseHandler) SelfAssess(c *fiber.Ctx) error {
	var req struct {
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

	run, err := h.service.Run(c.Context(), c.Params("id"), scope)
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
			logger.Error("Self-assessment failed", zap.Error(err))
			if run != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":         "Self-assessment failed",
					"assessment_id": run.ID,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Self-assessment failed",
			})
		}
	}

	return c.JSON(fiber.Map{
		"id":            run.ID,
		"project_id":    run.ProjectID,
		"status":        run.Status,
		"total_mes":     run.TotalMEs,
		"processed_mes": run.ProcessedMEs,
		"progress":      run.Progress(),
		"completed_at":  run.CompletedAt,
	})
}
