package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type ProjectHandler struct {
	db *sqlite.Client
}

func NewProjectHandler(db *sqlite.Client) *ProjectHandler {
	return &ProjectHandler{db: db}
}

func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req struct {
		FacilityID       string   `json:"facility_id"`
		StandardVersion  string   `json:"standard_version"`
		Scope            string   `json:"scope"`
		SelectedChapters []string `json:"selected_chapters"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.FacilityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "facility_id is required",
		})
	}

	project := &models.SurveyProject{
		ID:               uuid.New().String(),
		FacilityID:       req.FacilityID,
		StandardVersion:  req.StandardVersion,
		Scope:            req.Scope,
		SelectedChapters: req.SelectedChapters,
		Status:           models.ProjectDraft,
		CreatedAt:        time.Now(),
	}

	if err := h.db.InsertProject(project); err != nil {
		logger.Error("Failed to create project", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(projectResponse(project))
}

func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.db.GetProject(c.Params("id"))
	if err != nil {
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

	return c.JSON(projectResponse(project))
}

func (h *ProjectHandler) ChapterScores(c *fiber.Ctx) error {
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

	scores, err := h.db.ListChapterScores(projectID)
	if err != nil {
		logger.Error("Failed to list chapter scores", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list chapter scores",
		})
	}

	out := make([]fiber.Map, 0, len(scores))
	for _, cs := range scores {
		out = append(out, fiber.Map{
			"chapter_id":     cs.ChapterID,
			"chapter_name":   cs.ChapterName,
			"score":          cs.Score,
			"total_mes":      cs.TotalMEs,
			"compliant":      cs.Compliant,
			"partial":        cs.Partial,
			"non_compliant":  cs.NonCompliant,
			"not_applicable": cs.NotApplicable,
			"updated_at":     cs.UpdatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"project_id":     projectID,
		"chapter_scores": out,
	})
}

func (h *ProjectHandler) Activity(c *fiber.Ctx) error {
	projectID := c.Params("id")

	limit := c.QueryInt("limit", 50)

	entries, err := h.db.ListActivityByProject(projectID, limit)
	if err != nil {
		logger.Error("Failed to list activity", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list activity",
		})
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"id":         e.ID,
			"type":       e.Type,
			"detail":     e.Detail,
			"actor":      e.Actor,
			"created_at": e.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"project_id": projectID,
		"activity":   out,
	})
}

func projectResponse(p *models.SurveyProject) fiber.Map {
	return fiber.Map{
		"id":                p.ID,
		"facility_id":       p.FacilityID,
		"standard_version":  p.StandardVersion,
		"scope":             p.Scope,
		"selected_chapters": p.SelectedChapters,
		"status":            p.Status,
		"overall_score":     p.OverallScore,
		"created_at":        p.CreatedAt,
	}
}
