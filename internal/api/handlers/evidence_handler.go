package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/ingestion"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type EvidenceHandler struct {
	db        *sqlite.Client
	processor *ingestion.Processor
}

func NewEvidenceHandler(db *sqlite.Client, processor *ingestion.Processor) *EvidenceHandler {
	return &EvidenceHandler{db: db, processor: processor}
}

// Register ingests one evidence document: extraction, best-effort
// summarization and indexing, then the pending to classified advance.
func (h *EvidenceHandler) Register(c *fiber.Ctx) error {
	var req struct {
		ProjectID    string `json:"project_id"`
		DocumentName string `json:"document_name"`
		Type         string `json:"type"`
		Department   string `json:"department"`
		Content      string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ProjectID == "" || req.DocumentName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_id and document_name are required",
		})
	}

	if _, err := h.db.GetProject(req.ProjectID); err != nil {
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

	evidence, err := h.processor.Register(c.Context(), req.ProjectID, req.DocumentName, req.Type, req.Department, []byte(req.Content))
	if err != nil {
		logger.Error("Failed to register evidence", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to register evidence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":            evidence.ID,
		"project_id":    evidence.ProjectID,
		"document_name": evidence.DocumentName,
		"type":          evidence.Type,
		"department":    evidence.Department,
		"summary":       evidence.Summary,
		"status":        evidence.Status,
		"uploaded_at":   evidence.UploadedAt,
	})
}

func (h *EvidenceHandler) List(c *fiber.Ctx) error {
	projectID := c.Query("project_id")
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_id is required",
		})
	}

	evidence, err := h.db.ListEvidenceByProject(projectID)
	if err != nil {
		logger.Error("Failed to list evidence", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list evidence",
		})
	}

	out := make([]fiber.Map, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, fiber.Map{
			"id":            e.ID,
			"document_name": e.DocumentName,
			"type":          e.Type,
			"department":    e.Department,
			"summary":       e.Summary,
			"status":        e.Status,
			"uploaded_at":   e.UploadedAt,
		})
	}

	return c.JSON(fiber.Map{
		"project_id": projectID,
		"evidence":   out,
	})
}
