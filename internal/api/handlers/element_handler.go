package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/kg/neo4j"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type ElementHandler struct {
	db    *sqlite.Client
	graph *neo4j.Client
}

// NewElementHandler wires element lookups. graph may be nil when the
// knowledge graph is disabled; related-element queries then return 503.
func NewElementHandler(db *sqlite.Client, graph *neo4j.Client) *ElementHandler {
	return &ElementHandler{db: db, graph: graph}
}

func (h *ElementHandler) Get(c *fiber.Ctx) error {
	element, err := h.db.GetElement(c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Element not found",
			})
		}
		logger.Error("Failed to load element", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load element",
		})
	}

	return c.JSON(fiber.Map{
		"id":                      element.ID,
		"sub_standard_id":         element.SubStandardID,
		"code":                    element.Code,
		"text":                    element.Text,
		"criticality":             element.Criticality,
		"required_evidence_types": element.RequiredEvidenceTypes,
		"keywords":                element.Keywords,
		"departments":             element.Departments,
	})
}

func (h *ElementHandler) Related(c *fiber.Ctx) error {
	if h.graph == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Knowledge graph is not enabled",
		})
	}

	meID := c.Params("id")

	if _, err := h.db.GetElement(meID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Element not found",
			})
		}
		logger.Error("Failed to load element", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load element",
		})
	}

	related, err := h.graph.RelatedElements(c.Context(), meID, c.QueryInt("limit", 10))
	if err != nil {
		logger.Error("Related elements query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query related elements",
		})
	}

	out := make([]fiber.Map, 0, len(related))
	for _, r := range related {
		out = append(out, fiber.Map{
			"id":       r.ID,
			"code":     r.Code,
			"text":     r.Text,
			"relation": r.Relation,
		})
	}

	return c.JSON(fiber.Map{
		"me_id":   meID,
		"related": out,
	})
}
