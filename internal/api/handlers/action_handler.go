package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type ActionHandler struct {
	db *sqlite.Client
}

func NewActionHandler(db *sqlite.Client) *ActionHandler {
	return &ActionHandler{db: db}
}

func (h *ActionHandler) ListByProject(c *fiber.Ctx) error {
	actions, err := h.db.ListActionsByProject(c.Params("id"))
	if err != nil {
		logger.Error("Failed to list corrective actions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list corrective actions",
		})
	}

	out := make([]fiber.Map, 0, len(actions))
	for _, a := range actions {
		out = append(out, fiber.Map{
			"id":                  a.ID,
			"me_id":               a.MEID,
			"me_code":             a.MECode,
			"gap_description":     a.GapDescription,
			"recommended_action":  a.RecommendedAction,
			"assigned_department": a.AssignedDepartment,
			"assigned_to":         a.AssignedTo,
			"due_date":            a.DueDate,
			"priority":            a.Priority,
			"status":              a.Status,
			"created_at":          a.CreatedAt,
			"updated_at":          a.UpdatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"project_id": c.Params("id"),
		"actions":    out,
	})
}

// Update advances an action's status or reassigns it. Status changes are
// monotonic unless reopen is set; reruns of the generator never touch
// these fields.
func (h *ActionHandler) Update(c *fiber.Ctx) error {
	var req struct {
		Status     string `json:"status"`
		Reopen     bool   `json:"reopen"`
		Department string `json:"assigned_department"`
		AssignedTo string `json:"assigned_to"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	actionID := c.Params("id")

	if req.Status != "" {
		err := h.db.UpdateActionStatus(actionID, req.Status, req.Reopen)
		if err != nil {
			switch {
			case errors.Is(err, sqlite.ErrNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Corrective action not found",
				})
			case errors.Is(err, sqlite.ErrStatusRegression):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Status cannot move backwards without reopen",
				})
			default:
				logger.Error("Failed to update action status", zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update action status",
				})
			}
		}
	}

	if req.Department != "" || req.AssignedTo != "" {
		if err := h.db.ReassignAction(actionID, req.Department, req.AssignedTo); err != nil {
			if errors.Is(err, sqlite.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Corrective action not found",
				})
			}
			logger.Error("Failed to reassign action", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to reassign action",
			})
		}
	}

	action, err := h.db.GetCorrectiveAction(actionID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Corrective action not found",
			})
		}
		logger.Error("Failed to load action", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load action",
		})
	}

	return c.JSON(fiber.Map{
		"id":                  action.ID,
		"status":              action.Status,
		"assigned_department": action.AssignedDepartment,
		"assigned_to":         action.AssignedTo,
		"updated_at":          action.UpdatedAt,
	})
}
