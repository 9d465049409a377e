// Package actions derives corrective actions from non-compliant and
// partial compliance scores. Action ids are a pure function of the
// element id so reruns update instead of duplicating; actions are never
// auto-closed when an element later turns compliant, a human confirms
// closure.
package actions

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

const idPrefix = "CA-"

// ActionID derives the deterministic idempotency key for an element's
// corrective action.
func ActionID(meID string) string {
	return idPrefix + meID
}

type Generator struct {
	db *sqlite.Client
}

func NewGenerator(db *sqlite.Client) *Generator {
	return &Generator{db: db}
}

// Build constructs the corrective action for one score without touching
// storage. Returns nil for verdicts that need no action.
func Build(projectID string, score models.ComplianceScore, departments []string, dueDate time.Time) *models.CorrectiveAction {
	if score.AIScore != models.VerdictNonCompliant && score.AIScore != models.VerdictPartial {
		return nil
	}

	gapDescription := strings.Join(score.Gaps, "; ")
	if gapDescription == "" {
		gapDescription = "Gap in " + score.MECode
	}

	recommendedAction := strings.Join(score.Recommendations, "; ")
	if recommendedAction == "" {
		recommendedAction = "Address gaps for " + score.MECode
	}

	priority := models.PriorityMedium
	if score.AIScore == models.VerdictNonCompliant {
		priority = models.PriorityHigh
	}

	department := ""
	if len(departments) > 0 {
		department = departments[0]
	}

	now := time.Now()
	return &models.CorrectiveAction{
		ID:                 ActionID(score.MEID),
		ProjectID:          projectID,
		MEID:               score.MEID,
		MECode:             score.MECode,
		GapDescription:     gapDescription,
		RecommendedAction:  recommendedAction,
		AssignedDepartment: department,
		DueDate:            dueDate,
		Priority:           priority,
		Status:             models.ActionOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Generate upserts one corrective action per non-compliant or partial
// score. Existing rows only have their gap and recommendation text
// refreshed; status, priority and assignment survive reruns untouched.
func (g *Generator) Generate(projectID string, scores []models.ComplianceScore, dueDate time.Time) ([]models.CorrectiveAction, error) {
	var generated []models.CorrectiveAction

	for _, score := range scores {
		var departments []string
		if element, err := g.db.GetElement(score.MEID); err == nil {
			departments = element.Departments
		}

		action := Build(projectID, score, departments, dueDate)
		if action == nil {
			continue
		}

		if err := g.db.UpsertCorrectiveAction(action); err != nil {
			return generated, err
		}
		metrics.ActionsUpserted.WithLabelValues(action.Priority).Inc()
		generated = append(generated, *action)
	}

	logger.Info("Corrective actions generated",
		zap.String("project_id", projectID),
		zap.Int("count", len(generated)),
	)

	return generated, nil
}
