// Package scoring turns normalized judgments into persisted compliance
// scores and carries the reviewer override path.
package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

var ErrAssessmentNotCompleted = errors.New("assessment is not completed")

type Scorer struct {
	db *sqlite.Client
}

func NewScorer(db *sqlite.Client) *Scorer {
	return &Scorer{db: db}
}

// Score persists one verdict for one element within an assessment. The
// element code and text are snapshotted here so later hierarchy edits do
// not rewrite history. A failed evidence-match insert is logged and
// skipped; one dangling reference must not void the verdict.
func (s *Scorer) Score(assessmentID string, element models.MeasurableElement, j judge.Judgment) (*models.ComplianceScore, error) {
	score := &models.ComplianceScore{
		ID:              uuid.New().String(),
		AssessmentID:    assessmentID,
		MEID:            element.ID,
		MECode:          element.Code,
		METext:          element.Text,
		AIScore:         j.AIScore,
		AIConfidence:    j.AIConfidence,
		MatchScore:      ComputeMatchScore(element, j),
		Justification:   j.Justification,
		EvidenceMissing: j.EvidenceMissing,
		Gaps:            j.Gaps,
		Recommendations: j.Recommendations,
		CreatedAt:       time.Now(),
	}

	if err := s.db.InsertComplianceScore(score); err != nil {
		return nil, fmt.Errorf("failed to persist score for %s: %w", element.Code, err)
	}

	for _, m := range j.EvidenceMatches {
		match := &models.EvidenceMatch{
			ScoreID:         score.ID,
			EvidenceID:      m.EvidenceID,
			DocumentName:    m.DocumentName,
			RelevanceScore:  m.RelevanceScore,
			MatchedSections: m.MatchedSections,
		}
		if err := s.db.InsertEvidenceMatch(match); err != nil {
			logger.Error("Failed to persist evidence match, skipping",
				zap.String("score_id", score.ID),
				zap.String("evidence_id", m.EvidenceID),
				zap.Error(err),
			)
		}
	}

	return score, nil
}

// Override annotates a score with a reviewer verdict after the owning
// assessment has completed. The AI verdict, match score and evidence
// linkage are never rewritten; every override is audited.
func (s *Scorer) Override(scoreID string, reviewerScore models.Verdict, comment, actor string) error {
	if !reviewerScore.Valid() {
		return fmt.Errorf("invalid reviewer score: %s", reviewerScore)
	}

	score, err := s.db.GetComplianceScore(scoreID)
	if err != nil {
		return err
	}

	assessment, err := s.db.GetAssessment(score.AssessmentID)
	if err != nil {
		return err
	}
	if assessment.Status != models.AssessmentCompleted {
		return ErrAssessmentNotCompleted
	}

	if err := s.db.SetReviewerOverride(scoreID, reviewerScore, comment); err != nil {
		return err
	}

	entry := &models.ActivityLog{
		ProjectID: assessment.ProjectID,
		Type:      "override",
		Detail:    fmt.Sprintf("%s overridden to %s", score.MECode, reviewerScore),
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if err := s.db.AppendActivity(entry); err != nil {
		return fmt.Errorf("failed to audit override: %w", err)
	}

	metrics.OverridesTotal.Inc()

	logger.Info("Reviewer override applied",
		zap.String("score_id", scoreID),
		zap.String("me_code", score.MECode),
		zap.String("reviewer_score", string(reviewerScore)),
		zap.String("actor", actor),
	)

	return nil
}
