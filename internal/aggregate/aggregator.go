// Package aggregate rolls element verdicts up into chapter scores and the
// project-level readiness number.
package aggregate

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type Aggregator struct {
	db *sqlite.Client
}

func NewAggregator(db *sqlite.Client) *Aggregator {
	return &Aggregator{db: db}
}

// VerdictCounts is the multiset of verdicts for one chapter within one
// assessment.
type VerdictCounts struct {
	Compliant     int
	Partial       int
	NonCompliant  int
	NotApplicable int
}

func (c VerdictCounts) Total() int {
	return c.Compliant + c.Partial + c.NonCompliant + c.NotApplicable
}

// ChapterScore applies the compliance-weight formula. Not-applicable
// elements are excluded from both sides of the division; a chapter with
// nothing in scope returns (0, false) and must be skipped, not zeroed.
func ChapterScore(c VerdictCounts) (int, bool) {
	scored := c.Total() - c.NotApplicable
	if scored <= 0 {
		return 0, false
	}
	weighted := float64(c.Compliant) + float64(c.Partial)*0.5
	return int(weighted/float64(scored)*100 + 0.5), true
}

// OverallScore is the unweighted mean of all persisted chapter scores,
// rounded to the nearest integer. Zero chapters means zero.
func OverallScore(chapterScores []models.ChapterScore) int {
	if len(chapterScores) == 0 {
		return 0
	}
	sum := 0
	for _, cs := range chapterScores {
		sum += cs.Score
	}
	return int(float64(sum)/float64(len(chapterScores)) + 0.5)
}

// Rollup recomputes chapter scores from the scores of one just-completed
// assessment, upserts the touched chapters, then rewrites the project
// overall score from ALL persisted chapter scores. Chapters untouched by
// this assessment keep their previous value and still count toward the
// overall mean.
func (a *Aggregator) Rollup(projectID string, scores []models.ComplianceScore) error {
	countsByChapter := make(map[string]*VerdictCounts)
	namesByChapter := make(map[string]string)

	for _, s := range scores {
		chapter, err := a.db.GetChapterForElement(s.MEID)
		if err != nil {
			return fmt.Errorf("failed to resolve chapter for %s: %w", s.MECode, err)
		}

		counts, ok := countsByChapter[chapter.ID]
		if !ok {
			counts = &VerdictCounts{}
			countsByChapter[chapter.ID] = counts
			namesByChapter[chapter.ID] = chapter.Name
		}

		switch s.AIScore {
		case models.VerdictCompliant:
			counts.Compliant++
		case models.VerdictPartial:
			counts.Partial++
		case models.VerdictNonCompliant:
			counts.NonCompliant++
		case models.VerdictNotApplicable:
			counts.NotApplicable++
		}
	}

	now := time.Now()
	for chapterID, counts := range countsByChapter {
		score, ok := ChapterScore(*counts)
		if !ok {
			logger.Debug("Skipping chapter with no scored elements", zap.String("chapter_id", chapterID))
			continue
		}

		cs := &models.ChapterScore{
			ProjectID:     projectID,
			ChapterID:     chapterID,
			ChapterName:   namesByChapter[chapterID],
			Score:         score,
			TotalMEs:      counts.Total(),
			Compliant:     counts.Compliant,
			Partial:       counts.Partial,
			NonCompliant:  counts.NonCompliant,
			NotApplicable: counts.NotApplicable,
			UpdatedAt:     now,
		}
		if err := a.db.UpsertChapterScore(cs); err != nil {
			return err
		}
		metrics.ChapterScores.Observe(float64(score))

		logger.Info("Chapter score updated",
			zap.String("project_id", projectID),
			zap.String("chapter_id", chapterID),
			zap.Int("score", score),
			zap.Int("total_mes", counts.Total()),
		)
	}

	all, err := a.db.ListChapterScores(projectID)
	if err != nil {
		return err
	}

	overall := OverallScore(all)
	if err := a.db.UpdateProjectOverallScore(projectID, overall); err != nil {
		return err
	}

	logger.Info("Project overall score updated",
		zap.String("project_id", projectID),
		zap.Int("overall_score", overall),
		zap.Int("chapters", len(all)),
	)

	return nil
}
