// Package assessment orchestrates one scoring run over an element scope:
// judge, score, aggregate, generate corrective actions, and track
// progress through the processing/completed/failed lifecycle.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/actions"
	"github.com/medaccred/backend/internal/aggregate"
	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

var (
	ErrNoElementsInScope = errors.New("no measurable elements found for requested scope")
	ErrAssessmentActive  = errors.New("an assessment is already running for this project")
)

// Scope selects the elements of one run: chapter, standard, sub-standard
// or all.
type Scope struct {
	Type string
	ID   string
}

// Notifier receives progress events; the websocket hub implements it.
type Notifier interface {
	Publish(event ProgressEvent)
}

// GraphLinker mirrors evidence-to-element support links into the
// knowledge graph; the neo4j client implements it.
type GraphLinker interface {
	LinkEvidence(ctx context.Context, meID string, evidenceIDs []string) error
}

type Runner struct {
	db         *sqlite.Client
	adapter    BatchJudge
	scorer     Scorer
	aggregator *aggregate.Aggregator
	generator  *actions.Generator
	notifier   Notifier
	linker     GraphLinker
	dueDays    int
}

// Scorer is satisfied by scoring.Scorer; narrowed to an interface so the
// runner tests can observe scoring order.
type Scorer interface {
	Score(assessmentID string, element models.MeasurableElement, j judge.Judgment) (*models.ComplianceScore, error)
}

// BatchJudge is satisfied by judge.Adapter and by the self-assessment
// response translator, which guarantees both entry points share the same
// scoring semantics downstream.
type BatchJudge interface {
	JudgeBatch(ctx context.Context, elements []models.MeasurableElement, evidence []models.Evidence, onProgress judge.ProgressFunc) ([]judge.Judgment, error)
}

func NewRunner(db *sqlite.Client, adapter BatchJudge, scorer Scorer, aggregator *aggregate.Aggregator, generator *actions.Generator, notifier Notifier, dueDays int) *Runner {
	if dueDays <= 0 {
		dueDays = 30
	}
	return &Runner{
		db:         db,
		adapter:    adapter,
		scorer:     scorer,
		aggregator: aggregator,
		generator:  generator,
		notifier:   notifier,
		dueDays:    dueDays,
	}
}

// SetLinker enables knowledge-graph mirroring of evidence support links.
// Linking is best effort and never fails a run.
func (r *Runner) SetLinker(linker GraphLinker) {
	r.linker = linker
}

// Start validates the scope and creates the assessment row in processing
// state. A validation failure creates nothing. The caller decides whether
// to Run synchronously or in the background.
func (r *Runner) Start(projectID string, scope Scope) (*models.Assessment, []models.MeasurableElement, error) {
	project, err := r.db.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}

	active, err := r.db.HasActiveAssessment(projectID)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, ErrAssessmentActive
	}

	elements, err := r.db.GetElementsByScope(scope.Type, scope.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(elements) == 0 {
		return nil, nil, ErrNoElementsInScope
	}

	assessment := &models.Assessment{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ScopeType: scope.Type,
		ScopeID:   scope.ID,
		Status:    models.AssessmentProcessing,
		TotalMEs:  len(elements),
		StartedAt: time.Now(),
	}
	if err := r.db.InsertAssessment(assessment); err != nil {
		return nil, nil, err
	}

	if project.Status == models.ProjectDraft {
		if err := r.db.UpdateProjectStatus(projectID, models.ProjectInProgress); err != nil {
			logger.Warn("Failed to advance project status", zap.Error(err))
		}
	}

	logger.Info("Assessment started",
		zap.String("assessment_id", assessment.ID),
		zap.String("project_id", projectID),
		zap.String("scope_type", scope.Type),
		zap.Int("total_mes", assessment.TotalMEs),
	)

	return assessment, elements, nil
}

// Run executes the full pipeline for a started assessment. One sequential
// pass: every judgment call and persistence write happens in element
// order, and processedMEs only ever advances. On a judgment-source
// failure the run is marked failed; judgments already produced are still
// scored and kept for inspection.
func (r *Runner) Run(ctx context.Context, assessment *models.Assessment, elements []models.MeasurableElement) error {
	return r.RunWith(ctx, assessment, elements, r.adapter)
}

// RunWith executes the pipeline with an explicit judgment source; the
// self-assessment path uses this to feed human responses through the
// same scorer, aggregator and action generator.
func (r *Runner) RunWith(ctx context.Context, assessment *models.Assessment, elements []models.MeasurableElement, adapter BatchJudge) error {
	metrics.ActiveAssessments.Inc()
	defer metrics.ActiveAssessments.Dec()
	runStart := time.Now()

	evidence, err := r.db.ListEvidenceByProject(assessment.ProjectID)
	if err != nil {
		return r.fail(assessment, err)
	}

	total := len(elements)
	onProgress := func(processed, _ int) {
		if err := r.db.UpdateAssessmentProgress(assessment.ID, processed); err != nil {
			logger.Warn("Failed to persist progress", zap.Error(err))
		}
		if r.notifier != nil {
			r.notifier.Publish(ProgressEvent{
				AssessmentID: assessment.ID,
				Processed:    processed,
				Total:        total,
				Progress:     int(float64(processed)/float64(total)*100 + 0.5),
				Status:       models.AssessmentProcessing,
			})
		}
	}

	judgments, judgeErr := adapter.JudgeBatch(ctx, elements, evidence, onProgress)

	for i, judgment := range judgments {
		if _, err := r.scorer.Score(assessment.ID, elements[i], judgment); err != nil {
			return r.fail(assessment, err)
		}
		if r.linker != nil && len(judgment.EvidenceMatches) > 0 {
			ids := make([]string, 0, len(judgment.EvidenceMatches))
			for _, match := range judgment.EvidenceMatches {
				ids = append(ids, match.EvidenceID)
			}
			if err := r.linker.LinkEvidence(ctx, elements[i].ID, ids); err != nil {
				logger.Warn("Failed to link evidence in knowledge graph",
					zap.String("me_id", elements[i].ID), zap.Error(err))
			}
		}
	}

	if judgeErr != nil {
		return r.fail(assessment, fmt.Errorf("judgment batch aborted: %w", judgeErr))
	}

	scores, err := r.db.ListScoresByAssessment(assessment.ID)
	if err != nil {
		return r.fail(assessment, err)
	}

	if err := r.aggregator.Rollup(assessment.ProjectID, scores); err != nil {
		return r.fail(assessment, err)
	}

	dueDate := time.Now().AddDate(0, 0, r.dueDays)
	if _, err := r.generator.Generate(assessment.ProjectID, scores, dueDate); err != nil {
		return r.fail(assessment, err)
	}

	entry := &models.ActivityLog{
		ProjectID: assessment.ProjectID,
		Type:      "scan",
		Detail:    fmt.Sprintf("assessment %s scored %d elements", assessment.ID, len(scores)),
		Actor:     "system",
		CreatedAt: time.Now(),
	}
	if err := r.db.AppendActivity(entry); err != nil {
		return r.fail(assessment, err)
	}

	if err := r.db.CompleteAssessment(assessment.ID, time.Now()); err != nil {
		return r.fail(assessment, err)
	}

	metrics.AssessmentsTotal.WithLabelValues(models.AssessmentCompleted).Inc()
	metrics.AssessmentDuration.WithLabelValues(assessment.ScopeType).Observe(time.Since(runStart).Seconds())

	if r.notifier != nil {
		r.notifier.Publish(ProgressEvent{
			AssessmentID: assessment.ID,
			Processed:    total,
			Total:        total,
			Progress:     100,
			Status:       models.AssessmentCompleted,
		})
	}

	logger.Info("Assessment completed",
		zap.String("assessment_id", assessment.ID),
		zap.Int("scored", len(scores)),
	)

	return nil
}

func (r *Runner) fail(assessment *models.Assessment, cause error) error {
	metrics.AssessmentsTotal.WithLabelValues(models.AssessmentFailed).Inc()
	if err := r.db.FailAssessment(assessment.ID); err != nil {
		logger.Error("Failed to mark assessment failed", zap.Error(err))
	}
	if r.notifier != nil {
		current, err := r.db.GetAssessment(assessment.ID)
		processed := assessment.ProcessedMEs
		if err == nil {
			processed = current.ProcessedMEs
		}
		r.notifier.Publish(ProgressEvent{
			AssessmentID: assessment.ID,
			Processed:    processed,
			Total:        assessment.TotalMEs,
			Status:       models.AssessmentFailed,
		})
	}
	logger.Error("Assessment failed",
		zap.String("assessment_id", assessment.ID),
		zap.Error(cause),
	)
	return cause
}
