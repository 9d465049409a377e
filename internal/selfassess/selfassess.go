// Package selfassess feeds human checklist responses through the exact
// pipeline the AI path uses. Responses are translated into judgments, so
// the two entry points cannot diverge in scoring semantics.
package selfassess

import (
	"context"
	"fmt"

	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
)

// Translator implements assessment.BatchJudge over stored activity
// responses instead of an AI judgment source.
type Translator struct {
	byElement map[string]models.ActivityResponse
}

func NewTranslator(responses []models.ActivityResponse) *Translator {
	byElement := make(map[string]models.ActivityResponse, len(responses))
	for _, r := range responses {
		byElement[r.MEID] = r
	}
	return &Translator{byElement: byElement}
}

// JudgeBatch translates each element's response in order. Checklist
// answers map to full-confidence verdicts; numeric data-collection values
// are carried as context only, never auto-interpreted as a verdict;
// unanswered elements come back not-applicable so they stay out of the
// aggregation math.
func (t *Translator) JudgeBatch(ctx context.Context, elements []models.MeasurableElement, _ []models.Evidence, onProgress judge.ProgressFunc) ([]judge.Judgment, error) {
	total := len(elements)
	judgments := make([]judge.Judgment, 0, total)

	for i, element := range elements {
		select {
		case <-ctx.Done():
			return judgments, ctx.Err()
		default:
		}

		judgments = append(judgments, t.translate(element))

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return judgments, nil
}

func (t *Translator) translate(element models.MeasurableElement) judge.Judgment {
	response, ok := t.byElement[element.ID]
	if !ok {
		return judge.Judgment{
			AIScore:       models.VerdictNotApplicable,
			Justification: "No self-assessment response recorded",
		}
	}

	switch response.ResponseType {
	case models.ResponseMet:
		return judge.Judgment{
			AIScore:       models.VerdictCompliant,
			AIConfidence:  100,
			MatchScore:    100,
			Justification: justification("Requirement reported as met", response.Comment),
		}
	case models.ResponseNotMet:
		return judge.Judgment{
			AIScore:       models.VerdictNonCompliant,
			AIConfidence:  100,
			Justification: justification("Requirement reported as not met", response.Comment),
			Gaps:          []string{"Self-assessment reported " + element.Code + " as not met"},
		}
	case models.ResponsePartiallyMet:
		return judge.Judgment{
			AIScore:       models.VerdictPartial,
			AIConfidence:  100,
			MatchScore:    50,
			Justification: justification("Requirement reported as partially met", response.Comment),
			Gaps:          []string{"Self-assessment reported " + element.Code + " as partially met"},
		}
	case models.ResponseNumeric:
		return judge.Judgment{
			AIScore:       models.VerdictNotApplicable,
			Justification: justification(fmt.Sprintf("Reported value: %s", response.Value), response.Comment),
		}
	default:
		return judge.Judgment{
			AIScore:       models.VerdictNonCompliant,
			Justification: "Unrecognized self-assessment response type: " + response.ResponseType,
			Gaps:          []string{judge.ParseFailureGap},
		}
	}
}

func justification(base, comment string) string {
	if comment == "" {
		return base
	}
	return base + ": " + comment
}

// Service drives a self-assessment run end to end.
type Service struct {
	db     *sqlite.Client
	runner *assessment.Runner
}

func NewService(db *sqlite.Client, runner *assessment.Runner) *Service {
	return &Service{db: db, runner: runner}
}

// Run starts an assessment over the scope and scores it from the
// project's recorded responses.
func (s *Service) Run(ctx context.Context, projectID string, scope assessment.Scope) (*models.Assessment, error) {
	responses, err := s.db.ListResponsesByProject(projectID)
	if err != nil {
		return nil, err
	}

	run, elements, err := s.runner.Start(projectID, scope)
	if err != nil {
		return nil, err
	}

	translator := NewTranslator(responses)
	if err := s.runner.RunWith(ctx, run, elements, translator); err != nil {
		return run, err
	}

	return s.db.GetAssessment(run.ID)
}
