package selfassess

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/medaccred/backend/internal/actions"
	"github.com/medaccred/backend/internal/aggregate"
	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/scoring"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
)

func TestTranslateResponses(t *testing.T) {
	element := models.MeasurableElement{ID: "me1", Code: "IPC.1.1.1"}

	cases := []struct {
		name         string
		response     *models.ActivityResponse
		wantVerdict  models.Verdict
		wantConf     int
		wantMatch    int
		wantGapPart  string
		wantJustPart string
	}{
		{
			name:         "met",
			response:     &models.ActivityResponse{MEID: "me1", ResponseType: models.ResponseMet, Comment: "verified on ward"},
			wantVerdict:  models.VerdictCompliant,
			wantConf:     100,
			wantMatch:    100,
			wantJustPart: "verified on ward",
		},
		{
			name:        "not met",
			response:    &models.ActivityResponse{MEID: "me1", ResponseType: models.ResponseNotMet},
			wantVerdict: models.VerdictNonCompliant,
			wantConf:    100,
			wantGapPart: "IPC.1.1.1 as not met",
		},
		{
			name:        "partially met",
			response:    &models.ActivityResponse{MEID: "me1", ResponseType: models.ResponsePartiallyMet},
			wantVerdict: models.VerdictPartial,
			wantConf:    100,
			wantMatch:   50,
			wantGapPart: "IPC.1.1.1 as partially met",
		},
		{
			name:         "numeric value is context not a verdict",
			response:     &models.ActivityResponse{MEID: "me1", ResponseType: models.ResponseNumeric, Value: "87%"},
			wantVerdict:  models.VerdictNotApplicable,
			wantJustPart: "Reported value: 87%",
		},
		{
			name:         "unanswered",
			response:     nil,
			wantVerdict:  models.VerdictNotApplicable,
			wantJustPart: "No self-assessment response recorded",
		},
		{
			name:        "unknown response type",
			response:    &models.ActivityResponse{MEID: "me1", ResponseType: "maybe"},
			wantVerdict: models.VerdictNonCompliant,
			wantGapPart: judge.ParseFailureGap,
		},
	}

	for _, tc := range cases {
		var responses []models.ActivityResponse
		if tc.response != nil {
			responses = []models.ActivityResponse{*tc.response}
		}
		translator := NewTranslator(responses)

		j := translator.translate(element)
		if j.AIScore != tc.wantVerdict {
			t.Fatalf("%s: verdict = %s, want %s", tc.name, j.AIScore, tc.wantVerdict)
		}
		if j.AIConfidence != tc.wantConf {
			t.Fatalf("%s: confidence = %d, want %d", tc.name, j.AIConfidence, tc.wantConf)
		}
		if j.MatchScore != tc.wantMatch {
			t.Fatalf("%s: match score = %d, want %d", tc.name, j.MatchScore, tc.wantMatch)
		}
		if tc.wantGapPart != "" {
			found := false
			for _, g := range j.Gaps {
				if strings.Contains(g, tc.wantGapPart) {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s: gaps %v missing %q", tc.name, j.Gaps, tc.wantGapPart)
			}
		}
		if tc.wantJustPart != "" && !strings.Contains(j.Justification, tc.wantJustPart) {
			t.Fatalf("%s: justification %q missing %q", tc.name, j.Justification, tc.wantJustPart)
		}
	}
}

func TestJudgeBatchReportsOrderedProgress(t *testing.T) {
	translator := NewTranslator(nil)
	elements := []models.MeasurableElement{
		{ID: "me1", Code: "A.1"},
		{ID: "me2", Code: "A.2"},
		{ID: "me3", Code: "A.3"},
	}

	var observed []int
	judgments, err := translator.JudgeBatch(context.Background(), elements, nil, func(processed, total int) {
		if total != 3 {
			t.Fatalf("expected total=3, got %d", total)
		}
		observed = append(observed, processed)
	})
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}
	if len(judgments) != 3 {
		t.Fatalf("expected 3 judgments, got %d", len(judgments))
	}
	for i, p := range observed {
		if p != i+1 {
			t.Fatalf("progress not ordered: %v", observed)
		}
	}
}

func newServiceFixture(t *testing.T) (*sqlite.Client, *Service) {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "selfassess-test.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.InsertChapter(&models.Chapter{ID: "ch1", Code: "IPC", Name: "Infection Control", StandardVersion: "v4"}); err != nil {
		t.Fatalf("InsertChapter failed: %v", err)
	}
	if err := c.InsertStandard(&models.Standard{ID: "st1", ChapterID: "ch1", Code: "IPC.1", Name: "Program"}); err != nil {
		t.Fatalf("InsertStandard failed: %v", err)
	}
	if err := c.InsertSubStandard(&models.SubStandard{ID: "ss1", StandardID: "st1", Code: "IPC.1.1", Name: "Hand hygiene"}); err != nil {
		t.Fatalf("InsertSubStandard failed: %v", err)
	}
	for _, me := range []models.MeasurableElement{
		{ID: "me1", SubStandardID: "ss1", Code: "IPC.1.1.1", Text: "t1"},
		{ID: "me2", SubStandardID: "ss1", Code: "IPC.1.1.2", Text: "t2"},
	} {
		me := me
		if err := c.InsertElement(&me); err != nil {
			t.Fatalf("InsertElement failed: %v", err)
		}
	}
	if err := c.InsertProject(&models.SurveyProject{ID: "p1", FacilityID: "fac1", Status: models.ProjectDraft, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}

	runner := assessment.NewRunner(c, nil, scoring.NewScorer(c), aggregate.NewAggregator(c), actions.NewGenerator(c), nil, 30)
	return c, NewService(c, runner)
}

func TestServiceRunScoresFromResponses(t *testing.T) {
	db, service := newServiceFixture(t)

	now := time.Now()
	for _, r := range []models.ActivityResponse{
		{ID: "r1", ProjectID: "p1", MEID: "me1", ResponseType: models.ResponseMet, CreatedAt: now},
		{ID: "r2", ProjectID: "p1", MEID: "me2", ResponseType: models.ResponseNotMet, CreatedAt: now},
	} {
		r := r
		if err := db.InsertActivityResponse(&r); err != nil {
			t.Fatalf("InsertActivityResponse failed: %v", err)
		}
	}

	run, err := service.Run(context.Background(), "p1", assessment.Scope{Type: "all"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != models.AssessmentCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}

	scores, err := db.ListScoresByAssessment(run.ID)
	if err != nil {
		t.Fatalf("ListScoresByAssessment failed: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	byME := map[string]models.ComplianceScore{}
	for _, s := range scores {
		byME[s.MEID] = s
	}
	if byME["me1"].AIScore != models.VerdictCompliant {
		t.Fatalf("me1 verdict = %s, want compliant", byME["me1"].AIScore)
	}
	if byME["me2"].AIScore != models.VerdictNonCompliant {
		t.Fatalf("me2 verdict = %s, want non-compliant", byME["me2"].AIScore)
	}

	// c=1, n=1: round(1/2*100) = 50, and the not-met element raised an action.
	chapterScores, err := db.ListChapterScores("p1")
	if err != nil {
		t.Fatalf("ListChapterScores failed: %v", err)
	}
	if len(chapterScores) != 1 || chapterScores[0].Score != 50 {
		t.Fatalf("unexpected chapter scores: %+v", chapterScores)
	}

	openActions, err := db.ListActionsByProject("p1")
	if err != nil {
		t.Fatalf("ListActionsByProject failed: %v", err)
	}
	if len(openActions) != 1 || openActions[0].ID != "CA-me2" {
		t.Fatalf("unexpected actions: %+v", openActions)
	}
}
