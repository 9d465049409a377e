package actions

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
)

func TestActionIDDeterministic(t *testing.T) {
	if ActionID("me-42") != "CA-me-42" {
		t.Fatalf("unexpected action id: %s", ActionID("me-42"))
	}
	if ActionID("me-42") != ActionID("me-42") {
		t.Fatal("action id must be deterministic")
	}
}

func TestBuildSkipsNonActionableVerdicts(t *testing.T) {
	due := time.Now()
	for _, v := range []models.Verdict{models.VerdictCompliant, models.VerdictNotApplicable} {
		s := models.ComplianceScore{MEID: "me1", MECode: "ACC.1.1.1", AIScore: v}
		if action := Build("p1", s, nil, due); action != nil {
			t.Fatalf("verdict %s must not generate an action", v)
		}
	}
}

func TestBuildPriorityAndFallbacks(t *testing.T) {
	due := time.Now().AddDate(0, 0, 30)

	nc := models.ComplianceScore{MEID: "me1", MECode: "ACC.1.1.1", AIScore: models.VerdictNonCompliant}
	action := Build("p1", nc, []string{"Emergency", "Quality"}, due)
	if action == nil {
		t.Fatal("non-compliant must generate an action")
	}
	if action.ID != "CA-me1" {
		t.Fatalf("unexpected id: %s", action.ID)
	}
	if action.Priority != models.PriorityHigh {
		t.Fatalf("non-compliant priority = %s, want high", action.Priority)
	}
	if action.GapDescription != "Gap in ACC.1.1.1" {
		t.Fatalf("expected gap fallback, got %q", action.GapDescription)
	}
	if action.RecommendedAction != "Address gaps for ACC.1.1.1" {
		t.Fatalf("expected recommendation fallback, got %q", action.RecommendedAction)
	}
	if action.AssignedDepartment != "Emergency" {
		t.Fatalf("expected first department, got %q", action.AssignedDepartment)
	}
	if action.Status != models.ActionOpen {
		t.Fatalf("new actions must be open, got %s", action.Status)
	}

	partial := models.ComplianceScore{
		MEID: "me2", MECode: "ACC.1.1.2", AIScore: models.VerdictPartial,
		Gaps:            []string{"No review cycle", "Missing signature"},
		Recommendations: []string{"Schedule annual review"},
	}
	action = Build("p1", partial, nil, due)
	if action.Priority != models.PriorityMedium {
		t.Fatalf("partial priority = %s, want medium", action.Priority)
	}
	if action.GapDescription != "No review cycle; Missing signature" {
		t.Fatalf("gaps not joined: %q", action.GapDescription)
	}
}

func newGeneratorFixture(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "actions-test.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.InsertChapter(&models.Chapter{ID: "ch1", Code: "ACC", Name: "Access", StandardVersion: "v4"}); err != nil {
		t.Fatalf("InsertChapter failed: %v", err)
	}
	if err := c.InsertStandard(&models.Standard{ID: "st1", ChapterID: "ch1", Code: "ACC.1", Name: "Admission"}); err != nil {
		t.Fatalf("InsertStandard failed: %v", err)
	}
	if err := c.InsertSubStandard(&models.SubStandard{ID: "ss1", StandardID: "st1", Code: "ACC.1.1", Name: "Screening"}); err != nil {
		t.Fatalf("InsertSubStandard failed: %v", err)
	}
	if err := c.InsertElement(&models.MeasurableElement{ID: "me1", SubStandardID: "ss1", Code: "ACC.1.1.1", Text: "t", Departments: []string{"Quality"}}); err != nil {
		t.Fatalf("InsertElement failed: %v", err)
	}
	if err := c.InsertProject(&models.SurveyProject{ID: "p1", FacilityID: "fac1", Status: models.ProjectInProgress, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	return c
}

func TestGenerateIsIdempotent(t *testing.T) {
	db := newGeneratorFixture(t)
	gen := NewGenerator(db)
	due := time.Now().AddDate(0, 0, 30)

	scores := []models.ComplianceScore{
		{MEID: "me1", MECode: "ACC.1.1.1", AIScore: models.VerdictNonCompliant, Gaps: []string{"No policy"}},
	}

	if _, err := gen.Generate("p1", scores, due); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := gen.Generate("p1", scores, due); err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	actions, err := db.ListActionsByProject("p1")
	if err != nil {
		t.Fatalf("ListActionsByProject failed: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("rerun must not duplicate actions, got %d", len(actions))
	}
	if actions[0].ID != "CA-me1" {
		t.Fatalf("unexpected id: %s", actions[0].ID)
	}
	if actions[0].AssignedDepartment != "Quality" {
		t.Fatalf("expected department from element, got %q", actions[0].AssignedDepartment)
	}
}

func TestGenerateRerunPreservesManualStatus(t *testing.T) {
	db := newGeneratorFixture(t)
	gen := NewGenerator(db)
	due := time.Now().AddDate(0, 0, 30)

	scores := []models.ComplianceScore{
		{MEID: "me1", MECode: "ACC.1.1.1", AIScore: models.VerdictNonCompliant, Gaps: []string{"No policy"}},
	}
	if _, err := gen.Generate("p1", scores, due); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := db.UpdateActionStatus("CA-me1", models.ActionInProgress, false); err != nil {
		t.Fatalf("UpdateActionStatus failed: %v", err)
	}

	scores[0].Gaps = []string{"Policy draft lacks approval"}
	if _, err := gen.Generate("p1", scores, due); err != nil {
		t.Fatalf("rerun Generate failed: %v", err)
	}

	action, err := db.GetCorrectiveAction("CA-me1")
	if err != nil {
		t.Fatalf("GetCorrectiveAction failed: %v", err)
	}
	if action.Status != models.ActionInProgress {
		t.Fatalf("rerun must preserve status, got %s", action.Status)
	}
	if action.GapDescription != "Policy draft lacks approval" {
		t.Fatalf("rerun must refresh gap text, got %q", action.GapDescription)
	}
}

func TestCompliantFlipLeavesActionOpen(t *testing.T) {
	db := newGeneratorFixture(t)
	gen := NewGenerator(db)
	due := time.Now().AddDate(0, 0, 30)

	nc := []models.ComplianceScore{{MEID: "me1", MECode: "ACC.1.1.1", AIScore: models.VerdictNonCompliant}}
	if _, err := gen.Generate("p1", nc, due); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Element turns compliant on rerun: the prior action stays open for a
	// human to confirm closure.
	compliant := []models.ComplianceScore{{MEID: "me1", MECode: "ACC.1.1.1", AIScore: models.VerdictCompliant}}
	if _, err := gen.Generate("p1", compliant, due); err != nil {
		t.Fatalf("rerun Generate failed: %v", err)
	}

	action, err := db.GetCorrectiveAction("CA-me1")
	if err != nil {
		t.Fatalf("GetCorrectiveAction failed: %v", err)
	}
	if action.Status != models.ActionOpen {
		t.Fatalf("action must not be auto-closed, got %s", action.Status)
	}
}
