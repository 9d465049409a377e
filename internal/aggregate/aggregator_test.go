package aggregate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
)

func TestChapterScoreFormula(t *testing.T) {
	cases := []struct {
		name   string
		counts VerdictCounts
		want   int
		wantOK bool
	}{
		{"spec example", VerdictCounts{Compliant: 3, Partial: 2, NonCompliant: 2}, 57, true},
		{"all compliant", VerdictCounts{Compliant: 4}, 100, true},
		{"all non-compliant", VerdictCounts{NonCompliant: 3}, 0, true},
		{"only partial", VerdictCounts{Partial: 2}, 50, true},
		{"only not-applicable", VerdictCounts{NotApplicable: 5}, 0, false},
		{"empty", VerdictCounts{}, 0, false},
		{"rounding up", VerdictCounts{Compliant: 2, NonCompliant: 1}, 67, true},
	}

	for _, tc := range cases {
		got, ok := ChapterScore(tc.counts)
		if ok != tc.wantOK {
			t.Fatalf("%s: ok=%v, want %v", tc.name, ok, tc.wantOK)
		}
		if got != tc.want {
			t.Fatalf("%s: score=%d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestNotApplicableExclusion(t *testing.T) {
	base := VerdictCounts{Compliant: 3, Partial: 1, NonCompliant: 2}
	withNA := base
	withNA.NotApplicable = 4

	baseScore, _ := ChapterScore(base)
	naScore, _ := ChapterScore(withNA)
	if baseScore != naScore {
		t.Fatalf("not-applicable elements must not move the score: %d vs %d", baseScore, naScore)
	}
	if withNA.Total() != base.Total()+4 {
		t.Fatalf("not-applicable elements must still count in totals")
	}
}

func TestOverallScoreMean(t *testing.T) {
	scores := []models.ChapterScore{{Score: 80}, {Score: 60}, {Score: 40}}
	if got := OverallScore(scores); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}

	scores = append(scores, models.ChapterScore{Score: 100})
	if got := OverallScore(scores); got != 70 {
		t.Fatalf("expected 70 after fourth chapter, got %d", got)
	}

	if got := OverallScore(nil); got != 0 {
		t.Fatalf("expected 0 with no chapters, got %d", got)
	}
}

func newRollupFixture(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "aggregate-test.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	chapters := []models.Chapter{
		{ID: "ch1", Code: "ACC", Name: "Access to Care", StandardVersion: "v4"},
		{ID: "ch2", Code: "IPC", Name: "Infection Control", StandardVersion: "v4"},
	}
	for i := range chapters {
		if err := c.InsertChapter(&chapters[i]); err != nil {
			t.Fatalf("InsertChapter failed: %v", err)
		}
	}
	for _, s := range []models.Standard{
		{ID: "st1", ChapterID: "ch1", Code: "ACC.1", Name: "Admission"},
		{ID: "st2", ChapterID: "ch2", Code: "IPC.1", Name: "Hand hygiene"},
	} {
		s := s
		if err := c.InsertStandard(&s); err != nil {
			t.Fatalf("InsertStandard failed: %v", err)
		}
	}
	for _, ss := range []models.SubStandard{
		{ID: "ss1", StandardID: "st1", Code: "ACC.1.1", Name: "Screening"},
		{ID: "ss2", StandardID: "st2", Code: "IPC.1.1", Name: "Program"},
	} {
		ss := ss
		if err := c.InsertSubStandard(&ss); err != nil {
			t.Fatalf("InsertSubStandard failed: %v", err)
		}
	}
	for _, me := range []models.MeasurableElement{
		{ID: "me1", SubStandardID: "ss1", Code: "ACC.1.1.1", Text: "t1"},
		{ID: "me2", SubStandardID: "ss1", Code: "ACC.1.1.2", Text: "t2"},
		{ID: "me3", SubStandardID: "ss2", Code: "IPC.1.1.1", Text: "t3"},
		{ID: "me4", SubStandardID: "ss2", Code: "IPC.1.1.2", Text: "t4"},
	} {
		me := me
		if err := c.InsertElement(&me); err != nil {
			t.Fatalf("InsertElement failed: %v", err)
		}
	}
	if err := c.InsertProject(&models.SurveyProject{ID: "p1", FacilityID: "fac1", Status: models.ProjectInProgress, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	return c
}

func score(meID, meCode string, v models.Verdict) models.ComplianceScore {
	return models.ComplianceScore{MEID: meID, MECode: meCode, AIScore: v}
}

func TestRollupUpsertsChaptersAndOverall(t *testing.T) {
	db := newRollupFixture(t)
	agg := NewAggregator(db)

	scores := []models.ComplianceScore{
		score("me1", "ACC.1.1.1", models.VerdictCompliant),
		score("me2", "ACC.1.1.2", models.VerdictNonCompliant),
		score("me3", "IPC.1.1.1", models.VerdictCompliant),
		score("me4", "IPC.1.1.2", models.VerdictCompliant),
	}
	if err := agg.Rollup("p1", scores); err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	chapterScores, err := db.ListChapterScores("p1")
	if err != nil {
		t.Fatalf("ListChapterScores failed: %v", err)
	}
	if len(chapterScores) != 2 {
		t.Fatalf("expected 2 chapter scores, got %d", len(chapterScores))
	}

	byChapter := map[string]models.ChapterScore{}
	for _, cs := range chapterScores {
		byChapter[cs.ChapterID] = cs
	}
	if byChapter["ch1"].Score != 50 {
		t.Fatalf("ch1 score = %d, want 50", byChapter["ch1"].Score)
	}
	if byChapter["ch2"].Score != 100 {
		t.Fatalf("ch2 score = %d, want 100", byChapter["ch2"].Score)
	}

	project, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if project.OverallScore != 75 {
		t.Fatalf("overall = %d, want 75", project.OverallScore)
	}
}

func TestRollupKeepsUntouchedChaptersInOverall(t *testing.T) {
	db := newRollupFixture(t)
	agg := NewAggregator(db)

	// First run covers both chapters.
	full := []models.ComplianceScore{
		score("me1", "ACC.1.1.1", models.VerdictNonCompliant),
		score("me2", "ACC.1.1.2", models.VerdictNonCompliant),
		score("me3", "IPC.1.1.1", models.VerdictCompliant),
		score("me4", "IPC.1.1.2", models.VerdictCompliant),
	}
	if err := agg.Rollup("p1", full); err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	// Second run touches only ch1, flipping it to compliant. ch2 keeps its
	// previous value and still counts toward the mean.
	partial := []models.ComplianceScore{
		score("me1", "ACC.1.1.1", models.VerdictCompliant),
		score("me2", "ACC.1.1.2", models.VerdictCompliant),
	}
	if err := agg.Rollup("p1", partial); err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	project, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if project.OverallScore != 100 {
		t.Fatalf("overall = %d, want 100", project.OverallScore)
	}

	chapterScores, err := db.ListChapterScores("p1")
	if err != nil {
		t.Fatalf("ListChapterScores failed: %v", err)
	}
	if len(chapterScores) != 2 {
		t.Fatalf("untouched chapter row must survive, got %d rows", len(chapterScores))
	}
}

func TestRollupSkipsAllNotApplicableChapter(t *testing.T) {
	db := newRollupFixture(t)
	agg := NewAggregator(db)

	scores := []models.ComplianceScore{
		score("me1", "ACC.1.1.1", models.VerdictNotApplicable),
		score("me2", "ACC.1.1.2", models.VerdictNotApplicable),
	}
	if err := agg.Rollup("p1", scores); err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	chapterScores, err := db.ListChapterScores("p1")
	if err != nil {
		t.Fatalf("ListChapterScores failed: %v", err)
	}
	if len(chapterScores) != 0 {
		t.Fatalf("all-not-applicable chapter must be skipped, got %+v", chapterScores)
	}
}
