package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/medaccred/backend/internal/storage/models"
)

func sampleEvidence() []models.Evidence {
	return []models.Evidence{
		{ID: "ev1", DocumentName: "hand-hygiene-policy.txt", Summary: "Hand hygiene policy"},
		{ID: "ev2", DocumentName: "training-records.txt", Summary: "Training completion records"},
	}
}

func TestNormalizeClampsAndTrims(t *testing.T) {
	raw := RawJudgment{
		AIScore:         "  Compliant ",
		AIConfidence:    140,
		MatchScore:      -12,
		Justification:   "  well evidenced  ",
		Gaps:            []string{" gap one ", "", "  "},
		Recommendations: []string{"do x"},
	}

	j := Normalize(raw, nil)

	if j.AIScore != models.VerdictCompliant {
		t.Fatalf("expected compliant after trimming/lowering, got %s", j.AIScore)
	}
	if j.AIConfidence != 100 {
		t.Fatalf("expected confidence clamped to 100, got %d", j.AIConfidence)
	}
	if j.MatchScore != 0 {
		t.Fatalf("expected match score clamped to 0, got %d", j.MatchScore)
	}
	if j.Justification != "well evidenced" {
		t.Fatalf("expected trimmed justification, got %q", j.Justification)
	}
	if len(j.Gaps) != 1 || j.Gaps[0] != "gap one" {
		t.Fatalf("expected empty gap entries dropped, got %v", j.Gaps)
	}
}

func TestNormalizeUnknownVerdict(t *testing.T) {
	for _, bad := range []string{"", "mostly-fine", "COMPLIANTISH", "yes"} {
		j := Normalize(RawJudgment{AIScore: bad, AIConfidence: 90}, nil)
		if j.AIScore != models.VerdictNonCompliant {
			t.Fatalf("verdict %q: expected non-compliant, got %s", bad, j.AIScore)
		}
		if j.AIConfidence != 0 {
			t.Fatalf("verdict %q: expected zero confidence, got %d", bad, j.AIConfidence)
		}
		found := false
		for _, g := range j.Gaps {
			if g == ParseFailureGap {
				found = true
			}
		}
		if !found {
			t.Fatalf("verdict %q: expected parse failure gap, got %v", bad, j.Gaps)
		}
	}
}

func TestNormalizeFiltersUnresolvableMatches(t *testing.T) {
	raw := RawJudgment{
		AIScore: "partial",
		EvidenceMatches: []RawMatch{
			{EvidenceID: "ev1", RelevanceScore: 80, MatchedSections: []string{" section 1 ", ""}},
			{EvidenceID: "ghost", RelevanceScore: 90},
			{EvidenceID: " ev2 ", RelevanceScore: 250},
		},
	}

	j := Normalize(raw, sampleEvidence())

	if len(j.EvidenceMatches) != 2 {
		t.Fatalf("expected unresolvable match dropped, got %d matches", len(j.EvidenceMatches))
	}
	if j.EvidenceMatches[0].DocumentName != "hand-hygiene-policy.txt" {
		t.Fatalf("expected document name backfilled, got %q", j.EvidenceMatches[0].DocumentName)
	}
	if len(j.EvidenceMatches[0].MatchedSections) != 1 || j.EvidenceMatches[0].MatchedSections[0] != "section 1" {
		t.Fatalf("expected matched sections cleaned, got %v", j.EvidenceMatches[0].MatchedSections)
	}
	if j.EvidenceMatches[1].EvidenceID != "ev2" {
		t.Fatalf("expected evidence id trimmed, got %q", j.EvidenceMatches[1].EvidenceID)
	}
	if j.EvidenceMatches[1].RelevanceScore != 100 {
		t.Fatalf("expected relevance clamped, got %d", j.EvidenceMatches[1].RelevanceScore)
	}
}

type fakeEvaluator struct {
	calls   int
	failAt  int
	verdict string
}

func (f *fakeEvaluator) EvaluateElement(ctx context.Context, input EvaluationInput) (RawJudgment, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return RawJudgment{}, errors.New("provider unavailable")
	}
	verdict := f.verdict
	if verdict == "" {
		verdict = "compliant"
	}
	return RawJudgment{AIScore: verdict, AIConfidence: 90, MatchScore: 80}, nil
}

func testElements(n int) []models.MeasurableElement {
	elements := make([]models.MeasurableElement, 0, n)
	for i := 0; i < n; i++ {
		elements = append(elements, models.MeasurableElement{
			ID:   string(rune('a' + i)),
			Code: "ME." + string(rune('1'+i)),
			Text: "requirement text",
		})
	}
	return elements
}

func TestJudgeBatchProgressMonotonic(t *testing.T) {
	adapter := NewAdapter(&fakeEvaluator{}, nil, nil, 8)
	elements := testElements(5)

	var observed []int
	judgments, err := adapter.JudgeBatch(context.Background(), elements, sampleEvidence(), func(processed, total int) {
		if total != 5 {
			t.Fatalf("expected total=5, got %d", total)
		}
		observed = append(observed, processed)
	})
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}
	if len(judgments) != 5 {
		t.Fatalf("expected 5 judgments, got %d", len(judgments))
	}

	if len(observed) != 5 {
		t.Fatalf("expected 5 progress callbacks, got %d", len(observed))
	}
	for i, p := range observed {
		if p != i+1 {
			t.Fatalf("progress not monotonic: %v", observed)
		}
	}
	if observed[len(observed)-1] != 5 {
		t.Fatalf("progress must end at N, got %d", observed[len(observed)-1])
	}
}

func TestJudgeBatchReturnsPartialOnFailure(t *testing.T) {
	adapter := NewAdapter(&fakeEvaluator{failAt: 3}, nil, nil, 8)
	elements := testElements(5)

	judgments, err := adapter.JudgeBatch(context.Background(), elements, nil, nil)
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}
	if len(judgments) != 2 {
		t.Fatalf("expected 2 judgments before the failure, got %d", len(judgments))
	}
}

func TestJudgeBatchStopsOnCancel(t *testing.T) {
	adapter := NewAdapter(&fakeEvaluator{}, nil, nil, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	judgments, err := adapter.JudgeBatch(ctx, testElements(3), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(judgments) != 0 {
		t.Fatalf("expected no judgments after immediate cancel, got %d", len(judgments))
	}
}

type fakeCache struct {
	store map[string]Judgment
	hits  int
}

func (f *fakeCache) GetJudgment(ctx context.Context, key string, out *Judgment) (bool, error) {
	j, ok := f.store[key]
	if !ok {
		return false, nil
	}
	f.hits++
	*out = j
	return true, nil
}

func (f *fakeCache) SetJudgment(ctx context.Context, key string, j Judgment) error {
	f.store[key] = j
	return nil
}

func TestJudgeUsesCacheOnRepeat(t *testing.T) {
	evaluator := &fakeEvaluator{}
	cache := &fakeCache{store: make(map[string]Judgment)}
	adapter := NewAdapter(evaluator, cache, nil, 8)

	element := models.MeasurableElement{ID: "me1", Code: "ME.1", Text: "requirement"}
	evidence := sampleEvidence()

	first, err := adapter.Judge(context.Background(), element, evidence)
	if err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	second, err := adapter.Judge(context.Background(), element, evidence)
	if err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	if evaluator.calls != 1 {
		t.Fatalf("expected one evaluator call, got %d", evaluator.calls)
	}
	if cache.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", cache.hits)
	}
	if first.AIScore != second.AIScore || first.AIConfidence != second.AIConfidence {
		t.Fatalf("cached judgment differs: %+v vs %+v", first, second)
	}
}
