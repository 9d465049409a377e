package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
)

func TestExtractTextStripsHTML(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head><style>body { color: red; }</style></head>
<body>
  <nav>Home | About</nav>
  <h1>Hand   Hygiene Policy</h1>
  <p>All staff must perform hand hygiene before patient contact.</p>
  <script>alert("x")</script>
  <footer>Internal use only</footer>
</body></html>`

	got := ExtractText([]byte(html), "policy.html")
	if strings.Contains(got, "alert") || strings.Contains(got, "color: red") {
		t.Fatalf("script/style content leaked: %q", got)
	}
	if strings.Contains(got, "Home | About") || strings.Contains(got, "Internal use only") {
		t.Fatalf("chrome elements leaked: %q", got)
	}
	if !strings.Contains(got, "Hand Hygiene Policy") {
		t.Fatalf("expected collapsed whitespace in heading, got %q", got)
	}
	if !strings.Contains(got, "before patient contact") {
		t.Fatalf("body text missing: %q", got)
	}
}

func TestExtractTextPlainAndFallback(t *testing.T) {
	got := ExtractText([]byte("  line one\n\n\tline two  "), "notes.txt")
	if got != "line one line two" {
		t.Fatalf("expected normalized plain text, got %q", got)
	}

	binary := []byte{0xff, 0xfe, 0x00, 0x9c}
	got = ExtractText(binary, "scan.pdf")
	if got != "Content unavailable for document: scan.pdf" {
		t.Fatalf("expected fallback for binary content, got %q", got)
	}

	got = ExtractText(nil, "empty.txt")
	if got != "Content unavailable for document: empty.txt" {
		t.Fatalf("expected fallback for empty content, got %q", got)
	}
}

func TestInferDocType(t *testing.T) {
	cases := []struct {
		fileName string
		want     string
	}{
		{"Hand-Hygiene-POLICY.docx", "policy"},
		{"cleaning_sop_v2.pdf", "procedure"},
		{"quality committee minutes jan.docx", "meeting-minutes"},
		{"2026 competency matrix.xlsx", "training-record"},
		{"fire safety audit.pdf", "audit-report"},
		{"operating license.pdf", "certificate"},
		{"misc-upload.bin", "document"},
	}

	for _, tc := range cases {
		if got := inferDocType(tc.fileName); got != tc.want {
			t.Fatalf("%s: inferred %q, want %q", tc.fileName, got, tc.want)
		}
	}
}

func newIngestionFixture(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ingestion-test.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.InsertProject(&models.SurveyProject{ID: "p1", FacilityID: "fac1", Status: models.ProjectDraft, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	return c
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) SummarizeEvidence(ctx context.Context, documentName, content string) (string, error) {
	return s.summary, s.err
}

func TestRegisterWithoutProviders(t *testing.T) {
	db := newIngestionFixture(t)
	p := NewProcessor(db, nil, nil, nil)

	evidence, err := p.Register(context.Background(), "p1", "hygiene policy.txt", "", "Quality", []byte("Hand hygiene is mandatory."))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if evidence.Type != "policy" {
		t.Fatalf("expected inferred type policy, got %q", evidence.Type)
	}
	if evidence.Summary != "Hand hygiene is mandatory." {
		t.Fatalf("expected excerpt summary, got %q", evidence.Summary)
	}
	if evidence.Status != models.EvidenceClassified {
		t.Fatalf("expected classified after registration, got %s", evidence.Status)
	}

	stored, err := db.GetEvidence(evidence.ID)
	if err != nil {
		t.Fatalf("GetEvidence failed: %v", err)
	}
	if stored.Status != models.EvidenceClassified || stored.Department != "Quality" {
		t.Fatalf("unexpected stored evidence: %+v", stored)
	}
}

func TestRegisterUsesProviderSummary(t *testing.T) {
	db := newIngestionFixture(t)
	p := NewProcessor(db, &stubSummarizer{summary: "Mandates hand hygiene before contact."}, nil, nil)

	evidence, err := p.Register(context.Background(), "p1", "doc.txt", "policy", "", []byte("long source text"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if evidence.Summary != "Mandates hand hygiene before contact." {
		t.Fatalf("expected provider summary, got %q", evidence.Summary)
	}

	stored, err := db.GetEvidence(evidence.ID)
	if err != nil {
		t.Fatalf("GetEvidence failed: %v", err)
	}
	if stored.Summary != evidence.Summary {
		t.Fatalf("summary not persisted: %q", stored.Summary)
	}
}

func TestRegisterSurvivesSummarizerFailure(t *testing.T) {
	db := newIngestionFixture(t)
	p := NewProcessor(db, &stubSummarizer{err: errors.New("provider down")}, nil, nil)

	evidence, err := p.Register(context.Background(), "p1", "doc.txt", "policy", "", []byte("source text stays usable"))
	if err != nil {
		t.Fatalf("Register must not fail on summarizer error: %v", err)
	}
	if evidence.Summary != "source text stays usable" {
		t.Fatalf("expected excerpt fallback, got %q", evidence.Summary)
	}
	if evidence.Status != models.EvidenceClassified {
		t.Fatalf("expected classified, got %s", evidence.Status)
	}
}

func TestFallbackSummaryCaps(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := fallbackSummary(long); len(got) != 400 {
		t.Fatalf("expected 400-char cap, got %d", len(got))
	}
	if got := fallbackSummary("short"); got != "short" {
		t.Fatalf("short text must pass through, got %q", got)
	}
}
