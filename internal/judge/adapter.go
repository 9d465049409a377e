// Package judge wraps the external element-judgment source and normalizes
// its untrusted output before anything downstream sees it.
package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/pkg/logger"
	"github.com/medaccred/backend/pkg/utils"
)

// ParseFailureGap is injected when the judgment source returns a verdict
// outside the known enum.
const ParseFailureGap = "AI response could not be parsed"

// EvidenceDoc is the per-document slice of the corpus handed to the
// judgment source.
type EvidenceDoc struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TextOrSummary string `json:"textOrSummary"`
}

// EvaluationInput is the wire payload sent to the judgment source.
type EvaluationInput struct {
	ElementID             string        `json:"elementId"`
	ElementText           string        `json:"elementText"`
	RequiredEvidenceTypes []string      `json:"requiredEvidenceTypes"`
	Keywords              []string      `json:"keywords"`
	ScoringRule           string        `json:"scoringRule,omitempty"`
	EvidenceDocuments     []EvidenceDoc `json:"evidenceDocuments"`
}

// RawJudgment is whatever came back from the judgment source. Every field
// is untrusted until Normalize has run.
type RawJudgment struct {
	AIScore         string            `json:"aiScore"`
	AIConfidence    float64           `json:"aiConfidence"`
	MatchScore      float64           `json:"matchScore"`
	Justification   string            `json:"justification"`
	EvidenceMissing []string          `json:"evidenceMissing"`
	Gaps            []string          `json:"gaps"`
	Recommendations []string          `json:"recommendations"`
	EvidenceMatches []RawMatch        `json:"evidenceMatches"`
}

type RawMatch struct {
	EvidenceID      string   `json:"evidenceId"`
	DocumentName    string   `json:"documentName"`
	RelevanceScore  float64  `json:"relevanceScore"`
	MatchedSections []string `json:"matchedSections"`
}

// Judgment is the normalized, trusted form fed to the scorer.
type Judgment struct {
	AIScore         models.Verdict
	AIConfidence    int
	MatchScore      int
	Justification   string
	EvidenceMissing []string
	Gaps            []string
	Recommendations []string
	EvidenceMatches []Match
}

type Match struct {
	EvidenceID      string
	DocumentName    string
	RelevanceScore  int
	MatchedSections []string
}

// ElementEvaluator is the external judgment function. internal/llm provides
// the production implementation; tests plug in fakes.
type ElementEvaluator interface {
	EvaluateElement(ctx context.Context, input EvaluationInput) (RawJudgment, error)
}

// JudgmentCache stores normalized judgments keyed by element+corpus hash so
// re-runs over unchanged evidence skip the provider.
type JudgmentCache interface {
	GetJudgment(ctx context.Context, key string, out *Judgment) (bool, error)
	SetJudgment(ctx context.Context, key string, j Judgment) error
}

// EvidenceRetriever narrows the corpus to the documents most relevant to an
// element before judging. Optional; the full corpus is used without one.
type EvidenceRetriever interface {
	TopEvidence(ctx context.Context, elementText string, corpus []models.Evidence, topK int) ([]models.Evidence, error)
}

type Adapter struct {
	evaluator   ElementEvaluator
	cache       JudgmentCache
	retriever   EvidenceRetriever
	maxEvidence int
}

func NewAdapter(evaluator ElementEvaluator, cache JudgmentCache, retriever EvidenceRetriever, maxEvidence int) *Adapter {
	if maxEvidence <= 0 {
		maxEvidence = 8
	}
	return &Adapter{
		evaluator:   evaluator,
		cache:       cache,
		retriever:   retriever,
		maxEvidence: maxEvidence,
	}
}

// Judge evaluates one element against the evidence corpus and returns the
// normalized verdict. Only total evaluator failure is an error; malformed
// output is coerced locally and never bubbles.
func (a *Adapter) Judge(ctx context.Context, element models.MeasurableElement, evidence []models.Evidence) (Judgment, error) {
	scoped := evidence
	if a.retriever != nil && len(evidence) > a.maxEvidence {
		narrowed, err := a.retriever.TopEvidence(ctx, element.Text, evidence, a.maxEvidence)
		if err != nil {
			logger.Warn("Evidence retrieval failed, using full corpus",
				zap.String("me_code", element.Code), zap.Error(err))
		} else if len(narrowed) > 0 {
			scoped = narrowed
		}
	}

	key := cacheKey(element, scoped)
	if a.cache != nil {
		var cached Judgment
		hit, err := a.cache.GetJudgment(ctx, key, &cached)
		if err != nil {
			logger.Warn("Judgment cache read failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("judgment").Inc()
			return cached, nil
		}
		metrics.CacheMisses.WithLabelValues("judgment").Inc()
	}

	input := EvaluationInput{
		ElementID:             element.ID,
		ElementText:           element.Text,
		RequiredEvidenceTypes: element.RequiredEvidenceTypes,
		Keywords:              element.Keywords,
		ScoringRule:           element.ScoringRule,
	}
	for _, ev := range scoped {
		text := ev.Summary
		if text == "" {
			text = ev.DocumentName
		}
		input.EvidenceDocuments = append(input.EvidenceDocuments, EvidenceDoc{
			ID:            ev.ID,
			Name:          ev.DocumentName,
			TextOrSummary: text,
		})
	}

	start := time.Now()
	raw, err := a.evaluator.EvaluateElement(ctx, input)
	metrics.JudgmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderFailures.WithLabelValues("llm").Inc()
		return Judgment{}, fmt.Errorf("judgment source failed for %s: %w", element.Code, err)
	}

	judgment := Normalize(raw, scoped)
	metrics.JudgmentsTotal.WithLabelValues(string(judgment.AIScore)).Inc()

	if a.cache != nil {
		if err := a.cache.SetJudgment(ctx, key, judgment); err != nil {
			logger.Warn("Judgment cache write failed", zap.Error(err))
		}
	}

	return judgment, nil
}

// ProgressFunc receives (processed, total) after each element completes.
type ProgressFunc func(processed, total int)

// JudgeBatch evaluates elements strictly in order, one at a time. A
// provider failure aborts the batch; judgments already produced are
// returned alongside the error so progress is never rolled back.
func (a *Adapter) JudgeBatch(ctx context.Context, elements []models.MeasurableElement, evidence []models.Evidence, onProgress ProgressFunc) ([]Judgment, error) {
	total := len(elements)
	judgments := make([]Judgment, 0, total)

	for i, element := range elements {
		select {
		case <-ctx.Done():
			return judgments, ctx.Err()
		default:
		}

		judgment, err := a.Judge(ctx, element, evidence)
		if err != nil {
			return judgments, err
		}
		judgments = append(judgments, judgment)

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return judgments, nil
}

// Normalize applies the trust boundary rules to a raw judgment:
// unknown verdicts become non-compliant with zero confidence and a parse
// failure gap, scores are clamped to [0,100], list entries are trimmed
// with empties dropped, and matches that do not resolve to a known
// evidence document are removed.
func Normalize(raw RawJudgment, evidence []models.Evidence) Judgment {
	j := Judgment{
		AIConfidence:    clampScore(raw.AIConfidence),
		MatchScore:      clampScore(raw.MatchScore),
		Justification:   strings.TrimSpace(raw.Justification),
		EvidenceMissing: cleanList(raw.EvidenceMissing),
		Gaps:            cleanList(raw.Gaps),
		Recommendations: cleanList(raw.Recommendations),
	}

	verdict := models.Verdict(strings.ToLower(strings.TrimSpace(raw.AIScore)))
	if verdict.Valid() {
		j.AIScore = verdict
	} else {
		j.AIScore = models.VerdictNonCompliant
		j.AIConfidence = 0
		j.Gaps = append(j.Gaps, ParseFailureGap)
		metrics.JudgmentParseFailures.Inc()
	}

	known := make(map[string]string, len(evidence))
	for _, ev := range evidence {
		known[ev.ID] = ev.DocumentName
	}

	for _, m := range raw.EvidenceMatches {
		name, ok := known[strings.TrimSpace(m.EvidenceID)]
		if !ok {
			logger.Debug("Dropping unresolvable evidence match", zap.String("evidence_id", m.EvidenceID))
			continue
		}
		if m.DocumentName == "" {
			m.DocumentName = name
		}
		j.EvidenceMatches = append(j.EvidenceMatches, Match{
			EvidenceID:      strings.TrimSpace(m.EvidenceID),
			DocumentName:    m.DocumentName,
			RelevanceScore:  clampScore(m.RelevanceScore),
			MatchedSections: cleanList(m.MatchedSections),
		})
	}

	return j
}

func clampScore(v float64) int {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v + 0.5)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cacheKey(element models.MeasurableElement, evidence []models.Evidence) string {
	parts := []string{element.ID, element.Text}
	for _, ev := range evidence {
		parts = append(parts, ev.ID, ev.Summary)
	}
	return utils.HashStrings(parts...)
}
