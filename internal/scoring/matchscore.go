package scoring

import (
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/storage/models"
)

// ComputeMatchScore derives the evidence-coverage score for an element,
// distinct from the model-reported confidence. With resolvable evidence
// matches it blends mean match relevance with how many of the element's
// keywords appear in the matched sections; without matches the normalized
// judgment value is kept as-is.
func ComputeMatchScore(element models.MeasurableElement, j judge.Judgment) int {
	if len(j.EvidenceMatches) == 0 {
		return j.MatchScore
	}

	var totalRelevance int
	var sections []string
	for _, m := range j.EvidenceMatches {
		totalRelevance += m.RelevanceScore
		sections = append(sections, m.MatchedSections...)
	}
	meanRelevance := float64(totalRelevance) / float64(len(j.EvidenceMatches))

	if len(element.Keywords) == 0 {
		return clamp(int(meanRelevance + 0.5))
	}

	coverage := keywordCoverage(element.Keywords, strings.Join(sections, " "))
	return clamp(int(0.6*meanRelevance + 0.4*coverage*100 + 0.5))
}

// keywordCoverage returns the fraction of keywords found in the text.
// Single-word keywords match against the token set; phrases match as
// substrings of the lowercased text.
func keywordCoverage(keywords []string, text string) float64 {
	if len(keywords) == 0 || text == "" {
		return 0
	}

	textLower := strings.ToLower(text)
	tokens := tokenSet(textLower)

	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(textLower, kw) {
				hits++
			}
		} else if tokens[kw] {
			hits++
		}
	}

	return float64(hits) / float64(len(keywords))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false), prose.WithSegmentation(false))
	if err != nil {
		for _, tok := range strings.Fields(text) {
			set[strings.Trim(tok, ".,;:!?()\"'")] = true
		}
		return set
	}

	for _, tok := range doc.Tokens() {
		set[strings.ToLower(tok.Text)] = true
	}
	return set
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
