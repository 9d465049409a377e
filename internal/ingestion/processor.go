// Package ingestion registers evidence documents: text extraction,
// summarization, embedding and the pending to classified status advance.
package ingestion

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

var whitespace = regexp.MustCompile(`\s+`)

// ExtractText pulls text-shaped content out of an uploaded evidence file.
// HTML is stripped to body text; plain text passes through normalized.
// The pipeline always needs text-shaped input, so extraction never fails:
// binary or empty content yields a fallback string naming the document.
func ExtractText(data []byte, fileName string) string {
	content := string(data)

	if looksLikeHTML(content) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
				s.Remove()
			})
			text := strings.TrimSpace(whitespace.ReplaceAllString(doc.Find("body").Text(), " "))
			if text != "" {
				return text
			}
		}
	}

	if utf8.ValidString(content) {
		text := strings.TrimSpace(whitespace.ReplaceAllString(content, " "))
		if text != "" {
			return text
		}
	}

	return "Content unavailable for document: " + fileName
}

func looksLikeHTML(content string) bool {
	head := strings.ToLower(content)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") || strings.Contains(head, "<body")
}

// Summarizer produces the evidence summary handed to the judgment source.
type Summarizer interface {
	SummarizeEvidence(ctx context.Context, documentName, content string) (string, error)
}

// Embedder produces the vector used for evidence retrieval.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Indexer stores the evidence embedding for later top-K retrieval.
type Indexer interface {
	IndexEvidence(ctx context.Context, evidence models.Evidence, text string, embedding []float32) error
}

// CacheInvalidator drops cached judgments when the evidence corpus
// changes, so stale verdicts are never replayed against new documents.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

type Processor struct {
	db          *sqlite.Client
	summarizer  Summarizer
	embedder    Embedder
	indexer     Indexer
	invalidator CacheInvalidator
}

// NewProcessor wires the ingestion pipeline. summarizer, embedder and
// indexer may each be nil; ingestion degrades to registration-only.
func NewProcessor(db *sqlite.Client, summarizer Summarizer, embedder Embedder, indexer Indexer) *Processor {
	return &Processor{
		db:         db,
		summarizer: summarizer,
		embedder:   embedder,
		indexer:    indexer,
	}
}

// SetCacheInvalidator enables judgment-cache invalidation on upload.
func (p *Processor) SetCacheInvalidator(invalidator CacheInvalidator) {
	p.invalidator = invalidator
}

// Register ingests one evidence document for a project. Summary and
// vector indexing are best effort; a provider hiccup leaves a usable
// pending document rather than failing the upload.
func (p *Processor) Register(ctx context.Context, projectID, documentName, docType, department string, data []byte) (*models.Evidence, error) {
	text := ExtractText(data, documentName)

	if docType == "" {
		docType = inferDocType(documentName)
	}

	evidence := &models.Evidence{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		DocumentName: documentName,
		Type:         docType,
		Department:   department,
		Summary:      fallbackSummary(text),
		Status:       models.EvidencePending,
		UploadedAt:   time.Now(),
	}

	if err := p.db.InsertEvidence(evidence); err != nil {
		return nil, err
	}

	if p.summarizer != nil {
		summary, err := p.summarizer.SummarizeEvidence(ctx, documentName, text)
		if err != nil {
			logger.Warn("Evidence summarization failed, keeping excerpt",
				zap.String("evidence_id", evidence.ID), zap.Error(err))
		} else if summary != "" {
			evidence.Summary = summary
			if err := p.db.UpdateEvidenceSummary(evidence.ID, summary); err != nil {
				logger.Warn("Failed to store evidence summary", zap.Error(err))
			}
		}
	}

	if p.embedder != nil && p.indexer != nil {
		embedding, err := p.embedder.GenerateEmbedding(ctx, evidence.Summary)
		if err != nil {
			logger.Warn("Evidence embedding failed", zap.String("evidence_id", evidence.ID), zap.Error(err))
		} else if err := p.indexer.IndexEvidence(ctx, *evidence, text, embedding); err != nil {
			logger.Warn("Evidence indexing failed", zap.String("evidence_id", evidence.ID), zap.Error(err))
		}
	}

	if err := p.db.AdvanceEvidenceStatus(evidence.ID, models.EvidenceClassified); err != nil {
		logger.Warn("Failed to advance evidence status", zap.Error(err))
	} else {
		evidence.Status = models.EvidenceClassified
	}

	if p.invalidator != nil {
		if err := p.invalidator.InvalidateAll(ctx); err != nil {
			logger.Warn("Failed to invalidate judgment cache", zap.Error(err))
		}
	}

	metrics.EvidenceIngested.WithLabelValues(docType).Inc()

	logger.Info("Evidence registered",
		zap.String("evidence_id", evidence.ID),
		zap.String("document", documentName),
		zap.String("type", docType),
	)

	return evidence, nil
}

func fallbackSummary(text string) string {
	if len(text) > 400 {
		return text[:400]
	}
	return text
}

func inferDocType(fileName string) string {
	lower := strings.ToLower(fileName)

	switch {
	case strings.Contains(lower, "policy"):
		return "policy"
	case strings.Contains(lower, "procedure"), strings.Contains(lower, "sop"):
		return "procedure"
	case strings.Contains(lower, "minutes"), strings.Contains(lower, "committee"):
		return "meeting-minutes"
	case strings.Contains(lower, "training"), strings.Contains(lower, "competenc"):
		return "training-record"
	case strings.Contains(lower, "audit"), strings.Contains(lower, "report"):
		return "audit-report"
	case strings.Contains(lower, "license"), strings.Contains(lower, "certificate"):
		return "certificate"
	}

	return "document"
}
