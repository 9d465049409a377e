package milvus

import (
	"context"
	"fmt"

	"github.com/medaccred/backend/internal/storage/models"
)

// Embedder turns the element requirement text into a query vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Retriever implements evidence narrowing over the vector index: embed
// the element text, search, keep only hits that belong to the project's
// corpus, in relevance order.
type Retriever struct {
	client   *Client
	embedder Embedder
}

func NewRetriever(client *Client, embedder Embedder) *Retriever {
	return &Retriever{client: client, embedder: embedder}
}

func (r *Retriever) TopEvidence(ctx context.Context, elementText string, corpus []models.Evidence, topK int) ([]models.Evidence, error) {
	if topK <= 0 || len(corpus) == 0 {
		return nil, nil
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, elementText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed element text: %w", err)
	}

	// Over-fetch: the index holds every project's evidence, and hits
	// outside this project's corpus are discarded below.
	results, err := r.client.Search(ctx, embedding, topK*4, nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Evidence, len(corpus))
	for _, e := range corpus {
		byID[e.ID] = e
	}

	narrowed := make([]models.Evidence, 0, topK)
	for _, hit := range results {
		e, ok := byID[hit.EvidenceID]
		if !ok {
			continue
		}
		narrowed = append(narrowed, e)
		if len(narrowed) == topK {
			break
		}
	}

	return narrowed, nil
}
