// Package milvus maintains the evidence embedding index used to narrow a
// project's corpus to the documents most relevant to one measurable
// element.
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type EvidenceRecord struct {
	EvidenceID   string
	Embedding    []float32
	DocumentName string
	DocType      string
	Department   string
	Summary      string
	UploadedAt   time.Time
}

type SearchResult struct {
	EvidenceID   string
	DocumentName string
	DocType      string
	Department   string
	Summary      string
	Score        float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Evidence document embeddings",
		Fields: []*entity.Field{
			{
				Name:       "evidence_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "document_name",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "doc_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "department",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "summary",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "2048",
				},
			},
			{
				Name:     "uploaded_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, records []EvidenceRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	names := make([]string, len(records))
	docTypes := make([]string, len(records))
	departments := make([]string, len(records))
	summaries := make([]string, len(records))
	uploadedAts := make([]int64, len(records))

	for i, r := range records {
		ids[i] = r.EvidenceID
		embeddings[i] = r.Embedding
		names[i] = r.DocumentName
		docTypes[i] = r.DocType
		departments[i] = r.Department
		summaries[i] = r.Summary
		uploadedAts[i] = r.UploadedAt.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("evidence_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("document_name", names),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnVarChar("department", departments),
		entity.NewColumnVarChar("summary", summaries),
		entity.NewColumnInt64("uploaded_at", uploadedAts),
	)

	if err != nil {
		return fmt.Errorf("failed to insert evidence records: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Evidence records inserted into vector index", zap.Int("count", len(records)))

	return nil
}

// IndexEvidence satisfies the ingestion pipeline's Indexer interface.
func (m *Client) IndexEvidence(ctx context.Context, e models.Evidence, _ string, embedding []float32) error {
	return m.Insert(ctx, []EvidenceRecord{{
		EvidenceID:   e.ID,
		Embedding:    embedding,
		DocumentName: e.DocumentName,
		DocType:      e.Type,
		Department:   e.Department,
		Summary:      e.Summary,
		UploadedAt:   e.UploadedAt,
	}})
}

func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	expr := ""
	if docType, ok := filters["doc_type"]; ok && docType != "" {
		expr = fmt.Sprintf(`doc_type == "%s"`, docType)
	}
	if department, ok := filters["department"]; ok && department != "" {
		if expr != "" {
			expr += " && "
		}
		expr += fmt.Sprintf(`department == "%s"`, department)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"evidence_id", "document_name", "doc_type", "department", "summary"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			idCol := sr.Fields.GetColumn("evidence_id")
			nameCol := sr.Fields.GetColumn("document_name")
			docTypeCol := sr.Fields.GetColumn("doc_type")
			departmentCol := sr.Fields.GetColumn("department")
			summaryCol := sr.Fields.GetColumn("summary")

			id, _ := idCol.Get(i)
			name, _ := nameCol.Get(i)
			docType, _ := docTypeCol.Get(i)
			department, _ := departmentCol.Get(i)
			summary, _ := summaryCol.Get(i)

			results = append(results, SearchResult{
				EvidenceID:   id.(string),
				DocumentName: name.(string),
				DocType:      docType.(string),
				Department:   department.(string),
				Summary:      summary.(string),
				Score:        sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filters", expr),
	)

	return results, nil
}
