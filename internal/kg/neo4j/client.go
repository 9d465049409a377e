// Package neo4j mirrors the standard hierarchy and evidence links into a
// knowledge graph, used to surface elements related to a gap when
// reviewers drill into findings.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/pkg/circuitbreaker"
	"github.com/medaccred/backend/pkg/logger"
	"github.com/medaccred/backend/pkg/retry"
)

type Client struct {
	driver      neo4j.DriverWithContext
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// RelatedElement is a hierarchy neighbor of a measurable element, with
// the relation that connects them.
type RelatedElement struct {
	ID       string
	Code     string
	Text     string
	Relation string
}

func NewClient(uri, username, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// SyncHierarchy mirrors the chapter/standard/sub-standard/element tree
// into the graph. MERGE keeps the operation idempotent across restarts.
func (c *Client) SyncHierarchy(ctx context.Context, chapters []models.Chapter, standards []models.Standard, subStandards []models.SubStandard, elements []models.MeasurableElement) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		for _, ch := range chapters {
			_, err := session.Run(ctx, `
				MERGE (c:Chapter {id: $id})
				SET c.code = $code, c.name = $name, c.standard_version = $version
			`, map[string]interface{}{
				"id":      ch.ID,
				"code":    ch.Code,
				"name":    ch.Name,
				"version": ch.StandardVersion,
			})
			if err != nil {
				return fmt.Errorf("failed to merge chapter: %w", err)
			}
		}

		for _, s := range standards {
			_, err := session.Run(ctx, `
				MATCH (c:Chapter {id: $chapter_id})
				MERGE (s:Standard {id: $id})
				SET s.code = $code, s.name = $name
				MERGE (c)-[:HAS_STANDARD]->(s)
			`, map[string]interface{}{
				"id":         s.ID,
				"chapter_id": s.ChapterID,
				"code":       s.Code,
				"name":       s.Name,
			})
			if err != nil {
				return fmt.Errorf("failed to merge standard: %w", err)
			}
		}

		for _, ss := range subStandards {
			_, err := session.Run(ctx, `
				MATCH (s:Standard {id: $standard_id})
				MERGE (ss:SubStandard {id: $id})
				SET ss.code = $code, ss.name = $name
				MERGE (s)-[:HAS_SUB_STANDARD]->(ss)
			`, map[string]interface{}{
				"id":          ss.ID,
				"standard_id": ss.StandardID,
				"code":        ss.Code,
				"name":        ss.Name,
			})
			if err != nil {
				return fmt.Errorf("failed to merge sub-standard: %w", err)
			}
		}

		for _, me := range elements {
			_, err := session.Run(ctx, `
				MATCH (ss:SubStandard {id: $sub_standard_id})
				MERGE (e:Element {id: $id})
				SET e.code = $code, e.text = $text, e.criticality = $criticality
				MERGE (ss)-[:HAS_ELEMENT]->(e)
			`, map[string]interface{}{
				"id":              me.ID,
				"sub_standard_id": me.SubStandardID,
				"code":            me.Code,
				"text":            me.Text,
				"criticality":     me.Criticality,
			})
			if err != nil {
				return fmt.Errorf("failed to merge element: %w", err)
			}
		}

		return nil
	})
}

// LinkEvidence records which evidence documents supported an element's
// verdict, so graph queries can walk from gaps to the documents behind
// them.
func (c *Client) LinkEvidence(ctx context.Context, meID string, evidenceIDs []string) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		for _, evidenceID := range evidenceIDs {
			_, err := session.Run(ctx, `
				MATCH (e:Element {id: $me_id})
				MERGE (d:Evidence {id: $evidence_id})
				MERGE (d)-[r:SUPPORTS]->(e)
				SET r.linked_at = timestamp()
			`, map[string]interface{}{
				"me_id":       meID,
				"evidence_id": evidenceID,
			})
			if err != nil {
				return fmt.Errorf("failed to link evidence: %w", err)
			}
		}
		return nil
	})
}

// RelatedElements returns hierarchy neighbors of an element: its
// siblings under the same sub-standard plus elements supported by the
// same evidence documents.
func (c *Client) RelatedElements(ctx context.Context, meID string, limit int) ([]RelatedElement, error) {
	if limit <= 0 {
		limit = 10
	}

	var related []RelatedElement

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH (e:Element {id: $me_id})<-[:HAS_ELEMENT]-(ss:SubStandard)-[:HAS_ELEMENT]->(sibling:Element)
			WHERE sibling.id <> $me_id
			RETURN sibling.id AS id, sibling.code AS code, sibling.text AS text, 'sibling' AS relation
			UNION
			MATCH (d:Evidence)-[:SUPPORTS]->(e:Element {id: $me_id})
			MATCH (d)-[:SUPPORTS]->(shared:Element)
			WHERE shared.id <> $me_id
			RETURN shared.id AS id, shared.code AS code, shared.text AS text, 'shared-evidence' AS relation
			LIMIT $limit
		`, map[string]interface{}{
			"me_id": meID,
			"limit": limit,
		})
		if err != nil {
			return fmt.Errorf("failed to query related elements: %w", err)
		}

		related = related[:0]
		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("id")
			code, _ := record.Get("code")
			text, _ := record.Get("text")
			relation, _ := record.Get("relation")

			related = append(related, RelatedElement{
				ID:       asString(id),
				Code:     asString(code),
				Text:     asString(text),
				Relation: asString(relation),
			})
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Related elements query completed",
		zap.String("me_id", meID),
		zap.Int("results", len(related)),
	)

	return related, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
