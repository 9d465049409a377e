// Package hierarchy loads the accreditation standard tree from a JSON
// file and seeds it into storage. Seeding is idempotent; restarting the
// service never duplicates or rewrites existing hierarchy rows.
package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/pkg/logger"
)

type hierarchyFile struct {
	StandardVersion string        `json:"standardVersion"`
	Chapters        []chapterNode `json:"chapters"`
}

type chapterNode struct {
	ID        string         `json:"id"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Standards []standardNode `json:"standards"`
}

type standardNode struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	SubStandards []subStandardNode `json:"subStandards"`
}

type subStandardNode struct {
	ID       string        `json:"id"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Elements []elementNode `json:"measurableElements"`
}

type elementNode struct {
	ID                    string   `json:"id"`
	Code                  string   `json:"code"`
	Text                  string   `json:"text"`
	Criticality           string   `json:"criticality"`
	RequiredEvidenceTypes []string `json:"requiredEvidenceTypes"`
	Keywords              []string `json:"keywords"`
	Departments           []string `json:"departments"`
	ScoringRule           string   `json:"scoringRule"`
}

// GraphMirror receives the seeded tree; the neo4j client implements it.
type GraphMirror interface {
	SyncHierarchy(ctx context.Context, chapters []models.Chapter, standards []models.Standard, subStandards []models.SubStandard, elements []models.MeasurableElement) error
}

type Seeder struct {
	db     *sqlite.Client
	mirror GraphMirror
}

// NewSeeder wires the seeder. mirror may be nil when the knowledge graph
// is disabled.
func NewSeeder(db *sqlite.Client, mirror GraphMirror) *Seeder {
	return &Seeder{db: db, mirror: mirror}
}

// Seed loads the hierarchy file and inserts every node. Existing rows are
// left untouched; elements referenced by past assessments stay immutable.
func (s *Seeder) Seed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read hierarchy file: %w", err)
	}

	var file hierarchyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse hierarchy file: %w", err)
	}

	var (
		chapters     []models.Chapter
		standards    []models.Standard
		subStandards []models.SubStandard
		elements     []models.MeasurableElement
	)

	for _, chNode := range file.Chapters {
		chapter := models.Chapter{
			ID:              chNode.ID,
			Code:            chNode.Code,
			Name:            chNode.Name,
			StandardVersion: file.StandardVersion,
		}
		if err := s.db.InsertChapter(&chapter); err != nil {
			return fmt.Errorf("failed to seed chapter %s: %w", chNode.Code, err)
		}
		chapters = append(chapters, chapter)

		for _, sNode := range chNode.Standards {
			standard := models.Standard{
				ID:        sNode.ID,
				ChapterID: chNode.ID,
				Code:      sNode.Code,
				Name:      sNode.Name,
			}
			if err := s.db.InsertStandard(&standard); err != nil {
				return fmt.Errorf("failed to seed standard %s: %w", sNode.Code, err)
			}
			standards = append(standards, standard)

			for _, ssNode := range sNode.SubStandards {
				subStandard := models.SubStandard{
					ID:         ssNode.ID,
					StandardID: sNode.ID,
					Code:       ssNode.Code,
					Name:       ssNode.Name,
				}
				if err := s.db.InsertSubStandard(&subStandard); err != nil {
					return fmt.Errorf("failed to seed sub-standard %s: %w", ssNode.Code, err)
				}
				subStandards = append(subStandards, subStandard)

				for _, meNode := range ssNode.Elements {
					element := models.MeasurableElement{
						ID:                    meNode.ID,
						SubStandardID:         ssNode.ID,
						Code:                  meNode.Code,
						Text:                  meNode.Text,
						Criticality:           meNode.Criticality,
						RequiredEvidenceTypes: meNode.RequiredEvidenceTypes,
						Keywords:              meNode.Keywords,
						Departments:           meNode.Departments,
						ScoringRule:           meNode.ScoringRule,
					}
					if err := s.db.InsertElement(&element); err != nil {
						return fmt.Errorf("failed to seed element %s: %w", meNode.Code, err)
					}
					elements = append(elements, element)
				}
			}
		}
	}

	logger.Info("Hierarchy seeded",
		zap.String("standard_version", file.StandardVersion),
		zap.Int("chapters", len(chapters)),
		zap.Int("standards", len(standards)),
		zap.Int("sub_standards", len(subStandards)),
		zap.Int("elements", len(elements)),
	)

	if s.mirror != nil {
		if err := s.mirror.SyncHierarchy(ctx, chapters, standards, subStandards, elements); err != nil {
			logger.Warn("Failed to mirror hierarchy into knowledge graph", zap.Error(err))
		}
	}

	return nil
}
