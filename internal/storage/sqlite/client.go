package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/storage/models"
	"github.com/medaccred/backend/pkg/logger"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrStatusRegression = errors.New("status cannot move backwards")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		standard_version TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS standards (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (chapter_id) REFERENCES chapters(id)
	);
	CREATE INDEX IF NOT EXISTS idx_standards_chapter ON standards(chapter_id);

	CREATE TABLE IF NOT EXISTS sub_standards (
		id TEXT PRIMARY KEY,
		standard_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (standard_id) REFERENCES standards(id)
	);
	CREATE INDEX IF NOT EXISTS idx_substandards_standard ON sub_standards(standard_id);

	CREATE TABLE IF NOT EXISTS measurable_elements (
		id TEXT PRIMARY KEY,
		sub_standard_id TEXT NOT NULL,
		code TEXT NOT NULL,
		text TEXT NOT NULL,
		criticality TEXT NOT NULL DEFAULT 'non-critical',
		required_evidence_types TEXT,
		keywords TEXT,
		departments TEXT,
		scoring_rule TEXT,
		FOREIGN KEY (sub_standard_id) REFERENCES sub_standards(id)
	);
	CREATE INDEX IF NOT EXISTS idx_elements_substandard ON measurable_elements(sub_standard_id);
	CREATE INDEX IF NOT EXISTS idx_elements_code ON measurable_elements(code);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		standard_version TEXT NOT NULL,
		scope TEXT,
		selected_chapters TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		overall_score INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS evidence (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		document_name TEXT NOT NULL,
		type TEXT,
		department TEXT,
		file_path TEXT,
		summary TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		uploaded_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_evidence_project ON evidence(project_id);
	CREATE INDEX IF NOT EXISTS idx_evidence_status ON evidence(status);

	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		scope_type TEXT NOT NULL,
		scope_id TEXT,
		status TEXT NOT NULL DEFAULT 'processing',
		total_mes INTEGER NOT NULL,
		processed_mes INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_project ON assessments(project_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);

	CREATE TABLE IF NOT EXISTS compliance_scores (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		me_id TEXT NOT NULL,
		me_code TEXT NOT NULL,
		me_text TEXT NOT NULL,
		ai_score TEXT NOT NULL,
		ai_confidence INTEGER NOT NULL,
		match_score INTEGER NOT NULL,
		justification TEXT,
		evidence_missing TEXT,
		gaps TEXT,
		recommendations TEXT,
		reviewer_score TEXT,
		reviewer_comment TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (assessment_id, me_id),
		FOREIGN KEY (assessment_id) REFERENCES assessments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_scores_assessment ON compliance_scores(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_scores_me ON compliance_scores(me_id);

	CREATE TABLE IF NOT EXISTS evidence_matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		score_id TEXT NOT NULL,
		evidence_id TEXT NOT NULL,
		document_name TEXT NOT NULL,
		relevance_score INTEGER NOT NULL,
		matched_sections TEXT,
		FOREIGN KEY (score_id) REFERENCES compliance_scores(id) ON DELETE CASCADE,
		FOREIGN KEY (evidence_id) REFERENCES evidence(id)
	);
	CREATE INDEX IF NOT EXISTS idx_matches_score ON evidence_matches(score_id);

	CREATE TABLE IF NOT EXISTS chapter_scores (
		project_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL,
		chapter_name TEXT NOT NULL,
		score INTEGER NOT NULL,
		total_mes INTEGER NOT NULL,
		compliant INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		non_compliant INTEGER NOT NULL,
		not_applicable INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (project_id, chapter_id),
		FOREIGN KEY (project_id) REFERENCES projects(id),
		FOREIGN KEY (chapter_id) REFERENCES chapters(id)
	);

	CREATE TABLE IF NOT EXISTS corrective_actions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		me_id TEXT NOT NULL,
		me_code TEXT NOT NULL,
		gap_description TEXT NOT NULL,
		recommended_action TEXT NOT NULL,
		assigned_department TEXT,
		assigned_to TEXT,
		due_date INTEGER NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_actions_project ON corrective_actions(project_id);
	CREATE INDEX IF NOT EXISTS idx_actions_status ON corrective_actions(status);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		type TEXT NOT NULL,
		detail TEXT,
		actor TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_project ON activity_log(project_id);
	CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_log(type);

	CREATE TABLE IF NOT EXISTS activity_responses (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		me_id TEXT NOT NULL,
		response_type TEXT NOT NULL,
		value TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_responses_project ON activity_responses(project_id);
	CREATE INDEX IF NOT EXISTS idx_responses_me ON activity_responses(me_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// --- hierarchy ---

func (c *Client) InsertChapter(ch *models.Chapter) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO chapters (id, code, name, standard_version) VALUES (?, ?, ?, ?)`,
		ch.ID, ch.Code, ch.Name, ch.StandardVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chapter: %w", err)
	}
	return nil
}

func (c *Client) InsertStandard(s *models.Standard) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO standards (id, chapter_id, code, name) VALUES (?, ?, ?, ?)`,
		s.ID, s.ChapterID, s.Code, s.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert standard: %w", err)
	}
	return nil
}

func (c *Client) InsertSubStandard(ss *models.SubStandard) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO sub_standards (id, standard_id, code, name) VALUES (?, ?, ?, ?)`,
		ss.ID, ss.StandardID, ss.Code, ss.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sub-standard: %w", err)
	}
	return nil
}

func (c *Client) InsertElement(me *models.MeasurableElement) error {
	evTypes, _ := json.Marshal(me.RequiredEvidenceTypes)
	keywords, _ := json.Marshal(me.Keywords)
	departments, _ := json.Marshal(me.Departments)

	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO measurable_elements
			(id, sub_standard_id, code, text, criticality, required_evidence_types, keywords, departments, scoring_rule)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		me.ID, me.SubStandardID, me.Code, me.Text, me.Criticality,
		string(evTypes), string(keywords), string(departments), me.ScoringRule,
	)
	if err != nil {
		return fmt.Errorf("failed to insert measurable element: %w", err)
	}
	return nil
}

func (c *Client) GetChapter(id string) (*models.Chapter, error) {
	var ch models.Chapter
	err := c.db.QueryRow(
		`SELECT id, code, name, standard_version FROM chapters WHERE id = ?`, id,
	).Scan(&ch.ID, &ch.Code, &ch.Name, &ch.StandardVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return &ch, nil
}

func (c *Client) ListChapters() ([]models.Chapter, error) {
	rows, err := c.db.Query(`SELECT id, code, name, standard_version FROM chapters ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.Code, &ch.Name, &ch.StandardVersion); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func scanElements(rows *sql.Rows) ([]models.MeasurableElement, error) {
	var elements []models.MeasurableElement
	for rows.Next() {
		var me models.MeasurableElement
		var evTypes, keywords, departments sql.NullString
		err := rows.Scan(&me.ID, &me.SubStandardID, &me.Code, &me.Text, &me.Criticality,
			&evTypes, &keywords, &departments, &me.ScoringRule)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if evTypes.Valid {
			json.Unmarshal([]byte(evTypes.String), &me.RequiredEvidenceTypes)
		}
		if keywords.Valid {
			json.Unmarshal([]byte(keywords.String), &me.Keywords)
		}
		if departments.Valid {
			json.Unmarshal([]byte(departments.String), &me.Departments)
		}
		elements = append(elements, me)
	}
	return elements, rows.Err()
}

const elementColumns = `me.id, me.sub_standard_id, me.code, me.text, me.criticality,
	me.required_evidence_types, me.keywords, me.departments, me.scoring_rule`

func (c *Client) GetElement(id string) (*models.MeasurableElement, error) {
	rows, err := c.db.Query(
		`SELECT `+elementColumns+` FROM measurable_elements me WHERE me.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get element: %w", err)
	}
	defer rows.Close()

	elements, err := scanElements(rows)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, ErrNotFound
	}
	return &elements[0], nil
}

// GetElementsByScope enumerates the element scope of an assessment in a
// stable order. scopeType is one of chapter, standard, sub-standard, all.
func (c *Client) GetElementsByScope(scopeType, scopeID string) ([]models.MeasurableElement, error) {
	var query string
	args := []interface{}{}

	switch scopeType {
	case "chapter":
		query = `SELECT ` + elementColumns + `
			FROM measurable_elements me
			JOIN sub_standards ss ON me.sub_standard_id = ss.id
			JOIN standards s ON ss.standard_id = s.id
			WHERE s.chapter_id = ?
			ORDER BY me.code`
		args = append(args, scopeID)
	case "standard":
		query = `SELECT ` + elementColumns + `
			FROM measurable_elements me
			JOIN sub_standards ss ON me.sub_standard_id = ss.id
			WHERE ss.standard_id = ?
			ORDER BY me.code`
		args = append(args, scopeID)
	case "sub-standard":
		query = `SELECT ` + elementColumns + `
			FROM measurable_elements me
			WHERE me.sub_standard_id = ?
			ORDER BY me.code`
		args = append(args, scopeID)
	case "all":
		query = `SELECT ` + elementColumns + ` FROM measurable_elements me ORDER BY me.code`
	default:
		return nil, fmt.Errorf("unknown scope type: %s", scopeType)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get elements by scope: %w", err)
	}
	defer rows.Close()

	return scanElements(rows)
}

// GetChapterForElement resolves the owning chapter of an element, used by
// the aggregator to group scores.
func (c *Client) GetChapterForElement(meID string) (*models.Chapter, error) {
	var ch models.Chapter
	err := c.db.QueryRow(
		`SELECT c.id, c.code, c.name, c.standard_version
		 FROM chapters c
		 JOIN standards s ON s.chapter_id = c.id
		 JOIN sub_standards ss ON ss.standard_id = s.id
		 JOIN measurable_elements me ON me.sub_standard_id = ss.id
		 WHERE me.id = ?`, meID,
	).Scan(&ch.ID, &ch.Code, &ch.Name, &ch.StandardVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chapter for element: %w", err)
	}
	return &ch, nil
}

// --- projects ---

func (c *Client) InsertProject(p *models.SurveyProject) error {
	chapters, _ := json.Marshal(p.SelectedChapters)
	_, err := c.db.Exec(
		`INSERT INTO projects (id, facility_id, standard_version, scope, selected_chapters, status, overall_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FacilityID, p.StandardVersion, p.Scope, string(chapters), p.Status, p.OverallScore, p.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (c *Client) GetProject(id string) (*models.SurveyProject, error) {
	var p models.SurveyProject
	var chapters sql.NullString
	var createdAt int64
	err := c.db.QueryRow(
		`SELECT id, facility_id, standard_version, scope, selected_chapters, status, overall_score, created_at
		 FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.FacilityID, &p.StandardVersion, &p.Scope, &chapters, &p.Status, &p.OverallScore, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if chapters.Valid {
		json.Unmarshal([]byte(chapters.String), &p.SelectedChapters)
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// UpdateProjectOverallScore overwrites the derived rollup, never accumulates.
func (c *Client) UpdateProjectOverallScore(projectID string, score int) error {
	res, err := c.db.Exec(`UPDATE projects SET overall_score = ? WHERE id = ?`, score, projectID)
	if err != nil {
		return fmt.Errorf("failed to update overall score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) UpdateProjectStatus(projectID, status string) error {
	_, err := c.db.Exec(`UPDATE projects SET status = ? WHERE id = ?`, status, projectID)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

// --- evidence ---

func (c *Client) InsertEvidence(e *models.Evidence) error {
	_, err := c.db.Exec(
		`INSERT INTO evidence (id, project_id, document_name, type, department, file_path, summary, status, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.DocumentName, e.Type, e.Department, e.FilePath, e.Summary, e.Status, e.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evidence: %w", err)
	}
	logger.Debug("Evidence inserted", zap.String("evidence_id", e.ID), zap.String("name", e.DocumentName))
	return nil
}

func (c *Client) GetEvidence(id string) (*models.Evidence, error) {
	var e models.Evidence
	var uploadedAt int64
	err := c.db.QueryRow(
		`SELECT id, project_id, document_name, type, department, file_path, summary, status, uploaded_at
		 FROM evidence WHERE id = ?`, id,
	).Scan(&e.ID, &e.ProjectID, &e.DocumentName, &e.Type, &e.Department, &e.FilePath, &e.Summary, &e.Status, &uploadedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence: %w", err)
	}
	e.UploadedAt = time.Unix(uploadedAt, 0)
	return &e, nil
}

func (c *Client) ListEvidenceByProject(projectID string) ([]models.Evidence, error) {
	rows, err := c.db.Query(
		`SELECT id, project_id, document_name, type, department, file_path, summary, status, uploaded_at
		 FROM evidence WHERE project_id = ? ORDER BY uploaded_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var items []models.Evidence
	for rows.Next() {
		var e models.Evidence
		var uploadedAt int64
		err := rows.Scan(&e.ID, &e.ProjectID, &e.DocumentName, &e.Type, &e.Department,
			&e.FilePath, &e.Summary, &e.Status, &uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.UploadedAt = time.Unix(uploadedAt, 0)
		items = append(items, e)
	}
	return items, rows.Err()
}

var evidenceStatusRank = map[string]int{
	models.EvidencePending:    0,
	models.EvidenceClassified: 1,
	models.EvidenceMapped:     2,
	models.EvidenceReviewed:   3,
}

// AdvanceEvidenceStatus moves an evidence document forward in its
// lifecycle. Backwards moves are rejected.
func (c *Client) AdvanceEvidenceStatus(id, status string) error {
	newRank, ok := evidenceStatusRank[status]
	if !ok {
		return fmt.Errorf("unknown evidence status: %s", status)
	}

	e, err := c.GetEvidence(id)
	if err != nil {
		return err
	}
	if newRank < evidenceStatusRank[e.Status] {
		return ErrStatusRegression
	}

	_, err = c.db.Exec(`UPDATE evidence SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to advance evidence status: %w", err)
	}
	return nil
}

func (c *Client) UpdateEvidenceSummary(id, summary string) error {
	_, err := c.db.Exec(`UPDATE evidence SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to update evidence summary: %w", err)
	}
	return nil
}

// --- assessments ---

func (c *Client) InsertAssessment(a *models.Assessment) error {
	_, err := c.db.Exec(
		`INSERT INTO assessments (id, project_id, scope_type, scope_id, status, total_mes, processed_mes, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.ScopeType, a.ScopeID, a.Status, a.TotalMEs, a.ProcessedMEs, a.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (c *Client) GetAssessment(id string) (*models.Assessment, error) {
	var a models.Assessment
	var startedAt int64
	var completedAt sql.NullInt64
	err := c.db.QueryRow(
		`SELECT id, project_id, scope_type, scope_id, status, total_mes, processed_mes, started_at, completed_at
		 FROM assessments WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProjectID, &a.ScopeType, &a.ScopeID, &a.Status, &a.TotalMEs, &a.ProcessedMEs, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	a.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		a.CompletedAt = &t
	}
	return &a, nil
}

// UpdateAssessmentProgress persists the monotonic processed counter.
// processed may never decrease, enforced in SQL so a slow write can not
// roll the poll value backwards.
func (c *Client) UpdateAssessmentProgress(id string, processed int) error {
	_, err := c.db.Exec(
		`UPDATE assessments SET processed_mes = ? WHERE id = ? AND processed_mes <= ?`,
		processed, id, processed,
	)
	if err != nil {
		return fmt.Errorf("failed to update assessment progress: %w", err)
	}
	return nil
}

func (c *Client) CompleteAssessment(id string, completedAt time.Time) error {
	res, err := c.db.Exec(
		`UPDATE assessments SET status = ?, completed_at = ?, processed_mes = total_mes
		 WHERE id = ? AND status = ?`,
		models.AssessmentCompleted, completedAt.Unix(), id, models.AssessmentProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete assessment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) FailAssessment(id string) error {
	_, err := c.db.Exec(
		`UPDATE assessments SET status = ? WHERE id = ? AND status = ?`,
		models.AssessmentFailed, id, models.AssessmentProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark assessment failed: %w", err)
	}
	return nil
}

// HasActiveAssessment reports whether a processing run already exists for
// the project. One active run per project is the required discipline; the
// rollup tables are last-writer-wins otherwise.
func (c *Client) HasActiveAssessment(projectID string) (bool, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM assessments WHERE project_id = ? AND status = ?`,
		projectID, models.AssessmentProcessing,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active assessments: %w", err)
	}
	return count > 0, nil
}

// --- compliance scores ---

func (c *Client) InsertComplianceScore(s *models.ComplianceScore) error {
	missing, _ := json.Marshal(s.EvidenceMissing)
	gaps, _ := json.Marshal(s.Gaps)
	recs, _ := json.Marshal(s.Recommendations)

	_, err := c.db.Exec(
		`INSERT INTO compliance_scores
			(id, assessment_id, me_id, me_code, me_text, ai_score, ai_confidence, match_score,
			 justification, evidence_missing, gaps, recommendations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AssessmentID, s.MEID, s.MECode, s.METext, string(s.AIScore), s.AIConfidence, s.MatchScore,
		s.Justification, string(missing), string(gaps), string(recs), s.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert compliance score: %w", err)
	}

	logger.Debug("Compliance score inserted",
		zap.String("score_id", s.ID),
		zap.String("me_code", s.MECode),
		zap.String("verdict", string(s.AIScore)),
	)
	return nil
}

func (c *Client) InsertEvidenceMatch(m *models.EvidenceMatch) error {
	sections, _ := json.Marshal(m.MatchedSections)
	_, err := c.db.Exec(
		`INSERT INTO evidence_matches (score_id, evidence_id, document_name, relevance_score, matched_sections)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ScoreID, m.EvidenceID, m.DocumentName, m.RelevanceScore, string(sections),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evidence match: %w", err)
	}
	return nil
}

func scanScores(rows *sql.Rows) ([]models.ComplianceScore, error) {
	var scores []models.ComplianceScore
	for rows.Next() {
		var s models.ComplianceScore
		var aiScore string
		var missing, gaps, recs, reviewerScore, reviewerComment sql.NullString
		var createdAt int64
		err := rows.Scan(&s.ID, &s.AssessmentID, &s.MEID, &s.MECode, &s.METext,
			&aiScore, &s.AIConfidence, &s.MatchScore, &s.Justification,
			&missing, &gaps, &recs, &reviewerScore, &reviewerComment, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.AIScore = models.Verdict(aiScore)
		if missing.Valid {
			json.Unmarshal([]byte(missing.String), &s.EvidenceMissing)
		}
		if gaps.Valid {
			json.Unmarshal([]byte(gaps.String), &s.Gaps)
		}
		if recs.Valid {
			json.Unmarshal([]byte(recs.String), &s.Recommendations)
		}
		if reviewerScore.Valid {
			v := models.Verdict(reviewerScore.String)
			s.ReviewerScore = &v
		}
		if reviewerComment.Valid {
			s.ReviewerComment = &reviewerComment.String
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

const scoreColumns = `id, assessment_id, me_id, me_code, me_text, ai_score, ai_confidence, match_score,
	justification, evidence_missing, gaps, recommendations, reviewer_score, reviewer_comment, created_at`

func (c *Client) GetComplianceScore(id string) (*models.ComplianceScore, error) {
	rows, err := c.db.Query(`SELECT `+scoreColumns+` FROM compliance_scores WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance score: %w", err)
	}
	defer rows.Close()

	scores, err := scanScores(rows)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, ErrNotFound
	}
	return &scores[0], nil
}

// ListScoresByAssessment returns scores in the order they were written.
// rowid tracks insertion, so the sequence holds even when a whole batch
// lands within one created_at second.
func (c *Client) ListScoresByAssessment(assessmentID string) ([]models.ComplianceScore, error) {
	rows, err := c.db.Query(
		`SELECT `+scoreColumns+` FROM compliance_scores WHERE assessment_id = ? ORDER BY rowid`,
		assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

func (c *Client) ListMatchesByScore(scoreID string) ([]models.EvidenceMatch, error) {
	rows, err := c.db.Query(
		`SELECT id, score_id, evidence_id, document_name, relevance_score, matched_sections
		 FROM evidence_matches WHERE score_id = ? ORDER BY id`, scoreID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence matches: %w", err)
	}
	defer rows.Close()

	var matches []models.EvidenceMatch
	for rows.Next() {
		var m models.EvidenceMatch
		var sections sql.NullString
		err := rows.Scan(&m.ID, &m.ScoreID, &m.EvidenceID, &m.DocumentName, &m.RelevanceScore, &sections)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if sections.Valid {
			json.Unmarshal([]byte(sections.String), &m.MatchedSections)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SetReviewerOverride writes the annotation layer only; the AI fields and
// evidence linkage stay untouched.
func (c *Client) SetReviewerOverride(scoreID string, reviewerScore models.Verdict, comment string) error {
	res, err := c.db.Exec(
		`UPDATE compliance_scores SET reviewer_score = ?, reviewer_comment = ? WHERE id = ?`,
		string(reviewerScore), comment, scoreID,
	)
	if err != nil {
		return fmt.Errorf("failed to set reviewer override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- chapter scores ---

func (c *Client) UpsertChapterScore(cs *models.ChapterScore) error {
	_, err := c.db.Exec(
		`INSERT INTO chapter_scores
			(project_id, chapter_id, chapter_name, score, total_mes, compliant, partial, non_compliant, not_applicable, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, chapter_id) DO UPDATE SET
			chapter_name = excluded.chapter_name,
			score = excluded.score,
			total_mes = excluded.total_mes,
			compliant = excluded.compliant,
			partial = excluded.partial,
			non_compliant = excluded.non_compliant,
			not_applicable = excluded.not_applicable,
			updated_at = excluded.updated_at`,
		cs.ProjectID, cs.ChapterID, cs.ChapterName, cs.Score, cs.TotalMEs,
		cs.Compliant, cs.Partial, cs.NonCompliant, cs.NotApplicable, cs.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chapter score: %w", err)
	}
	return nil
}

func (c *Client) ListChapterScores(projectID string) ([]models.ChapterScore, error) {
	rows, err := c.db.Query(
		`SELECT project_id, chapter_id, chapter_name, score, total_mes, compliant, partial, non_compliant, not_applicable, updated_at
		 FROM chapter_scores WHERE project_id = ? ORDER BY chapter_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapter scores: %w", err)
	}
	defer rows.Close()

	var scores []models.ChapterScore
	for rows.Next() {
		var cs models.ChapterScore
		var updatedAt int64
		err := rows.Scan(&cs.ProjectID, &cs.ChapterID, &cs.ChapterName, &cs.Score, &cs.TotalMEs,
			&cs.Compliant, &cs.Partial, &cs.NonCompliant, &cs.NotApplicable, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		cs.UpdatedAt = time.Unix(updatedAt, 0)
		scores = append(scores, cs)
	}
	return scores, rows.Err()
}

// --- corrective actions ---

// UpsertCorrectiveAction refreshes the generated text fields on rerun and
// leaves status, priority and assignment exactly as a human may have set
// them. The deterministic id makes reruns collide on purpose.
func (c *Client) UpsertCorrectiveAction(a *models.CorrectiveAction) error {
	_, err := c.db.Exec(
		`INSERT INTO corrective_actions
			(id, project_id, me_id, me_code, gap_description, recommended_action,
			 assigned_department, assigned_to, due_date, priority, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			gap_description = excluded.gap_description,
			recommended_action = excluded.recommended_action,
			updated_at = excluded.updated_at`,
		a.ID, a.ProjectID, a.MEID, a.MECode, a.GapDescription, a.RecommendedAction,
		a.AssignedDepartment, a.AssignedTo, a.DueDate.Unix(), a.Priority, a.Status,
		a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert corrective action: %w", err)
	}
	return nil
}

func (c *Client) GetCorrectiveAction(id string) (*models.CorrectiveAction, error) {
	var a models.CorrectiveAction
	var dueDate, createdAt, updatedAt int64
	err := c.db.QueryRow(
		`SELECT id, project_id, me_id, me_code, gap_description, recommended_action,
			assigned_department, assigned_to, due_date, priority, status, created_at, updated_at
		 FROM corrective_actions WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProjectID, &a.MEID, &a.MECode, &a.GapDescription, &a.RecommendedAction,
		&a.AssignedDepartment, &a.AssignedTo, &dueDate, &a.Priority, &a.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corrective action: %w", err)
	}
	a.DueDate = time.Unix(dueDate, 0)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

func (c *Client) ListActionsByProject(projectID string) ([]models.CorrectiveAction, error) {
	rows, err := c.db.Query(
		`SELECT id, project_id, me_id, me_code, gap_description, recommended_action,
			assigned_department, assigned_to, due_date, priority, status, created_at, updated_at
		 FROM corrective_actions WHERE project_id = ? ORDER BY me_code`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrective actions: %w", err)
	}
	defer rows.Close()

	var actions []models.CorrectiveAction
	for rows.Next() {
		var a models.CorrectiveAction
		var dueDate, createdAt, updatedAt int64
		err := rows.Scan(&a.ID, &a.ProjectID, &a.MEID, &a.MECode, &a.GapDescription, &a.RecommendedAction,
			&a.AssignedDepartment, &a.AssignedTo, &dueDate, &a.Priority, &a.Status, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		a.DueDate = time.Unix(dueDate, 0)
		a.CreatedAt = time.Unix(createdAt, 0)
		a.UpdatedAt = time.Unix(updatedAt, 0)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

var actionStatusRank = map[string]int{
	models.ActionOpen:       0,
	models.ActionInProgress: 1,
	models.ActionCompleted:  2,
}

// UpdateActionStatus advances a corrective action. Moving backwards
// requires reopen=true, the explicit manual-reopen path.
func (c *Client) UpdateActionStatus(id, status string, reopen bool) error {
	newRank, ok := actionStatusRank[status]
	if !ok {
		return fmt.Errorf("unknown action status: %s", status)
	}

	a, err := c.GetCorrectiveAction(id)
	if err != nil {
		return err
	}
	if newRank < actionStatusRank[a.Status] && !reopen {
		return ErrStatusRegression
	}

	_, err = c.db.Exec(
		`UPDATE corrective_actions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update action status: %w", err)
	}
	return nil
}

func (c *Client) ReassignAction(id, department, assignee string) error {
	res, err := c.db.Exec(
		`UPDATE corrective_actions SET assigned_department = ?, assigned_to = ?, updated_at = ? WHERE id = ?`,
		department, assignee, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to reassign action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- activity log ---

func (c *Client) AppendActivity(entry *models.ActivityLog) error {
	_, err := c.db.Exec(
		`INSERT INTO activity_log (project_id, type, detail, actor, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ProjectID, entry.Type, entry.Detail, entry.Actor, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (c *Client) ListActivityByProject(projectID string, limit int) ([]models.ActivityLog, error) {
	rows, err := c.db.Query(
		`SELECT id, project_id, type, detail, actor, created_at
		 FROM activity_log WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityLog
	for rows.Next() {
		var e models.ActivityLog
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Type, &e.Detail, &e.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- activity responses ---

func (c *Client) InsertActivityResponse(r *models.ActivityResponse) error {
	_, err := c.db.Exec(
		`INSERT INTO activity_responses (id, project_id, me_id, response_type, value, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.MEID, r.ResponseType, r.Value, r.Comment, r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity response: %w", err)
	}
	return nil
}

func (c *Client) ListResponsesByProject(projectID string) ([]models.ActivityResponse, error) {
	rows, err := c.db.Query(
		`SELECT id, project_id, me_id, response_type, value, comment, created_at
		 FROM activity_responses WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []models.ActivityResponse
	for rows.Next() {
		var r models.ActivityResponse
		var createdAt int64
		err := rows.Scan(&r.ID, &r.ProjectID, &r.MEID, &r.ResponseType, &r.Value, &r.Comment, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		responses = append(responses, r)
	}
	return responses, rows.Err()
}
