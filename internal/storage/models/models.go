package models

import "time"

// Verdict is the per-element compliance outcome. Anything outside these
// four values coming back from the judgment source is coerced at the
// adapter boundary, never stored.
type Verdict string

const (
	VerdictCompliant     Verdict = "compliant"
	VerdictPartial       Verdict = "partial"
	VerdictNonCompliant  Verdict = "non-compliant"
	VerdictNotApplicable Verdict = "not-applicable"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictCompliant, VerdictPartial, VerdictNonCompliant, VerdictNotApplicable:
		return true
	}
	return false
}

// Assessment statuses. Failed is written explicitly when a run aborts so
// pollers never have to guess from a stale processing row.
const (
	AssessmentProcessing = "processing"
	AssessmentCompleted  = "completed"
	AssessmentFailed     = "failed"
)

// Evidence lifecycle, monotonic advance only.
const (
	EvidencePending    = "pending"
	EvidenceClassified = "classified"
	EvidenceMapped     = "mapped"
	EvidenceReviewed   = "reviewed"
)

// Corrective action statuses.
const (
	ActionOpen       = "open"
	ActionInProgress = "in-progress"
	ActionCompleted  = "completed"
)

// Corrective action priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Project statuses.
const (
	ProjectDraft      = "draft"
	ProjectInProgress = "in-progress"
	ProjectCompleted  = "completed"
)

type Chapter struct {
	ID              string
	Code            string
	Name            string
	StandardVersion string
}

type Standard struct {
	ID        string
	ChapterID string
	Code      string
	Name      string
}

type SubStandard struct {
	ID         string
	StandardID string
	Code       string
	Name       string
}

// MeasurableElement is the atomic compliance requirement. Immutable once
// an assessment references it; criticality is UI emphasis only and does
// not enter aggregation math.
type MeasurableElement struct {
	ID                    string
	SubStandardID         string
	Code                  string
	Text                  string
	Criticality           string
	RequiredEvidenceTypes []string
	Keywords              []string
	Departments           []string
	ScoringRule           string
}

type Evidence struct {
	ID           string
	ProjectID    string
	DocumentName string
	Type         string
	Department   string
	FilePath     string
	Summary      string
	Status       string
	UploadedAt   time.Time
}

type SurveyProject struct {
	ID               string
	FacilityID       string
	StandardVersion  string
	Scope            string
	SelectedChapters []string
	Status           string
	OverallScore     int
	CreatedAt        time.Time
}

type Assessment struct {
	ID           string
	ProjectID    string
	ScopeType    string
	ScopeID      string
	Status       string
	TotalMEs     int
	ProcessedMEs int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Progress derives the 0-100 poll value; processedMEs is the only field
// mutated mid-run.
func (a *Assessment) Progress() int {
	if a.TotalMEs == 0 {
		return 0
	}
	return int(float64(a.ProcessedMEs)/float64(a.TotalMEs)*100 + 0.5)
}

// ComplianceScore is one verdict for one ME within one assessment.
// MECode/METext are snapshots taken at scoring time and never re-read
// from the hierarchy. Reviewer fields are the only post-creation mutation.
type ComplianceScore struct {
	ID              string
	AssessmentID    string
	MEID            string
	MECode          string
	METext          string
	AIScore         Verdict
	AIConfidence    int
	MatchScore      int
	Justification   string
	EvidenceMissing []string
	Gaps            []string
	Recommendations []string
	ReviewerScore   *Verdict
	ReviewerComment *string
	CreatedAt       time.Time
}

type EvidenceMatch struct {
	ID              int64
	ScoreID         string
	EvidenceID      string
	DocumentName    string
	RelevanceScore  int
	MatchedSections []string
}

// ChapterScore is the per-chapter rollup, upserted on (projectID, chapterID)
// so it always reflects the most recent assessment touching the chapter.
type ChapterScore struct {
	ProjectID     string
	ChapterID     string
	ChapterName   string
	Score         int
	TotalMEs      int
	Compliant     int
	Partial       int
	NonCompliant  int
	NotApplicable int
	UpdatedAt     time.Time
}

type CorrectiveAction struct {
	ID                 string
	ProjectID          string
	MEID               string
	MECode             string
	GapDescription     string
	RecommendedAction  string
	AssignedDepartment string
	AssignedTo         string
	DueDate            time.Time
	Priority           string
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ActivityLog struct {
	ID        int64
	ProjectID string
	Type      string
	Detail    string
	Actor     string
	CreatedAt time.Time
}

// ActivityResponse is a human self-assessment answer for one element:
// either a checklist response (met / not-met / partially-met) or a raw
// data-collection value passed through as context, never as a verdict.
type ActivityResponse struct {
	ID           string
	ProjectID    string
	MEID         string
	ResponseType string
	Value        string
	Comment      string
	CreatedAt    time.Time
}

const (
	ResponseMet          = "met"
	ResponseNotMet       = "not-met"
	ResponsePartiallyMet = "partially-met"
	ResponseNumeric      = "numeric"
)
