package models

import "time"

// ReviewStatus is the verdict for one requirement within a run.
type ReviewStatus string

const (
	StatusPass    ReviewStatus = "PASS"
	StatusWarn    ReviewStatus = "WARN"
	StatusFail    ReviewStatus = "FAIL"
	StatusPending ReviewStatus = "PENDING"
)

// ItemState tracks an item's progress through the pipeline. States advance
// strictly forward; failed_to_persist is retried once before the run is
// surfaced as partially failed.
type ItemState string

const (
	ItemStateCreated          ItemState = "created"
	ItemStateCandidateMatched ItemState = "candidate_matched"
	ItemStateEvaluated        ItemState = "evaluated"
	ItemStateEvidenceAttached ItemState = "evidence_attached"
	ItemStatePersisted        ItemState = "persisted"
	ItemStateFailedToPersist  ItemState = "failed_to_persist"
)

// EvidenceRole distinguishes tender-side from bid-side justification.
type EvidenceRole string

const (
	RoleTender EvidenceRole = "tender"
	RoleBid    EvidenceRole = "bid"
)

// Evidence source tags.
const (
	EvidenceSourceMatchedResponse    = "matched_response"
	EvidenceSourceRequirementText    = "requirement_text"
	EvidenceSourceDerivedConsistency = "derived_consistency"
)

// Evidence is one supporting passage attached to a review item.
type Evidence struct {
	Role        EvidenceRole `json:"role"`
	SegmentID   string       `json:"segment_id"`
	AssetID     string       `json:"asset_id,omitempty"`
	PageStart   int          `json:"page_start,omitempty"`
	PageEnd     int          `json:"page_end,omitempty"`
	HeadingPath string       `json:"heading_path,omitempty"`
	Quote       string       `json:"quote,omitempty"`
	Source      string       `json:"source"`
}

// Candidate is one ranked bid response considered for a requirement. The
// full ranked list is always recorded in RuleTrace, even when every score
// is zero.
type Candidate struct {
	ResponseID string  `json:"response_id"`
	Score      float64 `json:"score"`
	Method     string  `json:"method"`
}

// RuleTrace records how candidates were selected for a requirement.
type RuleTrace struct {
	Candidates []Candidate `json:"candidates"`
}

// ComputedTrace holds evaluator-specific inputs and outputs; keys depend on
// the evaluator (NUMERIC records method, required_min/max/const,
// extracted_value, source, pass).
type ComputedTrace map[string]any

// ReviewItem is the audited verdict for exactly one requirement in one run.
type ReviewItem struct {
	ID                string
	ReviewRunID       string // never empty
	RequirementID     string // never empty
	MatchedResponseID *string
	Status            ReviewStatus
	Evaluator         string
	RuleTrace         RuleTrace
	ComputedTrace     ComputedTrace
	Evidence          []Evidence
	TenderEvidenceIDs []string
	BidEvidenceIDs    []string
	Remark            string
	State             ItemState
	CreatedAt         time.Time
}

// RunStatus tracks the lifecycle of a whole review run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCommitted  RunStatus = "committed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusSuperseded RunStatus = "superseded"
)

// ReviewRun is one batch execution of the pipeline for a project and bidder.
// Re-running creates a new run rather than mutating prior results.
type ReviewRun struct {
	ID           string
	ProjectID    string
	BidderName   string
	Status       RunStatus
	ItemCount    int
	FailCount    int
	PendingCount int
	StartedAt    time.Time
	CompletedAt  *time.Time
}
