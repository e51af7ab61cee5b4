package http

import "time"

type ErrorResponse struct {
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Violations []ViolationResponse `json:"violations,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type AssertionDTO struct {
	AssertionKey   string    `json:"assertion_key,omitempty"`
	AssertionIndex int       `json:"assertion_index,omitempty"`
	Subject        string    `json:"subject"`
	SubjectType    string    `json:"subject_type"`
	Predicate      string    `json:"predicate"`
	Object         string    `json:"object"`
	ObjectType     string    `json:"object_type"`
	Negation       bool      `json:"negation"`
	IsNew          bool      `json:"is_new,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

type SentenceDTO struct {
	SentenceIndex int            `json:"sentence_index"`
	Text          string         `json:"sentence"`
	Assertions    []AssertionDTO `json:"assertions"`
}

type DocumentDTO struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title,omitempty"`
	Source     string            `json:"source,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Sentences  []SentenceDTO     `json:"sentences"`
}

type LeaseDTO struct {
	DocumentID string    `json:"document_id"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	RenewedAt  time.Time `json:"renewed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type AcquireTaskResponse struct {
	Document    *DocumentDTO `json:"document,omitempty"`
	Lease       *LeaseDTO    `json:"lease,omitempty"`
	Refreshed   bool         `json:"refreshed,omitempty"`
	NoMoreTasks bool         `json:"no_more_tasks,omitempty"`
}

type TaskResponse struct {
	Document DocumentDTO `json:"document"`
	Lease    LeaseDTO    `json:"lease"`
}

type RenewLeaseResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReleaseLeaseResponse struct {
	Status   string `json:"status"`
	Released bool   `json:"released"`
}

type ReviewDecisionRequest struct {
	AssertionKey string        `json:"assertion_key"`
	Action       string        `json:"action"`
	Comment      string        `json:"comment,omitempty"`
	Proposed     *AssertionDTO `json:"proposed,omitempty"`
}

type ReviewAdditionRequest struct {
	SentenceIndex int          `json:"sentence_index"`
	Assertion     AssertionDTO `json:"assertion"`
	Comment       string       `json:"comment,omitempty"`
}

type SubmitReviewRequest struct {
	Decisions []ReviewDecisionRequest `json:"decisions"`
	Additions []ReviewAdditionRequest `json:"additions,omitempty"`
}

type FuzzySuggestionDTO struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type ViolationResponse struct {
	Level          string              `json:"level"`
	Code           string              `json:"code"`
	Message        string              `json:"message"`
	Field          string              `json:"field,omitempty"`
	SentenceIndex  int                 `json:"sentence_index"`
	AssertionIndex *int                `json:"assertion_index,omitempty"`
	AdditionIndex  *int                `json:"addition_index,omitempty"`
	Addition       bool                `json:"addition,omitempty"`
	Suggestion     *FuzzySuggestionDTO `json:"suggestion,omitempty"`
}

type SubmitReviewResponse struct {
	Status        string              `json:"status"`
	SubmissionID  string              `json:"submission_id"`
	DecisionCount int                 `json:"decision_count"`
	AddedCount    int                 `json:"added_count"`
	Warnings      []ViolationResponse `json:"warnings,omitempty"`
	Replayed      bool                `json:"replayed"`
}

type DecisionEntryDTO struct {
	EntryID      string        `json:"entry_id"`
	ActorID      string        `json:"actor_id"`
	ActorRole    string        `json:"actor_role"`
	Action       string        `json:"action"`
	Decision     string        `json:"decision,omitempty"`
	Comment      string        `json:"comment,omitempty"`
	SubmissionID string        `json:"submission_id,omitempty"`
	Proposed     *AssertionDTO `json:"proposed,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type ArbitrationDTO struct {
	AdminID   string    `json:"admin_id"`
	Decision  string    `json:"decision"`
	Comment   string    `json:"comment,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

type QueueItemResponse struct {
	DocumentID     string             `json:"document_id"`
	AssertionKey   string             `json:"assertion_key"`
	SentenceIndex  int                `json:"sentence_index"`
	Assertion      AssertionDTO       `json:"assertion"`
	Status         string             `json:"status"`
	ConflictReason string             `json:"conflict_reason,omitempty"`
	SupportCounts  map[string]int     `json:"support_counts"`
	Reviewers      []string           `json:"reviewers"`
	Arbitration    *ArbitrationDTO    `json:"arbitration,omitempty"`
	Log            []DecisionEntryDTO `json:"log"`
	LastUpdated    time.Time          `json:"last_updated"`
}

type QueueSummaryResponse struct {
	Total     int `json:"total"`
	Conflicts int `json:"conflicts"`
	Pending   int `json:"pending"`
}

type QueueResponse struct {
	Items   []QueueItemResponse  `json:"items"`
	Summary QueueSummaryResponse `json:"summary"`
}

type DecideArbitrationRequest struct {
	DocumentID   string `json:"document_id"`
	AssertionKey string `json:"assertion_key"`
	Decision     string `json:"decision"`
	Comment      string `json:"comment,omitempty"`
}

type DecideArbitrationResponse struct {
	Status       string    `json:"status"`
	DocumentID   string    `json:"document_id"`
	AssertionKey string    `json:"assertion_key"`
	Decision     string    `json:"decision"`
	AdminID      string    `json:"admin_id"`
	DecidedAt    time.Time `json:"decided_at"`
	Replayed     bool      `json:"replayed"`
}

type FinalDecisionDTO struct {
	AssertionKey string    `json:"assertion_key"`
	Status       string    `json:"final_status"`
	Basis        string    `json:"basis,omitempty"`
	Reviewers    []string  `json:"reviewers"`
	AdminID      string    `json:"admin_id,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	DecidedAt    time.Time `json:"decided_at,omitempty"`
}

type DocumentFinalResponse struct {
	DocumentID string             `json:"document_id"`
	Assertions []FinalDecisionDTO `json:"assertions"`
}

type ExportSnapshotRequest struct {
	Confirm bool `json:"confirm"`
}

type SnapshotResponse struct {
	SnapshotID  string    `json:"snapshot_id"`
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	SHA256      string    `json:"sha256"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type SnapshotListResponse struct {
	Items []SnapshotResponse `json:"items"`
}

type LeaseListResponse struct {
	Items []LeaseDTO `json:"items"`
}

type ArbitrationHistoryResponse struct {
	DocumentID   string             `json:"document_id"`
	AssertionKey string             `json:"assertion_key"`
	History      []DecisionEntryDTO `json:"history"`
}

type AdminStatsResponse struct {
	TotalDocuments    int        `json:"total_documents"`
	ReviewedDocuments int        `json:"reviewed_documents"`
	InReview          int        `json:"in_review"`
	ReviewedRatio     float64    `json:"reviewed_ratio"`
	TotalReviewers    int        `json:"total_reviewers"`
	TotalAssertions   int        `json:"total_assertions"`
	OpenConflicts     int        `json:"open_conflicts"`
	Arbitrations      int        `json:"arbitration_count"`
	ActiveLeases      int        `json:"active_leases"`
	LastExportAt      *time.Time `json:"last_export_at"`
}

type ImportDocumentsRequest struct {
	Documents []DocumentDTO `json:"documents"`
}

type ImportFailureDTO struct {
	Position   int    `json:"position"`
	DocumentID string `json:"document_id,omitempty"`
	Message    string `json:"message"`
}

type ImportDocumentsResponse struct {
	Imported  int                `json:"imported"`
	Merged    int                `json:"merged"`
	Unchanged int                `json:"unchanged"`
	Failed    int                `json:"failed"`
	Errors    []ImportFailureDTO `json:"errors"`
}

type VocabularyTermDTO struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type VocabularyResponse struct {
	Predicates  []VocabularyTermDTO `json:"predicates"`
	EntityTypes []VocabularyTermDTO `json:"entity_types"`
}
