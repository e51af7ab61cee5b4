package entities

import "time"

// Submission is the immutable record of one committed review.
type Submission struct {
	SubmissionID    string
	DocumentID      string
	ReviewerID      string
	LeaseAcquiredAt time.Time
	DecisionCount   int
	AddedCount      int
	CommittedAt     time.Time
}

type FinalStatus string

const (
	FinalStatusAccept     FinalStatus = "accept"
	FinalStatusReject     FinalStatus = "reject"
	FinalStatusModify     FinalStatus = "modify"
	FinalStatusUncertain  FinalStatus = "uncertain"
	FinalStatusUnresolved FinalStatus = "unresolved"
)

func FinalStatusFromAction(action Action) FinalStatus {
	switch action.Comparable() {
	case ActionAccept:
		return FinalStatusAccept
	case ActionReject:
		return FinalStatusReject
	case ActionModify:
		return FinalStatusModify
	case ActionUncertain:
		return FinalStatusUncertain
	default:
		return FinalStatusUnresolved
	}
}

type ConsensusBasis string

const (
	ConsensusBasisArbitration    ConsensusBasis = "arbitration"
	ConsensusBasisAgreement      ConsensusBasis = "agreement"
	ConsensusBasisSingleReviewer ConsensusBasis = "single_reviewer"
	ConsensusBasisNone           ConsensusBasis = ""
)

// ConsensusRecord is one exported, finalized assertion.
type ConsensusRecord struct {
	AssertionKey  string
	DocumentID    string
	SentenceIndex int
	SentenceText  string
	AssertionContent
	IsNew       bool
	FinalStatus FinalStatus
	Basis       ConsensusBasis
	Reviewers   []string
	AdminID     string
	Comment     string
	DecidedAt   time.Time
}

// ConsensusSnapshot describes a published, immutable export artifact.
type ConsensusSnapshot struct {
	SnapshotID  string
	Path        string
	RecordCount int
	SHA256      string
	CreatedBy   string
	CreatedAt   time.Time
}
