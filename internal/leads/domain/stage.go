// Package domain holds the pure lead lifecycle model: sub-state enums and
// the derivation of a lead's human-facing stage. No I/O, no dependencies.
package domain

// Status is the lead's primary lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusContacted  Status = "contacted"
	StatusQualified  Status = "qualified"
	StatusClosed     Status = "closed"
	StatusInvalid    Status = "invalid"
)

// AutomationStatus tracks the auto-reply automation on a lead.
type AutomationStatus string

const (
	AutomationPending    AutomationStatus = "pending"
	AutomationProcessing AutomationStatus = "processing"
	AutomationCompleted  AutomationStatus = "completed"
	AutomationFailed     AutomationStatus = "failed"
	AutomationSkipped    AutomationStatus = "skipped"
)

// IntentionStatus tracks the AI intention classification on a lead.
// The empty string means classification has not started.
type IntentionStatus string

const (
	IntentionNone         IntentionStatus = ""
	IntentionPending      IntentionStatus = "pending"
	IntentionFinalized    IntentionStatus = "finalized"
	IntentionSentToClient IntentionStatus = "sent_to_client"
)

// Well-known intention labels. Intention is free-form; these are the values
// the engine itself produces or branches on.
const (
	LabelInterested    = "interested"
	LabelNotInterested = "not_interested"
	LabelNoResponse    = "no_response"
)

// Stage is the derived, read-only classification of a lead's lifecycle
// position. It is never stored; always computed from the sub-states.
type Stage string

const (
	StageInbox         Stage = "INBOX"
	StageQualifying    Stage = "QUALIFYING"
	StageSalesReady    Stage = "SALES_READY"
	StageNotInterested Stage = "NOT_INTERESTED"
	StageClosed        Stage = "CLOSED"
)

var knownStages = map[Stage]struct{}{
	StageInbox:         {},
	StageQualifying:    {},
	StageSalesReady:    {},
	StageNotInterested: {},
	StageClosed:        {},
}

// IsKnownStage reports whether stage is one of the five defined stages.
func IsKnownStage(stage Stage) bool {
	_, ok := knownStages[stage]
	return ok
}

// StageInput is the tuple of lead sub-states the stage derives from.
type StageInput struct {
	Status           Status
	AutomationStatus AutomationStatus
	IntentionStatus  IntentionStatus
	Intention        string
}

// DeriveStage computes the lead's stage. Rules are evaluated in order and
// the first match wins; every input combination has a defined output.
//
//  1. closed/invalid status is terminal and dominates everything else.
//  2. A finalized (or already delivered) intention splits on the label:
//     interested leads are sales-ready, any other label is not interested.
//  3. A pending intention or in-flight automation means qualifying.
//  4. Anything else sits in the inbox.
func DeriveStage(in StageInput) Stage {
	if in.Status == StatusClosed || in.Status == StatusInvalid {
		return StageClosed
	}

	if in.IntentionStatus == IntentionFinalized || in.IntentionStatus == IntentionSentToClient {
		if in.Intention == LabelInterested {
			return StageSalesReady
		}
		return StageNotInterested
	}

	if in.IntentionStatus == IntentionPending || in.AutomationStatus == AutomationProcessing {
		return StageQualifying
	}

	return StageInbox
}

// CanRetryAutomation reports whether the automation may be re-triggered for
// a lead in this stage. Only inbox leads qualify.
func (s Stage) CanRetryAutomation() bool {
	return s == StageInbox
}

// IsTerminal reports whether the stage is an end state of the lifecycle.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageSalesReady, StageNotInterested, StageClosed:
		return true
	default:
		return false
	}
}
