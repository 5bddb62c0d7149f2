package domain

import "time"

// ProcessingStatus is the document lifecycle state machine:
//
//	pending → parsing → chunking → embedding → completed
//
// with failed reachable from any non-terminal state. No transition skips a
// stage and the terminal states admit no further transitions.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusParsing   ProcessingStatus = "parsing"
	StatusChunking  ProcessingStatus = "chunking"
	StatusEmbedding ProcessingStatus = "embedding"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// next maps each state to its single forward successor.
var next = map[ProcessingStatus]ProcessingStatus{
	StatusPending:   StatusParsing,
	StatusParsing:   StatusChunking,
	StatusChunking:  StatusEmbedding,
	StatusEmbedding: StatusCompleted,
}

// CanTransition reports whether moving from s to target is a legal step.
func (s ProcessingStatus) CanTransition(target ProcessingStatus) bool {
	if s.Terminal() {
		return false
	}
	if target == StatusFailed {
		return true
	}
	return next[s] == target
}

// ResetProcessing returns the document to pending for a reprocessing
// run, clearing the error and lifecycle timestamps of the previous run.
func (d *Document) ResetProcessing() {
	d.Status = StatusPending
	d.ProcessingError = ""
	d.ProcessingStartedAt = nil
	d.ProcessingCompletedAt = nil
	d.UpdatedAt = time.Now().UTC()
}

// Transition moves the document to the target status, stamping the
// processing timestamps. Returns ErrInvalidTransition for illegal moves.
func (d *Document) Transition(target ProcessingStatus, errMsg string) error {
	if !d.Status.CanTransition(target) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	d.Status = target
	if target == StatusParsing && d.ProcessingStartedAt == nil {
		d.ProcessingStartedAt = &now
	}
	if target.Terminal() {
		d.ProcessingCompletedAt = &now
	}
	if errMsg != "" {
		d.ProcessingError = errMsg
	}
	d.UpdatedAt = now
	return nil
}
