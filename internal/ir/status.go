package ir

import (
	"slices"
	"time"
)

// AnalysisState is the lifecycle state of an analysis.
type AnalysisState string

const (
	StatePending    AnalysisState = "Pending"
	StateProcessing AnalysisState = "Processing"
	StateCompleted  AnalysisState = "Completed"
	StateFailed     AnalysisState = "Failed"
	StateCancelled  AnalysisState = "Cancelled"
)

// Terminal reports whether no further transition can happen from s.
func (s AnalysisState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrorKind classifies a failed or cancelled analysis.
type ErrorKind string

const (
	ErrorValidation        ErrorKind = "ValidationError"
	ErrorRuleCompilation   ErrorKind = "RuleCompilationError"
	ErrorResourceExhausted ErrorKind = "ResourceExhausted"
	ErrorTimeout           ErrorKind = "Timeout"
	ErrorCancelled         ErrorKind = "Cancelled"
	ErrorInternal          ErrorKind = "InternalError"
)

// ErrorInfo is the caller-visible cause of a terminal failure.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Pipeline steps, in the order an analysis visits them.
const (
	StepQueued        = "queued"
	StepResolveConfig = "resolve-config"
	StepAggregate     = "aggregate"
	StepDedupe        = "dedupe"
	StepComplete      = "complete"
)

// AnalysisStatus is the pollable state of one analysis.
type AnalysisStatus struct {
	ID                        string        `json:"id"`
	State                     AnalysisState `json:"state"`
	ProgressPct               int           `json:"progressPct"`
	CurrentStep               string        `json:"currentStep"`
	Steps                     []string      `json:"steps,omitempty"`
	StartedAt                 time.Time     `json:"startedAt"`
	CompletedAt               *time.Time    `json:"completedAt,omitempty"`
	QueuePosition             *int          `json:"queuePosition,omitempty"` // 1-based, Pending only
	EstimatedTimeRemainingSec *int          `json:"estimatedTimeRemainingSec,omitempty"`
	Error                     *ErrorInfo    `json:"error,omitempty"`
}

// Clone returns a deep copy of s.
func (s AnalysisStatus) Clone() AnalysisStatus {
	out := s
	out.Steps = slices.Clone(s.Steps)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.QueuePosition != nil {
		v := *s.QueuePosition
		out.QueuePosition = &v
	}
	if s.EstimatedTimeRemainingSec != nil {
		v := *s.EstimatedTimeRemainingSec
		out.EstimatedTimeRemainingSec = &v
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
