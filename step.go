package provision

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepStatus represents the persistent status of a step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepInProgress
	StepCompleted
	StepFailed
	StepSkipped
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepInProgress:
		return "in_progress"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Unknown StepStatus: %d", int(s))
	}
}

// ParseStepStatus converts the persisted form back into a StepStatus.
func ParseStepStatus(str string) (StepStatus, error) {
	switch str {
	case "pending":
		return StepPending, nil
	case "in_progress":
		return StepInProgress, nil
	case "completed":
		return StepCompleted, nil
	case "failed":
		return StepFailed, nil
	case "skipped":
		return StepSkipped, nil
	default:
		return StepPending, fmt.Errorf("invalid StepStatus: %s", str)
	}
}

// MarshalJSON implements the json.Marshaler interface for StepStatus.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for StepStatus.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status, err := ParseStepStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Done reports whether the step must not be executed again.
func (s StepStatus) Done() bool {
	return s == StepCompleted || s == StepSkipped
}

// Runnable reports whether the step is due for (re-)execution. An
// in_progress step was interrupted by a crash and is retried.
func (s StepStatus) Runnable() bool {
	return s == StepPending || s == StepFailed || s == StepInProgress
}

// canTransition reports whether a step may move from s to next.
func (s StepStatus) canTransition(next StepStatus) bool {
	switch s {
	case StepPending:
		return next == StepInProgress
	case StepInProgress:
		switch next {
		case StepInProgress, StepCompleted, StepFailed, StepSkipped:
			return true
		}
	case StepFailed:
		return next == StepInProgress
	}
	return false
}

// Step is one planned unit of work in a transaction.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Status      StepStatus     `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StepDefinition is the input used to plan a step.
type StepDefinition struct {
	ID          string
	Description string
}

// mergeMetadata folds values into the step's metadata without dropping
// existing keys.
func (s *Step) mergeMetadata(values map[string]any) {
	if len(values) == 0 {
		return
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any, len(values))
	}
	for k, v := range values {
		s.Metadata[k] = v
	}
}

// TransactionState is the durable record of one provisioning attempt.
type TransactionState struct {
	ID               string         `json:"id"`
	StartedAt        time.Time      `json:"startedAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Mode             string         `json:"mode,omitempty"`
	NodeType         string         `json:"nodeType,omitempty"`
	TotalSteps       int            `json:"totalSteps"`
	CurrentStepIndex int            `json:"currentStepIndex"`
	Steps            []Step         `json:"steps"`
	Configuration    map[string]any `json:"configuration,omitempty"`
}

// Clone returns a deep copy of the state. Metadata and configuration values
// are round-tripped through JSON, which is also how they are persisted.
func (t *TransactionState) Clone() (*TransactionState, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	var out TransactionState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &out, nil
}
