package provision

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/fortressi/provision/set"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/btree"
)

// StepLedger is the durable record of per-step status for one transaction.
//
// Every transition is written through to the Store before the method
// returns, so a crash between two transitions loses at most the step that
// was in flight.
type StepLedger struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	state *TransactionState
	index *btree.Map[string, int]
}

// LedgerOption customizes a StepLedger.
type LedgerOption func(*StepLedger)

// WithLedgerLogger sets the ledger's logger.
func WithLedgerLogger(logger zerolog.Logger) LedgerOption {
	return func(l *StepLedger) {
		l.logger = logger
	}
}

// WithLedgerClock overrides the time source used for timestamps.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *StepLedger) {
		l.now = now
	}
}

// NewStepLedger creates a ledger persisting to store.
func NewStepLedger(store Store, opts ...LedgerOption) *StepLedger {
	l := &StepLedger{
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize creates and persists a fresh transaction with every step
// pending. Step order is fixed from here on.
func (l *StepLedger) Initialize(ctx context.Context, defs []StepDefinition, meta Metadata) error {
	seen := set.Of[string]()
	steps := make([]Step, 0, len(defs))
	now := l.now()
	for _, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("step %q has an empty id", def.Description)
		}
		if !seen.Insert(def.ID) {
			return fmt.Errorf("duplicate step id %s", def.ID)
		}
		steps = append(steps, Step{
			ID:          def.ID,
			Description: def.Description,
			Status:      StepPending,
			Timestamp:   now,
		})
	}

	configuration := make(map[string]any, len(meta.Configuration))
	for k, v := range meta.Configuration {
		configuration[k] = v
	}

	state := &TransactionState{
		ID:               uuid.New().String(),
		StartedAt:        now,
		UpdatedAt:        now,
		Mode:             meta.Mode,
		NodeType:         meta.NodeType,
		TotalSteps:       len(steps),
		CurrentStepIndex: 0,
		Steps:            steps,
		Configuration:    configuration,
	}
	if err := l.store.Save(ctx, *state); err != nil {
		return fmt.Errorf("failed to save initial state: %w", err)
	}

	l.setState(state)
	l.logger.Info().Str("transaction", state.ID).Int("steps", len(steps)).Msg("transaction initialized")
	return nil
}

// Load reads the persisted transaction. It returns false, nil when there is
// none, and an error when the persisted copies exist but cannot be read.
func (l *StepLedger) Load(ctx context.Context) (bool, error) {
	state, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTransaction) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load state: %w", err)
	}
	if len(state.Steps) != state.TotalSteps {
		return false, fmt.Errorf("%w: %d steps recorded, %d expected", ErrCorruptState, len(state.Steps), state.TotalSteps)
	}
	if state.Configuration == nil {
		state.Configuration = make(map[string]any)
	}

	l.setState(state)
	l.logger.Info().Str("transaction", state.ID).Float64("progress", l.Progress()).Msg("transaction loaded")
	return true, nil
}

// Loaded reports whether the ledger holds a transaction.
func (l *StepLedger) Loaded() bool {
	return l.state != nil
}

func (l *StepLedger) setState(state *TransactionState) {
	index := btree.NewMap[string, int](8)
	for i, step := range state.Steps {
		index.Set(step.ID, i)
	}
	l.state = state
	l.index = index
}

// StartStep marks the step in_progress.
func (l *StepLedger) StartStep(ctx context.Context, id string) error {
	return l.transition(ctx, id, StepInProgress, func(s *Step, i int) {
		l.state.CurrentStepIndex = i
		s.Error = ""
	})
}

// CompleteStep marks the step completed and merges metadata into it.
func (l *StepLedger) CompleteStep(ctx context.Context, id string, metadata map[string]any) error {
	return l.transition(ctx, id, StepCompleted, func(s *Step, _ int) {
		s.mergeMetadata(metadata)
	})
}

// FailStep marks the step failed with cause.
func (l *StepLedger) FailStep(ctx context.Context, id string, cause error, metadata map[string]any) error {
	return l.transition(ctx, id, StepFailed, func(s *Step, _ int) {
		if cause != nil {
			s.Error = cause.Error()
		}
		s.mergeMetadata(metadata)
	})
}

// SkipStep marks the step skipped, recording reason in its metadata.
func (l *StepLedger) SkipStep(ctx context.Context, id, reason string) error {
	return l.transition(ctx, id, StepSkipped, func(s *Step, _ int) {
		if reason != "" {
			s.mergeMetadata(map[string]any{"skipReason": reason})
		}
	})
}

// transition applies a status change, stamps it and writes it through.
func (l *StepLedger) transition(ctx context.Context, id string, next StepStatus, mutate func(*Step, int)) error {
	if l.state == nil {
		return ErrNotInitialized
	}
	i, ok := l.index.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, id)
	}

	step := &l.state.Steps[i]
	if !step.Status.canTransition(next) {
		return &IllegalTransitionError{StepID: id, From: step.Status, To: next}
	}

	// memory only moves once the store has the new state
	prevStep := *step
	prevStep.Metadata = maps.Clone(step.Metadata)
	prevUpdated, prevIndex := l.state.UpdatedAt, l.state.CurrentStepIndex

	now := l.now()
	step.Status = next
	step.Timestamp = now
	if mutate != nil {
		mutate(step, i)
	}
	l.state.UpdatedAt = now

	if err := l.store.Save(ctx, *l.state); err != nil {
		*step = prevStep
		l.state.UpdatedAt = prevUpdated
		l.state.CurrentStepIndex = prevIndex
		return fmt.Errorf("failed to persist step %s: %w", id, err)
	}
	l.logger.Debug().Str("step", step.Description).Str("status", next.String()).Msg("step transition")
	return nil
}

// UpdateConfiguration merges values into the transaction configuration and
// persists it.
func (l *StepLedger) UpdateConfiguration(ctx context.Context, values map[string]any) error {
	if l.state == nil {
		return ErrNotInitialized
	}
	if len(values) == 0 {
		return nil
	}
	prevConfig, prevUpdated := l.state.Configuration, l.state.UpdatedAt

	configuration := make(map[string]any, len(prevConfig)+len(values))
	maps.Copy(configuration, prevConfig)
	maps.Copy(configuration, values)
	l.state.Configuration = configuration
	l.state.UpdatedAt = l.now()

	if err := l.store.Save(ctx, *l.state); err != nil {
		l.state.Configuration = prevConfig
		l.state.UpdatedAt = prevUpdated
		return fmt.Errorf("failed to persist configuration: %w", err)
	}
	return nil
}

// PendingSteps returns the steps still to run, in order: pending, failed
// (retryable) and in_progress (interrupted) steps.
func (l *StepLedger) PendingSteps() []Step {
	return l.filter(func(s StepStatus) bool { return s.Runnable() })
}

// CompletedSteps returns the steps whose status is completed.
func (l *StepLedger) CompletedSteps() []Step {
	return l.filter(func(s StepStatus) bool { return s == StepCompleted })
}

func (l *StepLedger) filter(keep func(StepStatus) bool) []Step {
	if l.state == nil {
		return nil
	}
	out := make([]Step, 0, len(l.state.Steps))
	for _, step := range l.state.Steps {
		if keep(step.Status) {
			out = append(out, step)
		}
	}
	return out
}

// DoneCount returns how many steps are completed or skipped.
func (l *StepLedger) DoneCount() int {
	return len(l.filter(func(s StepStatus) bool { return s.Done() }))
}

// TotalSteps returns the number of planned steps.
func (l *StepLedger) TotalSteps() int {
	if l.state == nil {
		return 0
	}
	return l.state.TotalSteps
}

// Progress returns the percentage of steps that are completed or skipped.
func (l *StepLedger) Progress() float64 {
	total := l.TotalSteps()
	if total == 0 {
		return 0
	}
	return float64(l.DoneCount()) / float64(total) * 100
}

// CanResume reports whether the transaction has made some progress and
// still has work left. A fresh or finished transaction is not resumable.
func (l *StepLedger) CanResume() bool {
	return l.DoneCount() > 0 && len(l.PendingSteps()) > 0
}

// Step returns the step with id.
func (l *StepLedger) Step(id string) (Step, bool) {
	if l.state == nil {
		return Step{}, false
	}
	i, ok := l.index.Get(id)
	if !ok {
		return Step{}, false
	}
	return l.state.Steps[i], true
}

// State returns a deep copy of the transaction state, or nil when the
// ledger holds none.
func (l *StepLedger) State() *TransactionState {
	if l.state == nil {
		return nil
	}
	state, err := l.state.Clone()
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to copy transaction state")
		return nil
	}
	return state
}

// Clear deletes the persisted state and forgets the in-memory copy.
func (l *StepLedger) Clear(ctx context.Context) error {
	if err := l.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	l.state = nil
	l.index = nil
	return nil
}
