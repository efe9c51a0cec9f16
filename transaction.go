package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// TransactionResult reports the outcome of Execute or Resume.
type TransactionResult struct {
	Success        bool
	CompletedSteps int
	TotalSteps     int
	// Error is the failure that stopped forward progress. It is never a
	// rollback error; those are listed in RollbackErrors.
	Error          error
	CanResume      bool
	RollbackErrors []error
}

// StepEvent is delivered to observers after each ledger transition made by
// the manager.
type StepEvent struct {
	Step  Step
	Index int
	Total int
}

// Observer receives step events, e.g. to drive a progress display.
type Observer func(StepEvent)

// TransactionManager binds operations to ledger-tracked steps and drives
// execution, compensation and resume.
type TransactionManager struct {
	ledger     *StepLedger
	operations *xsync.MapOf[string, Operation]
	logger     zerolog.Logger
	observers  []Observer
}

// Option customizes a TransactionManager.
type Option func(*transactionConfig)

type transactionConfig struct {
	logger    zerolog.Logger
	observers []Observer
	now       func() time.Time
}

// WithLogger sets the logger used by the manager and its ledger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *transactionConfig) {
		c.logger = logger
	}
}

// WithObserver registers an observer for step transitions.
func WithObserver(observer Observer) Option {
	return func(c *transactionConfig) {
		c.observers = append(c.observers, observer)
	}
}

// WithClock overrides the ledger time source.
func WithClock(now func() time.Time) Option {
	return func(c *transactionConfig) {
		c.now = now
	}
}

// NewTransactionManager creates a manager persisting to store.
func NewTransactionManager(store Store, opts ...Option) *TransactionManager {
	cfg := transactionConfig{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &TransactionManager{
		ledger: NewStepLedger(store,
			WithLedgerLogger(cfg.logger),
			WithLedgerClock(cfg.now),
		),
		operations: xsync.NewMapOf[string, Operation](),
		logger:     cfg.logger,
		observers:  cfg.observers,
	}
}

// Initialize plans a fresh transaction: one pending step per operation, in
// the given order.
func (m *TransactionManager) Initialize(ctx context.Context, ops []Operation, meta Metadata) error {
	m.operations.Clear()

	defs := make([]StepDefinition, len(ops))
	for i, op := range ops {
		id := uuid.New().String()
		defs[i] = StepDefinition{ID: id, Description: describe(op)}
		m.operations.Store(id, op)
	}

	if err := m.ledger.Initialize(ctx, defs, meta); err != nil {
		m.operations.Clear()
		return err
	}
	return nil
}

// LoadExisting reads a persisted transaction and binds ops to its steps by
// position. Step ids are not derived from the operations, so ops must be
// structurally identical to the list the transaction was initialized with;
// a different length or description yields ErrPlanMismatch. It returns false
// when no transaction is persisted.
func (m *TransactionManager) LoadExisting(ctx context.Context, ops []Operation) (bool, error) {
	found, err := m.ledger.Load(ctx)
	if err != nil || !found {
		return false, err
	}

	state := m.ledger.state
	if len(ops) != len(state.Steps) {
		return false, fmt.Errorf("%w: %d operations supplied, %d steps persisted", ErrPlanMismatch, len(ops), len(state.Steps))
	}

	m.operations.Clear()
	for i, op := range ops {
		step := state.Steps[i]
		if desc := describe(op); desc != step.Description {
			m.operations.Clear()
			return false, fmt.Errorf("%w: step %d is %q, operation is %q", ErrPlanMismatch, i, step.Description, desc)
		}
		m.operations.Store(step.ID, op)
	}
	return true, nil
}

// Execute runs every pending step in order.
//
// For each step the ledger is moved to in_progress, then the operation's
// idempotency probe, validation and execution run. The first validation or
// execution failure marks the step failed and rolls back, in reverse order,
// every operation executed by this call; rollback errors are logged and do
// not stop the remaining rollbacks. Rollback does not rewrite step status.
//
// The returned error is reserved for conditions that make the ledger
// untrustworthy (not initialized, unbound step, persistence failure). Step
// failures are reported in TransactionResult.Error.
//
// Cancellation of ctx is honoured between steps only: the remaining steps
// stay pending for a later Resume and nothing is rolled back.
func (m *TransactionManager) Execute(ctx context.Context) (TransactionResult, error) {
	if !m.ledger.Loaded() {
		return TransactionResult{}, ErrNotInitialized
	}

	var executed []boundOperation
	var failure error

	for _, step := range m.ledger.PendingSteps() {
		if err := ctx.Err(); err != nil {
			m.logger.Warn().Err(err).Str("step", step.Description).Msg("interrupted at step boundary")
			return m.result(err, nil), nil
		}

		op, ok := m.operations.Load(step.ID)
		if !ok {
			return m.result(nil, nil), fmt.Errorf("%w: %s (%s)", ErrOperationNotBound, step.Description, step.ID)
		}

		stepFailure, err := m.runStep(ctx, step, op, &executed)
		if err != nil {
			rollbackErrs := m.rollback(ctx, executed)
			return m.result(err, rollbackErrs), err
		}
		if stepFailure != nil {
			failure = stepFailure
			break
		}
	}

	if failure != nil {
		rollbackErrs := m.rollback(ctx, executed)
		return m.result(failure, rollbackErrs), nil
	}

	m.logger.Info().Int("steps", m.ledger.TotalSteps()).Msg("transaction completed")
	return m.result(nil, nil), nil
}

// runStep drives one step through the ledger. It returns the step failure,
// if any, and separately a fatal ledger error.
func (m *TransactionManager) runStep(ctx context.Context, step Step, op Operation, executed *[]boundOperation) (failure, fatal error) {
	name := step.Description
	logger := m.logger.With().Str("step", name).Logger()

	if err := m.ledger.StartStep(ctx, step.ID); err != nil {
		return nil, err
	}
	m.notify(step.ID)

	if op.IsAlreadyDone(ctx) {
		logger.Info().Msg("already done, skipping")
		if err := m.ledger.SkipStep(ctx, step.ID, "already done"); err != nil {
			return nil, err
		}
		m.notify(step.ID)
		return nil, nil
	}

	if ok, err := op.Validate(ctx); err != nil || !ok {
		failure = ValidationFailed(name, err)
		return failure, m.failStep(ctx, logger, step.ID, failure)
	}

	value, err := op.Execute(ctx)
	if err != nil {
		failure = ExecutionFailed(name, err)
		return failure, m.failStep(ctx, logger, step.ID, failure)
	}
	*executed = append(*executed, boundOperation{name: name, op: op})

	if err := m.ledger.CompleteStep(ctx, step.ID, resultMetadata(value)); err != nil {
		return nil, err
	}
	if reporter, ok := op.(ConfigurationReporter); ok {
		if err := m.ledger.UpdateConfiguration(ctx, reporter.DiscoveredConfiguration()); err != nil {
			return nil, err
		}
	}
	logger.Info().Msg("step completed")
	m.notify(step.ID)
	return nil, nil
}

func (m *TransactionManager) failStep(ctx context.Context, logger zerolog.Logger, id string, failure error) error {
	logger.Error().Err(failure).Msg("step failed")
	if err := m.ledger.FailStep(ctx, id, failure, nil); err != nil {
		return err
	}
	m.notify(id)
	return nil
}

func (m *TransactionManager) rollback(ctx context.Context, executed []boundOperation) []error {
	if len(executed) == 0 {
		return nil
	}
	m.logger.Warn().Int("operations", len(executed)).Msg("rolling back executed operations")
	// compensation still runs when the caller's context was cancelled
	return compensate(context.WithoutCancel(ctx), m.logger, executed)
}

func (m *TransactionManager) result(failure error, rollbackErrs []error) TransactionResult {
	res := TransactionResult{
		Success:        failure == nil,
		CompletedSteps: m.ledger.DoneCount(),
		TotalSteps:     m.ledger.TotalSteps(),
		Error:          failure,
		RollbackErrors: rollbackErrs,
	}
	if failure != nil {
		res.CanResume = m.ledger.CanResume()
	}
	return res
}

func (m *TransactionManager) notify(id string) {
	if len(m.observers) == 0 {
		return
	}
	step, ok := m.ledger.Step(id)
	if !ok {
		return
	}
	index, _ := m.ledger.index.Get(id)
	event := StepEvent{Step: step, Index: index, Total: m.ledger.TotalSteps()}
	for _, observer := range m.observers {
		observer(event)
	}
}

// Resume continues a loaded transaction from its first step that is not
// completed or skipped; failed steps are retried. It returns
// ErrNoTransaction when no transaction has been loaded, rather than
// silently starting a fresh one.
func (m *TransactionManager) Resume(ctx context.Context) (TransactionResult, error) {
	if !m.ledger.Loaded() {
		return TransactionResult{}, ErrNoTransaction
	}
	m.logger.Info().Int("pending", len(m.ledger.PendingSteps())).Msg("resuming transaction")
	return m.Execute(ctx)
}

// Clear deletes the persisted state and its backup and forgets the bound
// operations. Call it only after a successful Execute.
func (m *TransactionManager) Clear(ctx context.Context) error {
	if err := m.ledger.Clear(ctx); err != nil {
		return err
	}
	m.operations.Clear()
	return nil
}

// Progress returns the percentage of steps completed or skipped.
func (m *TransactionManager) Progress() float64 {
	return m.ledger.Progress()
}

// CanResume reports whether the loaded transaction is resumable.
func (m *TransactionManager) CanResume() bool {
	return m.ledger.CanResume()
}

// State returns a copy of the transaction state, or nil.
func (m *TransactionManager) State() *TransactionState {
	return m.ledger.State()
}

// Ledger exposes the underlying step ledger for inspection.
func (m *TransactionManager) Ledger() *StepLedger {
	return m.ledger
}

// IsNoTransaction reports whether err means no transaction is persisted.
func IsNoTransaction(err error) bool {
	return errors.Is(err, ErrNoTransaction)
}
