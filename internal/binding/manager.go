package binding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

// rollbackTimeout bounds the undo writes, which run even when the caller's
// context has been cancelled.
const rollbackTimeout = 10 * time.Second

// auditSource tags entries written by this package.
const auditSource = "binding"

// Store is the part of the entity store the manager reads and writes.
// *plant.SQLiteRepository satisfies it.
type Store interface {
	GetFlower(ctx context.Context, id string) (*plant.Flower, error)
	ListFlowers(ctx context.Context) ([]plant.Flower, error)
	UpdateFlower(ctx context.Context, id string, patch plant.FlowerPatch) (*plant.Flower, error)

	GetSmartPotByID(ctx context.Context, id string) (*plant.SmartPot, error)
	GetSmartPotBySerial(ctx context.Context, serial string) (*plant.SmartPot, error)
	ListSmartPots(ctx context.Context) ([]plant.SmartPot, error)
	ListSmartPotsByActiveFlower(ctx context.Context, flowerID string) ([]plant.SmartPot, error)
	UpdateSmartPot(ctx context.Context, id string, patch plant.SmartPotPatch) (*plant.SmartPot, error)

	GetHousehold(ctx context.Context, id string) (*plant.Household, error)
}

// AuditRecorder persists audit entries. *audit.SQLiteRepository satisfies it.
type AuditRecorder interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the state of the entities an operation touched, as stored
// after the operation.
type Result struct {
	Flower   *plant.Flower   `json:"flower,omitempty"`
	SmartPot *plant.SmartPot `json:"smart_pot,omitempty"`

	// ReleasedFlower / ReleasedPot is the previous partner that lost its binding.
	ReleasedFlower *plant.Flower   `json:"released_flower,omitempty"`
	ReleasedPot    *plant.SmartPot `json:"released_pot,omitempty"`

	// ReassignedFlower / ReassignedPot is the entity that picked up a
	// released partner.
	ReassignedFlower *plant.Flower   `json:"reassigned_flower,omitempty"`
	ReassignedPot    *plant.SmartPot `json:"reassigned_pot,omitempty"`
}

// Manager performs every write to either side of a flower/pot binding.
//
// Thread Safety:
//   - Methods are safe for concurrent use, but concurrent operations on the
//     same flower or pot are not ordered against each other.
type Manager struct {
	store Store

	mu     sync.RWMutex
	audit  AuditRecorder
	logger Logger
}

// NewManager creates a Manager writing through store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for rollbacks and partial failures.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetAuditRecorder enables the audit trail.
func (m *Manager) SetAuditRecorder(recorder AuditRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = recorder
}

func (m *Manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// record writes an audit entry. Audit failures are logged, never returned.
func (m *Manager) record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	m.mu.RLock()
	recorder := m.audit
	m.mu.RUnlock()
	if recorder == nil {
		return
	}

	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     auditSource,
		Details:    details,
	}
	if err := recorder.Create(context.WithoutCancel(ctx), entry); err != nil {
		m.log().Warn("writing binding audit entry failed",
			"action", action,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// getFlower maps the store's not-found signal onto ErrNotFound.
func (m *Manager) getFlower(ctx context.Context, id string) (*plant.Flower, error) {
	f, err := m.store.GetFlower(ctx, id)
	if err != nil {
		return nil, storeError("flower "+id, err)
	}
	return f, nil
}

func (m *Manager) getPotByID(ctx context.Context, id string) (*plant.SmartPot, error) {
	p, err := m.store.GetSmartPotByID(ctx, id)
	if err != nil {
		return nil, storeError("smart pot "+id, err)
	}
	return p, nil
}

func (m *Manager) getPotBySerial(ctx context.Context, serial string) (*plant.SmartPot, error) {
	p, err := m.store.GetSmartPotBySerial(ctx, serial)
	if err != nil {
		return nil, storeError("smart pot with serial "+serial, err)
	}
	return p, nil
}

func (m *Manager) requireHousehold(ctx context.Context, id string) error {
	if _, err := m.store.GetHousehold(ctx, id); err != nil {
		return storeError("household "+id, err)
	}
	return nil
}

func storeError(what string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
	}
	return fmt.Errorf("loading %s: %w", what, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, plant.ErrFlowerNotFound) ||
		errors.Is(err, plant.ErrSmartPotNotFound) ||
		errors.Is(err, plant.ErrHouseholdNotFound)
}

// journal applies the writes of one operation and remembers how to undo them.
type journal struct {
	m  *Manager
	op string

	undo        []undoStep
	flowerIDs   []string
	smartPotIDs []string
}

type undoStep struct {
	desc string
	fn   func(ctx context.Context) error
}

func (m *Manager) begin(op string) *journal {
	return &journal{m: m, op: op}
}

func (j *journal) touchFlower(id string) {
	for _, existing := range j.flowerIDs {
		if existing == id {
			return
		}
	}
	j.flowerIDs = append(j.flowerIDs, id)
}

func (j *journal) touchPot(id string) {
	for _, existing := range j.smartPotIDs {
		if existing == id {
			return
		}
	}
	j.smartPotIDs = append(j.smartPotIDs, id)
}

// updatePot writes patch to pot. The inverse patch is derived from pot's
// current field values.
func (j *journal) updatePot(ctx context.Context, pot *plant.SmartPot, patch plant.SmartPotPatch) (*plant.SmartPot, error) {
	j.touchPot(pot.ID)

	var inverse plant.SmartPotPatch
	if patch.HouseholdID != nil {
		inverse.HouseholdID = plant.Ptr(pot.HouseholdID)
	}
	if patch.ActiveFlowerID != nil {
		inverse.ActiveFlowerID = plant.Ptr(pot.ActiveFlowerID)
	}

	desc := "update smart pot " + pot.ID
	updated, err := j.m.store.UpdateSmartPot(ctx, pot.ID, patch)
	if err != nil {
		return nil, j.fail(ctx, desc, err)
	}

	j.undo = append(j.undo, undoStep{desc: desc, fn: func(ctx context.Context) error {
		_, err := j.m.store.UpdateSmartPot(ctx, pot.ID, inverse)
		return err
	}})
	return updated, nil
}

// updateFlower writes patch to flower, mirroring updatePot.
func (j *journal) updateFlower(ctx context.Context, flower *plant.Flower, patch plant.FlowerPatch) (*plant.Flower, error) {
	j.touchFlower(flower.ID)

	var inverse plant.FlowerPatch
	if patch.Name != nil {
		inverse.Name = plant.Ptr(flower.Name)
	}
	if patch.HouseholdID != nil {
		inverse.HouseholdID = plant.Ptr(flower.HouseholdID)
	}
	if patch.SerialNumber != nil {
		inverse.SerialNumber = plant.Ptr(flower.SerialNumber)
	}

	desc := "update flower " + flower.ID
	updated, err := j.m.store.UpdateFlower(ctx, flower.ID, patch)
	if err != nil {
		return nil, j.fail(ctx, desc, err)
	}

	j.undo = append(j.undo, undoStep{desc: desc, fn: func(ctx context.Context) error {
		_, err := j.m.store.UpdateFlower(ctx, flower.ID, inverse)
		return err
	}})
	return updated, nil
}

// fail undoes every applied write, newest first. It returns the cause when
// the rollback succeeds and a *PartialFailureError when it does not.
func (j *journal) fail(ctx context.Context, desc string, cause error) error {
	logger := j.m.log()
	cause = fmt.Errorf("%s: %w", desc, cause)
	if isNotFound(cause) {
		cause = fmt.Errorf("%w: %w", ErrNotFound, cause)
	}

	if len(j.undo) == 0 {
		return fmt.Errorf("%s: %w", j.op, cause)
	}

	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	var rollbackErrs []error
	for i := len(j.undo) - 1; i >= 0; i-- {
		step := j.undo[i]
		if err := step.fn(rollbackCtx); err != nil {
			rollbackErrs = append(rollbackErrs, fmt.Errorf("undo %s: %w", step.desc, err))
		}
	}
	j.undo = nil

	if len(rollbackErrs) == 0 {
		logger.Warn("binding write failed, rolled back",
			"operation", j.op,
			"flower_ids", j.flowerIDs,
			"smart_pot_ids", j.smartPotIDs,
			"error", cause,
		)
		return fmt.Errorf("%s: %w", j.op, cause)
	}

	pf := &PartialFailureError{
		Op:          j.op,
		FlowerIDs:   append([]string(nil), j.flowerIDs...),
		SmartPotIDs: append([]string(nil), j.smartPotIDs...),
		Cause:       cause,
		RollbackErr: errors.Join(rollbackErrs...),
	}

	logger.Error("binding left inconsistent, manual repair required",
		"operation", j.op,
		"flower_ids", pf.FlowerIDs,
		"smart_pot_ids", pf.SmartPotIDs,
		"error", cause,
		"rollback_error", pf.RollbackErr,
	)

	details := map[string]any{
		"operation":     j.op,
		"flower_ids":    pf.FlowerIDs,
		"smart_pot_ids": pf.SmartPotIDs,
		"error":         cause.Error(),
		"rollback":      pf.RollbackErr.Error(),
	}
	for _, id := range pf.SmartPotIDs {
		j.m.record(ctx, audit.ActionPartialFailure, audit.EntitySmartPot, id, details)
	}
	for _, id := range pf.FlowerIDs {
		j.m.record(ctx, audit.ActionPartialFailure, audit.EntityFlower, id, details)
	}
	return pf
}

// releaseStalePots clears every pot other than keep that still points at
// flowerID. Such pots are left over from interrupted operations; clearing
// them keeps a flower from ever being claimed by two pots.
func (j *journal) releaseStalePots(ctx context.Context, flowerID string, keep ...string) error {
	pots, err := j.m.store.ListSmartPotsByActiveFlower(ctx, flowerID)
	if err != nil {
		return j.fail(ctx, "list pots bound to flower "+flowerID, err)
	}

	for i := range pots {
		pot := &pots[i]
		if contains(keep, pot.ID) {
			continue
		}
		j.m.log().Warn("releasing stale smart pot reference",
			"operation", j.op,
			"flower_id", flowerID,
			"smart_pot_id", pot.ID,
		)
		if _, err := j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr("")}); err != nil {
			return err
		}
	}
	return nil
}

// succeed records the completed operation.
func (j *journal) succeed(ctx context.Context, action string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["operation"] = j.op
	details["flower_ids"] = j.flowerIDs
	details["smart_pot_ids"] = j.smartPotIDs

	entityType, entityID := audit.EntityFlower, ""
	if len(j.flowerIDs) > 0 {
		entityID = j.flowerIDs[0]
	} else if len(j.smartPotIDs) > 0 {
		entityType, entityID = audit.EntitySmartPot, j.smartPotIDs[0]
	}
	if entityID == "" {
		return
	}

	j.m.log().Info("binding operation completed",
		"operation", j.op,
		"flower_ids", j.flowerIDs,
		"smart_pot_ids", j.smartPotIDs,
	)
	j.m.record(ctx, action, entityType, entityID, details)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
