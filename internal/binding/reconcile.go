package binding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

// Issue kinds found by Reconcile.
const (
	// IssueDanglingPot is a pot referencing a flower that no longer exists.
	IssueDanglingPot = "dangling_pot"
	// IssueDuplicateBinding is a flower referenced by more than one pot.
	IssueDuplicateBinding = "duplicate_binding"
	// IssueHalfBinding is a pot referencing a flower whose serial number
	// does not point back at it.
	IssueHalfBinding = "half_binding"
	// IssueStaleSerial is a flower serial number that no pot confirms.
	IssueStaleSerial = "stale_serial"
)

// Issue is one broken binding and what was done about it.
type Issue struct {
	Kind        string `json:"kind"`
	FlowerID    string `json:"flower_id,omitempty"`
	SmartPotID  string `json:"smart_pot_id,omitempty"`
	Description string `json:"description"`
	Repaired    bool   `json:"repaired"`
	Error       string `json:"error,omitempty"`
}

// Report summarises a Reconcile run.
type Report struct {
	DryRun         bool      `json:"dry_run"`
	FlowersChecked int       `json:"flowers_checked"`
	PotsChecked    int       `json:"smart_pots_checked"`
	Issues         []Issue   `json:"issues"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Repaired returns the number of issues fixed during the run.
func (r *Report) Repaired() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Repaired {
			n++
		}
	}
	return n
}

// Reconcile sweeps every flower and pot and repairs bindings that violate
// the pairing rule: each pot referencing a flower must be the only such pot,
// and that flower must carry the pot's serial number.
//
// With dryRun set the issues are reported but nothing is written. A failed
// repair is recorded on its issue and the sweep continues.
func (m *Manager) Reconcile(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{DryRun: dryRun, Issues: []Issue{}, StartedAt: time.Now().UTC()}

	flowers, err := m.store.ListFlowers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing flowers: %w", err)
	}
	pots, err := m.store.ListSmartPots(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing smart pots: %w", err)
	}
	report.FlowersChecked = len(flowers)
	report.PotsChecked = len(pots)

	flowerByID := make(map[string]*plant.Flower, len(flowers))
	for i := range flowers {
		flowerByID[flowers[i].ID] = &flowers[i]
	}
	claims := make(map[string][]*plant.SmartPot)
	for i := range pots {
		if pots[i].Occupied() {
			claims[pots[i].ActiveFlowerID] = append(claims[pots[i].ActiveFlowerID], &pots[i])
		}
	}

	flowerIDs := make([]string, 0, len(claims))
	for id := range claims {
		flowerIDs = append(flowerIDs, id)
	}
	sort.Strings(flowerIDs)

	// confirmed holds flowers left with exactly one pot pointing at them.
	confirmed := make(map[string]bool, len(claims))

	for _, flowerID := range flowerIDs {
		claimants := claims[flowerID]
		flower, ok := flowerByID[flowerID]
		if !ok {
			for _, pot := range claimants {
				m.repair(ctx, report, Issue{
					Kind:        IssueDanglingPot,
					FlowerID:    flowerID,
					SmartPotID:  pot.ID,
					Description: fmt.Sprintf("smart pot %s references missing flower %s", pot.SerialNumber, flowerID),
				}, m.clearPot(pot.ID))
			}
			continue
		}

		keep := claimants[0]
		if len(claimants) > 1 {
			keep = nil
			for _, pot := range claimants {
				if pot.SerialNumber == flower.SerialNumber {
					keep = pot
					break
				}
			}
			for _, pot := range claimants {
				if pot == keep {
					continue
				}
				m.repair(ctx, report, Issue{
					Kind:        IssueDuplicateBinding,
					FlowerID:    flowerID,
					SmartPotID:  pot.ID,
					Description: fmt.Sprintf("smart pot %s also references flower %s", pot.SerialNumber, flowerID),
				}, m.clearPot(pot.ID))
			}
			if keep == nil {
				continue
			}
		}

		confirmed[flowerID] = true
		if flower.SerialNumber != keep.SerialNumber {
			m.repair(ctx, report, Issue{
				Kind:       IssueHalfBinding,
				FlowerID:   flowerID,
				SmartPotID: keep.ID,
				Description: fmt.Sprintf("flower %s has serial %q but smart pot %s references it",
					flowerID, flower.SerialNumber, keep.SerialNumber),
			}, m.setFlowerSerial(flowerID, keep.SerialNumber))
		}
	}

	for i := range flowers {
		flower := &flowers[i]
		if !flower.HasPot() || confirmed[flower.ID] {
			continue
		}
		m.repair(ctx, report, Issue{
			Kind:        IssueStaleSerial,
			FlowerID:    flower.ID,
			Description: fmt.Sprintf("flower %s has serial %q but no smart pot references it", flower.ID, flower.SerialNumber),
		}, m.setFlowerSerial(flower.ID, ""))
	}

	report.CompletedAt = time.Now().UTC()
	m.log().Info("binding reconcile completed",
		"dry_run", dryRun,
		"flowers", report.FlowersChecked,
		"smart_pots", report.PotsChecked,
		"issues", len(report.Issues),
		"repaired", report.Repaired(),
	)
	return report, nil
}

type repairFunc func(ctx context.Context) error

func (m *Manager) clearPot(id string) repairFunc {
	return func(ctx context.Context) error {
		_, err := m.store.UpdateSmartPot(ctx, id, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr("")})
		return err
	}
}

func (m *Manager) setFlowerSerial(id, serial string) repairFunc {
	return func(ctx context.Context) error {
		_, err := m.store.UpdateFlower(ctx, id, plant.FlowerPatch{SerialNumber: plant.Ptr(serial)})
		return err
	}
}

// repair appends issue to the report, applying fix unless the run is dry.
func (m *Manager) repair(ctx context.Context, report *Report, issue Issue, fix repairFunc) {
	logger := m.log()
	if report.DryRun {
		logger.Warn("binding issue found", "kind", issue.Kind, "description", issue.Description)
		report.Issues = append(report.Issues, issue)
		return
	}

	if err := fix(ctx); err != nil {
		issue.Error = err.Error()
		logger.Error("binding repair failed",
			"kind", issue.Kind,
			"flower_id", issue.FlowerID,
			"smart_pot_id", issue.SmartPotID,
			"error", err,
		)
		report.Issues = append(report.Issues, issue)
		return
	}

	issue.Repaired = true
	report.Issues = append(report.Issues, issue)
	logger.Warn("binding repaired", "kind", issue.Kind, "description", issue.Description)

	entityType, entityID := audit.EntityFlower, issue.FlowerID
	if issue.SmartPotID != "" {
		entityType, entityID = audit.EntitySmartPot, issue.SmartPotID
	}
	m.record(ctx, audit.ActionRepair, entityType, entityID, map[string]any{
		"kind":        issue.Kind,
		"flower_id":   issue.FlowerID,
		"description": issue.Description,
	})
}

// RunReconcileLoop calls Reconcile every interval until ctx is cancelled.
func (m *Manager) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Reconcile(ctx, false); err != nil && ctx.Err() == nil {
				m.log().Error("periodic binding reconcile failed", "error", err)
			}
		}
	}
}
