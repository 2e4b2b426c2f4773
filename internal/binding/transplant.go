package binding

import (
	"context"
	"errors"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

// Transplant modes, as recorded in the audit trail and accepted by the API.
const (
	ModeWithPot       = "with_pot"
	ModeWithoutPot    = "without_pot"
	ModeToPot         = "to_pot"
	ModeWithFlower    = "with_flower"
	ModeWithoutFlower = "without_flower"
	ModeToFlower      = "to_flower"
)

// TransplantFlowerWithPot moves a flower and its bound pot to another
// household. The binding itself is unchanged.
func (m *Manager) TransplantFlowerWithPot(ctx context.Context, flowerID, householdID string) (*Result, error) {
	if flowerID == "" || householdID == "" {
		return nil, invalidInput("flower id and target household id are required")
	}

	flower, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}
	if err := m.requireHousehold(ctx, householdID); err != nil {
		return nil, err
	}
	if !flower.HasPot() {
		return nil, notFound("flower %s has no smart pot", flower.ID)
	}
	pot, err := m.getPotBySerial(ctx, flower.SerialNumber)
	if err != nil {
		return nil, err
	}
	if pot.ActiveFlowerID != flower.ID {
		return nil, conflict("smart pot %s is not bound to flower %s", pot.SerialNumber, flower.ID)
	}

	j := m.begin("transplant_flower_with_pot")
	if pot.HouseholdID != householdID {
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{HouseholdID: plant.Ptr(householdID)}); err != nil {
			return nil, err
		}
	}
	if flower.HouseholdID != householdID {
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{HouseholdID: plant.Ptr(householdID)}); err != nil {
			return nil, err
		}
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":         ModeWithPot,
		"household_id": householdID,
	})
	return &Result{Flower: flower, SmartPot: pot}, nil
}

// TransplantFlowerWithoutPot moves a flower to another household and leaves
// its pot behind. When assignTo is set, the released pot is bound to that
// flower, which must not already have a pot.
func (m *Manager) TransplantFlowerWithoutPot(ctx context.Context, flowerID, householdID, assignTo string) (*Result, error) {
	if flowerID == "" || householdID == "" {
		return nil, invalidInput("flower id and target household id are required")
	}
	if assignTo == flowerID {
		return nil, invalidInput("released smart pot cannot be reassigned to the transplanted flower")
	}

	flower, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}
	if err := m.requireHousehold(ctx, householdID); err != nil {
		return nil, err
	}

	var target *plant.Flower
	if assignTo != "" {
		if !flower.HasPot() {
			return nil, invalidInput("flower %s has no smart pot to reassign", flower.ID)
		}
		if target, err = m.getFlower(ctx, assignTo); err != nil {
			return nil, err
		}
		if target.HasPot() {
			return nil, conflict("flower %s is already bound to smart pot %s", target.ID, target.SerialNumber)
		}
	}

	var pot *plant.SmartPot
	if flower.HasPot() {
		if pot, err = m.getPotBySerial(ctx, flower.SerialNumber); err != nil {
			return nil, err
		}
		if target != nil && pot.Occupied() && pot.ActiveFlowerID != flower.ID {
			return nil, conflict("smart pot %s is bound to flower %s", pot.SerialNumber, pot.ActiveFlowerID)
		}
	}

	j := m.begin("transplant_flower_without_pot")
	if pot != nil && pot.ActiveFlowerID == flower.ID {
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr("")}); err != nil {
			return nil, err
		}
	}
	if err := j.releaseStalePots(ctx, flower.ID); err != nil {
		return nil, err
	}

	patch := plant.FlowerPatch{HouseholdID: plant.Ptr(householdID)}
	if flower.HasPot() {
		patch.SerialNumber = plant.Ptr("")
	}
	if flower, err = j.updateFlower(ctx, flower, patch); err != nil {
		return nil, err
	}

	res := &Result{Flower: flower, ReleasedPot: pot}
	if target != nil {
		if err := j.releaseStalePots(ctx, target.ID, pot.ID); err != nil {
			return nil, err
		}
		if target, err = j.updateFlower(ctx, target, plant.FlowerPatch{SerialNumber: plant.Ptr(pot.SerialNumber)}); err != nil {
			return nil, err
		}
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr(target.ID)}); err != nil {
			return nil, err
		}
		res.ReleasedPot = pot
		res.ReassignedFlower = target
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":         ModeWithoutPot,
		"household_id": householdID,
		"assigned_to":  assignTo,
	})
	return res, nil
}

// TransplantFlowerToPot rebinds a flower to another existing pot, releasing
// its current pot first. Repeating a completed call is a no-op.
func (m *Manager) TransplantFlowerToPot(ctx context.Context, flowerID, smartPotID string) (*Result, error) {
	if flowerID == "" || smartPotID == "" {
		return nil, invalidInput("flower id and target smart pot id are required")
	}

	flower, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}
	target, err := m.getPotByID(ctx, smartPotID)
	if err != nil {
		return nil, err
	}

	if target.ActiveFlowerID == flower.ID && flower.SerialNumber == target.SerialNumber {
		return &Result{Flower: flower, SmartPot: target}, nil
	}
	if target.Occupied() && target.ActiveFlowerID != flower.ID {
		return nil, conflict("smart pot %s is already bound to flower %s", target.SerialNumber, target.ActiveFlowerID)
	}

	var old *plant.SmartPot
	if flower.HasPot() && flower.SerialNumber != target.SerialNumber {
		old, err = m.getPotBySerial(ctx, flower.SerialNumber)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	j := m.begin("transplant_flower_to_pot")
	res := &Result{}
	if old != nil && old.ActiveFlowerID == flower.ID {
		if res.ReleasedPot, err = j.updatePot(ctx, old, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr("")}); err != nil {
			return nil, err
		}
	}
	if err := j.releaseStalePots(ctx, flower.ID, target.ID); err != nil {
		return nil, err
	}
	if target.ActiveFlowerID != flower.ID {
		if target, err = j.updatePot(ctx, target, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr(flower.ID)}); err != nil {
			return nil, err
		}
	}
	if flower.SerialNumber != target.SerialNumber {
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{SerialNumber: plant.Ptr(target.SerialNumber)}); err != nil {
			return nil, err
		}
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":         ModeToPot,
		"smart_pot_id": target.ID,
	})
	res.Flower = flower
	res.SmartPot = target
	return res, nil
}

// TransplantPotWithFlower moves a pot and its bound flower to another
// household. An empty pot is moved alone.
func (m *Manager) TransplantPotWithFlower(ctx context.Context, smartPotID, householdID string) (*Result, error) {
	if smartPotID == "" || householdID == "" {
		return nil, invalidInput("smart pot id and target household id are required")
	}

	pot, err := m.getPotByID(ctx, smartPotID)
	if err != nil {
		return nil, err
	}
	if err := m.requireHousehold(ctx, householdID); err != nil {
		return nil, err
	}

	var flower *plant.Flower
	if pot.Occupied() {
		if flower, err = m.getFlower(ctx, pot.ActiveFlowerID); err != nil {
			return nil, err
		}
		if flower.SerialNumber != pot.SerialNumber {
			return nil, conflict("flower %s is not bound to smart pot %s", flower.ID, pot.SerialNumber)
		}
	}

	j := m.begin("transplant_pot_with_flower")
	if pot.HouseholdID != householdID {
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{HouseholdID: plant.Ptr(householdID)}); err != nil {
			return nil, err
		}
	}
	if flower != nil && flower.HouseholdID != householdID {
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{HouseholdID: plant.Ptr(householdID)}); err != nil {
			return nil, err
		}
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":         ModeWithFlower,
		"household_id": householdID,
	})
	return &Result{SmartPot: pot, Flower: flower}, nil
}

// TransplantPotWithoutFlower moves a pot to another household and leaves
// its flower behind. When assignTo is set, the released flower is bound to
// that pot, which must be empty.
func (m *Manager) TransplantPotWithoutFlower(ctx context.Context, smartPotID, householdID, assignTo string) (*Result, error) {
	if smartPotID == "" || householdID == "" {
		return nil, invalidInput("smart pot id and target household id are required")
	}
	if assignTo == smartPotID {
		return nil, invalidInput("released flower cannot be reassigned to the transplanted smart pot")
	}

	pot, err := m.getPotByID(ctx, smartPotID)
	if err != nil {
		return nil, err
	}
	if err := m.requireHousehold(ctx, householdID); err != nil {
		return nil, err
	}

	var flower *plant.Flower
	if pot.Occupied() {
		if flower, err = m.getFlower(ctx, pot.ActiveFlowerID); err != nil {
			return nil, err
		}
	}

	var target *plant.SmartPot
	if assignTo != "" {
		if flower == nil {
			return nil, invalidInput("smart pot %s has no flower to reassign", pot.ID)
		}
		if target, err = m.getPotByID(ctx, assignTo); err != nil {
			return nil, err
		}
		if target.Occupied() {
			return nil, conflict("smart pot %s is already bound to flower %s", target.SerialNumber, target.ActiveFlowerID)
		}
	}

	j := m.begin("transplant_pot_without_flower")
	patch := plant.SmartPotPatch{HouseholdID: plant.Ptr(householdID)}
	if pot.Occupied() {
		patch.ActiveFlowerID = plant.Ptr("")
	}
	if pot, err = j.updatePot(ctx, pot, patch); err != nil {
		return nil, err
	}

	res := &Result{SmartPot: pot}
	if flower != nil && flower.SerialNumber == pot.SerialNumber {
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{SerialNumber: plant.Ptr("")}); err != nil {
			return nil, err
		}
	}
	res.ReleasedFlower = flower

	if target != nil {
		if err := j.releaseStalePots(ctx, flower.ID, target.ID); err != nil {
			return nil, err
		}
		if target, err = j.updatePot(ctx, target, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr(flower.ID)}); err != nil {
			return nil, err
		}
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{SerialNumber: plant.Ptr(target.SerialNumber)}); err != nil {
			return nil, err
		}
		res.ReleasedFlower = flower
		res.ReassignedPot = target
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":         ModeWithoutFlower,
		"household_id": householdID,
		"assigned_to":  assignTo,
	})
	return res, nil
}

// TransplantPotToFlower binds a pot to another existing flower, releasing
// the pot's current flower first. Returns ErrConflict when the target
// flower is bound to a different pot.
func (m *Manager) TransplantPotToFlower(ctx context.Context, smartPotID, flowerID string) (*Result, error) {
	if smartPotID == "" || flowerID == "" {
		return nil, invalidInput("smart pot id and target flower id are required")
	}

	pot, err := m.getPotByID(ctx, smartPotID)
	if err != nil {
		return nil, err
	}
	target, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}

	if pot.ActiveFlowerID == target.ID && target.SerialNumber == pot.SerialNumber {
		return &Result{SmartPot: pot, Flower: target}, nil
	}
	if target.HasPot() && target.SerialNumber != pot.SerialNumber {
		return nil, conflict("flower %s is already bound to smart pot %s", target.ID, target.SerialNumber)
	}

	var old *plant.Flower
	if pot.Occupied() && pot.ActiveFlowerID != target.ID {
		old, err = m.getFlower(ctx, pot.ActiveFlowerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	j := m.begin("transplant_pot_to_flower")
	res := &Result{}
	if old != nil && old.SerialNumber == pot.SerialNumber {
		if res.ReleasedFlower, err = j.updateFlower(ctx, old, plant.FlowerPatch{SerialNumber: plant.Ptr("")}); err != nil {
			return nil, err
		}
	}
	if err := j.releaseStalePots(ctx, target.ID, pot.ID); err != nil {
		return nil, err
	}
	if pot.ActiveFlowerID != target.ID {
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr(target.ID)}); err != nil {
			return nil, err
		}
	}
	if target.SerialNumber != pot.SerialNumber {
		if target, err = j.updateFlower(ctx, target, plant.FlowerPatch{SerialNumber: plant.Ptr(pot.SerialNumber)}); err != nil {
			return nil, err
		}
	}

	j.succeed(ctx, audit.ActionTransplant, map[string]any{
		"mode":      ModeToFlower,
		"flower_id": target.ID,
	})
	res.SmartPot = pot
	res.Flower = target
	return res, nil
}
