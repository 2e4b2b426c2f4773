package binding

import (
	"context"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

// Connect binds the flower to the smart pot with the given serial.
//
// Reconnecting a pair that is already bound succeeds without writing.
// Returns ErrConflict when the pot holds another flower or the flower is
// bound to a different pot.
func (m *Manager) Connect(ctx context.Context, flowerID, serial string) (*Result, error) {
	if flowerID == "" {
		return nil, invalidInput("flower id is required")
	}
	if serial == "" {
		return nil, invalidInput("smart pot serial number is required")
	}

	flower, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}
	pot, err := m.getPotBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	if pot.ActiveFlowerID == flower.ID && flower.SerialNumber == serial {
		return &Result{Flower: flower, SmartPot: pot}, nil
	}
	if pot.Occupied() && pot.ActiveFlowerID != flower.ID {
		return nil, conflict("smart pot %s is already bound to flower %s", serial, pot.ActiveFlowerID)
	}
	if flower.HasPot() && flower.SerialNumber != serial {
		return nil, conflict("flower %s is already bound to smart pot %s", flower.ID, flower.SerialNumber)
	}

	j := m.begin("connect")
	if err := j.releaseStalePots(ctx, flower.ID, pot.ID); err != nil {
		return nil, err
	}

	if pot.ActiveFlowerID != flower.ID {
		if pot, err = j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr(flower.ID)}); err != nil {
			return nil, err
		}
	}
	if flower.SerialNumber != serial {
		if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{SerialNumber: plant.Ptr(serial)}); err != nil {
			return nil, err
		}
	}

	j.succeed(ctx, audit.ActionConnect, map[string]any{"serial_number": serial})
	return &Result{Flower: flower, SmartPot: pot}, nil
}

// Disconnect clears both sides of the flower's binding. An unbound flower
// is returned unchanged.
func (m *Manager) Disconnect(ctx context.Context, flowerID string) (*Result, error) {
	if flowerID == "" {
		return nil, invalidInput("flower id is required")
	}

	flower, err := m.getFlower(ctx, flowerID)
	if err != nil {
		return nil, err
	}
	if !flower.HasPot() {
		return &Result{Flower: flower}, nil
	}

	pot, err := m.getPotBySerial(ctx, flower.SerialNumber)
	if err != nil {
		return nil, err
	}

	j := m.begin("disconnect")
	serial := flower.SerialNumber
	var released *plant.SmartPot
	if pot.ActiveFlowerID == flower.ID {
		if released, err = j.updatePot(ctx, pot, plant.SmartPotPatch{ActiveFlowerID: plant.Ptr("")}); err != nil {
			return nil, err
		}
	}
	if err := j.releaseStalePots(ctx, flower.ID); err != nil {
		return nil, err
	}
	if flower, err = j.updateFlower(ctx, flower, plant.FlowerPatch{SerialNumber: plant.Ptr("")}); err != nil {
		return nil, err
	}

	j.succeed(ctx, audit.ActionDisconnect, map[string]any{"serial_number": serial})
	return &Result{Flower: flower, ReleasedPot: released}, nil
}
