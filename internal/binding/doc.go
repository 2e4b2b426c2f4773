// Package binding owns the pairing between a smart pot and the flower
// planted in it.
//
// The pairing is stored twice: SmartPot.ActiveFlowerID on the pot and
// Flower.SerialNumber on the flower. The store updates one document at a
// time, so every operation here is an ordered sequence of single-document
// writes. Old bindings are released before new ones are made. When a write
// fails, the writes already applied are undone in reverse order; if an undo
// fails too, the operation returns a *PartialFailureError naming every
// flower and pot involved and records it in the audit trail.
//
// Operations on the same pair are not serialised against each other.
// Reconcile is the repair path for whatever a race or a partial failure
// leaves behind.
package binding
