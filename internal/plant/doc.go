// Package plant is the entity store for flowers, smart pots, households,
// users and shared range profiles.
//
// Every write is a single SQL statement against a single row, so each
// document update is atomic on its own and nothing more: the store offers no
// transaction spanning a flower and a smart pot. Keeping the binding between
// the two consistent is the job of the binding package.
//
// Lookups return ErrFlowerNotFound, ErrSmartPotNotFound, ErrHouseholdNotFound
// or ErrProfileNotFound when the document does not exist.
package plant
