package models

import "time"

type ReservationState string

const (
	ReservationReserved  ReservationState = "reserved"
	ReservationReleased  ReservationState = "released"
	ReservationCancelled ReservationState = "cancelled"
)

// SlotReservation is one admission slot held against an account's concurrency
// limit. Owned by the caller that reserved it; stale reserved rows are reclaimed
// by the periodic re-derivation pass.
type SlotReservation struct {
	Token     string
	AccountID int64
	State     ReservationState
	CreatedAt time.Time
}
