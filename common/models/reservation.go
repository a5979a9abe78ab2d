package models

import (
	"time"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

type Reservation struct {
	SlotNumber int               `dynamodbav:"slot_number" json:"slot_number"`
	TeamName   string            `dynamodbav:"team_name" json:"team_name"`
	User       string            `dynamodbav:"user" json:"user"`
	ReservedAt time.Time         `dynamodbav:"reserved_at" json:"reserved_at"`
	ExpiresAt  time.Time         `dynamodbav:"expires_at" json:"expires_at"`
	Status     ReservationStatus `dynamodbav:"status" json:"status"`
}

func (r *Reservation) IsActive() bool {
	return r.Status == ReservationActive
}

// Due reports whether an active reservation has passed its expiry.
func (r *Reservation) Due(now time.Time) bool {
	return r.IsActive() && !r.ExpiresAt.After(now)
}
