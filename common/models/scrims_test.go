package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrimsStatus_Transitions(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusOpen))
	assert.True(t, StatusOpen.CanTransitionTo(StatusClosed))
	assert.True(t, StatusClosed.CanTransitionTo(StatusScheduled))

	assert.False(t, StatusOpen.CanTransitionTo(StatusOpen))
	assert.False(t, StatusScheduled.CanTransitionTo(StatusClosed))
	assert.False(t, StatusClosed.CanTransitionTo(StatusOpen))
}

func TestScrims_OccupiedCountSkipsCoveredAndVacated(t *testing.T) {
	now := time.Now()
	s := &Scrims{
		TotalSlots: 4,
		ReservedSlots: []Reservation{
			{SlotNumber: 1, TeamName: "Alpha", User: "u1", Status: ReservationActive},
			{SlotNumber: 2, TeamName: "Gone", User: "u9", Status: ReservationExpired},
		},
		RegisteredTeams: []RegisteredTeam{
			{TeamName: "alpha", Captain: "u1", Validated: true},
			{TeamName: "Bravo", Captain: "u2", Validated: true, SlotNumber: IntPtr(2)},
			{TeamName: "Charlie", Captain: "u3", Validated: true, CancelledAt: &now},
			{TeamName: "Delta", Captain: "u4"},
		},
	}

	assert.Equal(t, 2, s.OccupiedCount())
	assert.Equal(t, 2, s.AvailableSlots())
	assert.False(t, s.IsFull())
	assert.True(t, s.SlotTaken(1))
	assert.True(t, s.SlotTaken(2))
	assert.False(t, s.SlotTaken(3))
	assert.True(t, s.HoldsSlot("u2"))
	assert.False(t, s.HoldsSlot("u3"))
}

func TestScrims_AvailableSlotsClampsAtZero(t *testing.T) {
	s := &Scrims{
		TotalSlots: 1,
		RegisteredTeams: []RegisteredTeam{
			{TeamName: "A", Captain: "a", Validated: true},
			{TeamName: "B", Captain: "b", Validated: true},
		},
	}
	assert.Equal(t, 0, s.AvailableSlots())
	assert.True(t, s.IsFull())
}

func TestScrims_RemoveCancellations(t *testing.T) {
	s := &Scrims{CancelledSlots: []CancelledSlot{{SlotNumber: 3}, {SlotNumber: 1}, {SlotNumber: 3}}}

	assert.Equal(t, 2, s.RemoveCancellations(3))
	assert.False(t, s.IsCancelled(3))
	assert.True(t, s.IsCancelled(1))
	assert.Len(t, s.CancelledSlots, 1)
}

func TestReservation_Due(t *testing.T) {
	now := time.Now()
	r := Reservation{Status: ReservationActive, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, r.Due(now))

	r.Status = ReservationCancelled
	assert.False(t, r.Due(now))

	r = Reservation{Status: ReservationActive, ExpiresAt: now.Add(time.Minute)}
	assert.False(t, r.Due(now))
}
