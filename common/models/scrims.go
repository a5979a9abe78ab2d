package models

import (
	"fmt"
	"strings"
	"time"
)

type ScrimsStatus string

const (
	StatusScheduled ScrimsStatus = "scheduled"
	StatusOpen      ScrimsStatus = "open"
	StatusClosed    ScrimsStatus = "closed"
)

// The daily reset is handled separately and may start from any status.
var scrimsTransitions = map[ScrimsStatus]ScrimsStatus{
	StatusScheduled: StatusOpen,
	StatusOpen:      StatusClosed,
	StatusClosed:    StatusScheduled,
}

func (s ScrimsStatus) CanTransitionTo(next ScrimsStatus) bool {
	return scrimsTransitions[s] == next
}

func (s ScrimsStatus) String() string {
	return string(s)
}

// AcceptsClaims reports whether slots can be taken in this status.
func (s ScrimsStatus) AcceptsClaims() bool {
	return s == StatusOpen || s == StatusClosed
}

type Scrims struct {
	ScrimsID            string       `dynamodbav:"scrims_id" json:"scrims_id"`
	GuildID             string       `dynamodbav:"guild_id" json:"guild_id"`
	Name                string       `dynamodbav:"name" json:"name"`
	RegistrationChannel string       `dynamodbav:"registration_channel" json:"registration_channel"`
	SlotListChannel     string       `dynamodbav:"slotlist_channel" json:"slotlist_channel"`
	RequiredRole        string       `dynamodbav:"required_role" json:"required_role"`
	SuccessRole         string       `dynamodbav:"success_role" json:"success_role"`
	RequiredTags        int          `dynamodbav:"required_tags" json:"required_tags"`
	TotalSlots          int          `dynamodbav:"total_slots" json:"total_slots"`
	OpenTime            string       `dynamodbav:"open_time" json:"open_time"`
	ScrimsTime          string       `dynamodbav:"scrims_time" json:"scrims_time"`
	Status              ScrimsStatus `dynamodbav:"status" json:"status"`

	RegisteredTeams []RegisteredTeam `dynamodbav:"registered_teams" json:"registered_teams"`
	ReservedSlots   []Reservation    `dynamodbav:"reserved_slots" json:"reserved_slots"`
	CancelledSlots  []CancelledSlot  `dynamodbav:"cancelled_slots" json:"cancelled_slots"`
	DailySchedule   DailySchedule    `dynamodbav:"daily_schedule" json:"daily_schedule"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`

	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GSI1PK string `dynamodbav:"GSI1PK" json:"-"`
	GSI1SK string `dynamodbav:"GSI1SK" json:"-"`
}

type RegisteredTeam struct {
	TeamName     string     `dynamodbav:"team_name" json:"team_name"`
	Players      []string   `dynamodbav:"players" json:"players"`
	Captain      string     `dynamodbav:"captain" json:"captain"`
	RegisteredAt time.Time  `dynamodbav:"registered_at" json:"registered_at"`
	SlotNumber   *int       `dynamodbav:"slot_number" json:"slot_number"`
	MessageID    string     `dynamodbav:"message_id" json:"message_id"`
	Validated    bool       `dynamodbav:"validated" json:"validated"`
	RoleAssigned bool       `dynamodbav:"role_assigned" json:"role_assigned"`
	CancelledAt  *time.Time `dynamodbav:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Live teams count toward capacity. A vacated team keeps its record but no longer occupies anything.
func (t *RegisteredTeam) Live() bool {
	return t.Validated && t.CancelledAt == nil
}

func (t *RegisteredTeam) Placed() bool {
	return t.Live() && t.SlotNumber != nil
}

func (t *RegisteredTeam) HasPlayer(userID string) bool {
	for _, p := range t.Players {
		if p == userID {
			return true
		}
	}
	return false
}

type DailySchedule struct {
	DetailsSent   bool       `dynamodbav:"details_sent" json:"details_sent"`
	DetailsSentAt *time.Time `dynamodbav:"details_sent_at" json:"details_sent_at,omitempty"`
	LastReset     *time.Time `dynamodbav:"last_reset" json:"last_reset,omitempty"`
}

type CancelledSlot struct {
	SlotNumber  int       `dynamodbav:"slot_number" json:"slot_number"`
	TeamName    string    `dynamodbav:"team_name" json:"team_name"`
	User        string    `dynamodbav:"user" json:"user"`
	Reason      string    `dynamodbav:"reason" json:"reason"`
	CancelledAt time.Time `dynamodbav:"cancelled_at" json:"cancelled_at"`
}

func (s *Scrims) InRange(slot int) bool {
	return slot >= 1 && slot <= s.TotalSlots
}

// ActiveReservationCovering returns the active reservation that already accounts for the team,
// matched by team name (case-insensitive) or by the captain holding it.
func (s *Scrims) ActiveReservationCovering(team *RegisteredTeam) *Reservation {
	for i := range s.ReservedSlots {
		r := &s.ReservedSlots[i]
		if !r.IsActive() {
			continue
		}
		if strings.EqualFold(r.TeamName, team.TeamName) || (r.User != "" && r.User == team.Captain) {
			return r
		}
	}
	return nil
}

// OccupiedCount is the number of slots held by active reservations plus live teams
// that no reservation already accounts for.
func (s *Scrims) OccupiedCount() int {
	count := 0
	for i := range s.ReservedSlots {
		if s.ReservedSlots[i].IsActive() {
			count++
		}
	}
	for i := range s.RegisteredTeams {
		t := &s.RegisteredTeams[i]
		if t.Live() && s.ActiveReservationCovering(t) == nil {
			count++
		}
	}
	return count
}

func (s *Scrims) AvailableSlots() int {
	available := s.TotalSlots - s.OccupiedCount()
	if available < 0 {
		return 0
	}
	return available
}

func (s *Scrims) IsFull() bool {
	return s.OccupiedCount() >= s.TotalSlots
}

func (s *Scrims) TeamByName(name string) *RegisteredTeam {
	for i := range s.RegisteredTeams {
		if strings.EqualFold(s.RegisteredTeams[i].TeamName, name) {
			return &s.RegisteredTeams[i]
		}
	}
	return nil
}

// LiveTeamByName ignores vacated records.
func (s *Scrims) LiveTeamByName(name string) *RegisteredTeam {
	for i := range s.RegisteredTeams {
		t := &s.RegisteredTeams[i]
		if t.Live() && strings.EqualFold(t.TeamName, name) {
			return t
		}
	}
	return nil
}

func (s *Scrims) TeamInSlot(slot int) *RegisteredTeam {
	for i := range s.RegisteredTeams {
		t := &s.RegisteredTeams[i]
		if t.Placed() && *t.SlotNumber == slot {
			return t
		}
	}
	return nil
}

func (s *Scrims) ActiveReservationInSlot(slot int) *Reservation {
	for i := range s.ReservedSlots {
		r := &s.ReservedSlots[i]
		if r.IsActive() && r.SlotNumber == slot {
			return r
		}
	}
	return nil
}

func (s *Scrims) ActiveReservationByName(name string) *Reservation {
	for i := range s.ReservedSlots {
		r := &s.ReservedSlots[i]
		if r.IsActive() && strings.EqualFold(r.TeamName, name) {
			return r
		}
	}
	return nil
}

// HoldsSlot reports whether the user already captains a live team or holds an active reservation.
func (s *Scrims) HoldsSlot(userID string) bool {
	for i := range s.RegisteredTeams {
		t := &s.RegisteredTeams[i]
		if t.Live() && t.Captain == userID {
			return true
		}
	}
	for i := range s.ReservedSlots {
		r := &s.ReservedSlots[i]
		if r.IsActive() && r.User == userID {
			return true
		}
	}
	return false
}

// SlotTaken is true when an active reservation or a placed team occupies the slot.
func (s *Scrims) SlotTaken(slot int) bool {
	return s.ActiveReservationInSlot(slot) != nil || s.TeamInSlot(slot) != nil
}

// RemoveCancellations drops every cancellation record for the slot and reports how many were removed.
func (s *Scrims) RemoveCancellations(slot int) int {
	kept := s.CancelledSlots[:0]
	removed := 0
	for _, c := range s.CancelledSlots {
		if c.SlotNumber == slot {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.CancelledSlots = kept
	return removed
}

func (s *Scrims) IsCancelled(slot int) bool {
	for _, c := range s.CancelledSlots {
		if c.SlotNumber == slot {
			return true
		}
	}
	return false
}

// Key handlers
func ScrimsPK(scrimsID string) string {
	return fmt.Sprintf("SCRIMS#%s", scrimsID)
}

func ScrimsMetaSK() string {
	return "SCRIMS_META"
}

func GuildGSI1PK(guildID string) string {
	return fmt.Sprintf("GUILD#%s", guildID)
}

func ScrimsGSI1SK(scrimsID string) string {
	return fmt.Sprintf("SCRIMS#%s", scrimsID)
}

func ScrimsGSI1SKPrefix() string {
	return "SCRIMS#"
}

func IntPtr(v int) *int {
	return &v
}
