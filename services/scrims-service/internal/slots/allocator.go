package slots

import (
	"sort"

	"github.com/scrimx/scrims/common/models"
)

type Label string

const (
	LabelReserved  Label = "reserved"
	LabelTeam      Label = "team"
	LabelCancelled Label = "cancelled"
	LabelEmpty     Label = "empty"
)

type Assignment struct {
	SlotNumber int      `json:"slot_number"`
	Label      Label    `json:"label"`
	TeamName   string   `json:"team_name,omitempty"`
	Holder     string   `json:"holder,omitempty"`
	Players    []string `json:"players,omitempty"`
}

func (a Assignment) Occupied() bool {
	return a.Label == LabelReserved || a.Label == LabelTeam
}

// Placement is the slot a registered team ends up with; nil means it did not fit.
type Placement struct {
	TeamIndex  int
	SlotNumber *int
}

type Layout struct {
	Slots      []Assignment
	Placements []Placement
	// Overflow lists team indexes that are live but could not be placed.
	Overflow []int
}

// Allocate computes the slot table for a scrims without modifying it.
//
// Active reservations keep their slot. Live teams a reservation already accounts for share that
// reservation's slot. Remaining live teams keep a previously persisted slot when it is still in range
// and free; the rest are placed first come first served into the lowest free slot.
func Allocate(s *models.Scrims) Layout {
	n := s.TotalSlots
	if n < 0 {
		n = 0
	}

	layout := Layout{Slots: make([]Assignment, n)}
	taken := make([]bool, n+1)

	for i := 0; i < n; i++ {
		layout.Slots[i] = Assignment{SlotNumber: i + 1, Label: LabelEmpty}
	}
	for _, c := range s.CancelledSlots {
		if c.SlotNumber >= 1 && c.SlotNumber <= n {
			layout.Slots[c.SlotNumber-1].Label = LabelCancelled
			layout.Slots[c.SlotNumber-1].TeamName = c.TeamName
		}
	}

	for _, r := range s.ReservedSlots {
		if !r.IsActive() || r.SlotNumber < 1 || r.SlotNumber > n || taken[r.SlotNumber] {
			continue
		}
		taken[r.SlotNumber] = true
		layout.Slots[r.SlotNumber-1] = Assignment{
			SlotNumber: r.SlotNumber,
			Label:      LabelReserved,
			TeamName:   r.TeamName,
			Holder:     r.User,
		}
	}

	order := make([]int, 0, len(s.RegisteredTeams))
	for i := range s.RegisteredTeams {
		t := &s.RegisteredTeams[i]
		if !t.Live() {
			continue
		}
		if r := s.ActiveReservationCovering(t); r != nil {
			if r.SlotNumber >= 1 && r.SlotNumber <= n {
				layout.Placements = append(layout.Placements, Placement{TeamIndex: i, SlotNumber: models.IntPtr(r.SlotNumber)})
				layout.Slots[r.SlotNumber-1].Players = t.Players
			}
			continue
		}
		order = append(order, i)
	}

	sort.SliceStable(order, func(a, b int) bool {
		return s.RegisteredTeams[order[a]].RegisteredAt.Before(s.RegisteredTeams[order[b]].RegisteredAt)
	})

	place := func(idx, slot int) {
		t := &s.RegisteredTeams[idx]
		taken[slot] = true
		layout.Slots[slot-1] = Assignment{
			SlotNumber: slot,
			Label:      LabelTeam,
			TeamName:   t.TeamName,
			Holder:     t.Captain,
			Players:    t.Players,
		}
		layout.Placements = append(layout.Placements, Placement{TeamIndex: idx, SlotNumber: models.IntPtr(slot)})
	}

	unplaced := make([]int, 0, len(order))
	for _, idx := range order {
		slot := s.RegisteredTeams[idx].SlotNumber
		if slot != nil && *slot >= 1 && *slot <= n && !taken[*slot] {
			place(idx, *slot)
			continue
		}
		unplaced = append(unplaced, idx)
	}

	cursor := 1
	for _, idx := range unplaced {
		for cursor <= n && taken[cursor] {
			cursor++
		}
		if cursor > n {
			layout.Overflow = append(layout.Overflow, idx)
			layout.Placements = append(layout.Placements, Placement{TeamIndex: idx})
			continue
		}
		place(idx, cursor)
	}

	sort.SliceStable(layout.Placements, func(a, b int) bool {
		return layout.Placements[a].TeamIndex < layout.Placements[b].TeamIndex
	})

	return layout
}

// Apply writes the layout's placements onto the team records and consumes the cancellation record of
// every slot a team now occupies. It reports whether anything changed.
func Apply(s *models.Scrims, layout Layout) bool {
	changed := false
	for _, p := range layout.Placements {
		t := &s.RegisteredTeams[p.TeamIndex]
		if !sameSlot(t.SlotNumber, p.SlotNumber) {
			t.SlotNumber = p.SlotNumber
			changed = true
		}
	}
	for _, a := range layout.Slots {
		if a.Label == LabelTeam && s.RemoveCancellations(a.SlotNumber) > 0 {
			changed = true
		}
	}
	return changed
}

// Reallocate runs Allocate then Apply.
func Reallocate(s *models.Scrims) (Layout, bool) {
	layout := Allocate(s)
	return layout, Apply(s, layout)
}

func sameSlot(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// NextSlot picks the slot for a new claim. Cancelled slots are offered first in the order they were
// recorded, then the lowest untaken number.
func NextSlot(s *models.Scrims) (int, bool) {
	for _, c := range s.CancelledSlots {
		if s.InRange(c.SlotNumber) && !s.SlotTaken(c.SlotNumber) {
			return c.SlotNumber, true
		}
	}
	for slot := 1; slot <= s.TotalSlots; slot++ {
		if !s.SlotTaken(slot) {
			return slot, true
		}
	}
	return 0, false
}
