package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/slots"
)

const slotListFetchLimit = 20

type ClaimInput struct {
	ScrimsID string `validate:"required"`
	TeamName string `validate:"required,min=2,max=100"`
	UserID   string `validate:"required"`
}

type CancelInput struct {
	ScrimsID   string `validate:"required"`
	SlotNumber int    `validate:"min=1"`
	UserID     string `validate:"required"`
	Reason     string
	// Admin lets an operator vacate a slot they do not hold.
	Admin bool
}

type ReserveInput struct {
	ScrimsID   string `validate:"required"`
	SlotNumber int    `validate:"min=1"`
	TeamName   string `validate:"required,min=2,max=100"`
	UserID     string `validate:"required"`
	TTL        string `validate:"required"`
}

type SlotResult struct {
	Scrims     *models.Scrims
	SlotNumber int
	TeamName   string
	// Revived is set when a claim reused the captain's vacated team record.
	Revived    bool
	AutoClosed bool
}

func (s *scrimsService) ClaimSlot(ctx context.Context, input ClaimInput) (*SlotResult, *apperrors.AppError) {
	if err := s.validateInput(input); err != nil {
		s.recordOp("claim", err)
		return nil, err
	}
	teamName := strings.TrimSpace(input.TeamName)

	var result SlotResult
	var layout slots.Layout

	sc, _, err := s.mutate(ctx, input.ScrimsID, func(sc *models.Scrims) (bool, error) {
		result = SlotResult{TeamName: teamName}

		if !sc.Status.AcceptsClaims() {
			return false, scrimserrors.RegistrationClosedError(sc.Status)
		}
		if sc.LiveTeamByName(teamName) != nil {
			return false, scrimserrors.DuplicateTeamError(teamName)
		}
		if r := sc.ActiveReservationByName(teamName); r != nil && r.User != input.UserID {
			return false, scrimserrors.DuplicateTeamError(teamName)
		}
		if sc.HoldsSlot(input.UserID) {
			return false, scrimserrors.AlreadyHoldsSlotError(input.UserID)
		}
		if sc.IsFull() {
			return false, scrimserrors.NoSlotAvailableError()
		}

		slot, ok := slots.NextSlot(sc)
		if !ok {
			return false, scrimserrors.NoSlotAvailableError()
		}
		sc.RemoveCancellations(slot)
		result.SlotNumber = slot

		now := s.now()
		if t := vacatedTeam(sc, teamName, input.UserID); t != nil {
			t.SlotNumber = models.IntPtr(slot)
			t.CancelledAt = nil
			t.RegisteredAt = now
			result.Revived = true
		} else {
			sc.RegisteredTeams = append(sc.RegisteredTeams, models.RegisteredTeam{
				TeamName:     teamName,
				Players:      []string{input.UserID},
				Captain:      input.UserID,
				RegisteredAt: now,
				SlotNumber:   models.IntPtr(slot),
				Validated:    true,
			})
		}

		if sc.Status == models.StatusOpen && sc.IsFull() {
			layout = closeInPlace(sc)
			result.AutoClosed = true
		}
		return true, nil
	})
	s.recordOp("claim", err)
	if err != nil {
		return nil, err
	}
	result.Scrims = sc

	s.logger.Info("Slot claimed", "scrims_id", sc.ScrimsID, "slot", result.SlotNumber, "team", teamName, "revived", result.Revived)
	s.auditLog(ctx, sc.GuildID, "success", fmt.Sprintf("Slot %d claimed by <@%s> for %s in %s",
		result.SlotNumber, input.UserID, teamName, sc.Name))
	s.publish(ctx, commonevents.SlotClaimed, sc, map[string]interface{}{
		"slot":    result.SlotNumber,
		"team":    teamName,
		"user":    input.UserID,
		"revived": result.Revived,
	})
	s.invalidate(ctx, sc.GuildID)

	if result.AutoClosed {
		s.afterClose(ctx, sc, layout, CloseAuto)
	} else if sc.Status == models.StatusClosed {
		s.postSlotList(ctx, sc, slots.Allocate(sc))
	}

	return &result, nil
}

// vacatedTeam finds a cancelled record with the same name that the same captain owns.
func vacatedTeam(sc *models.Scrims, teamName, captain string) *models.RegisteredTeam {
	for i := range sc.RegisteredTeams {
		t := &sc.RegisteredTeams[i]
		if t.Validated && t.CancelledAt != nil && t.Captain == captain && strings.EqualFold(t.TeamName, teamName) {
			return t
		}
	}
	return nil
}

func (s *scrimsService) CancelSlot(ctx context.Context, input CancelInput) (*SlotResult, *apperrors.AppError) {
	if err := s.validateInput(input); err != nil {
		s.recordOp("cancel", err)
		return nil, err
	}

	var result SlotResult
	var revoke string

	sc, _, err := s.mutate(ctx, input.ScrimsID, func(sc *models.Scrims) (bool, error) {
		result = SlotResult{SlotNumber: input.SlotNumber}
		revoke = ""

		if !sc.InRange(input.SlotNumber) {
			return false, scrimserrors.SlotOutOfRangeError(input.SlotNumber, sc.TotalSlots)
		}

		team := sc.TeamInSlot(input.SlotNumber)
		res := sc.ActiveReservationInSlot(input.SlotNumber)
		if team == nil && res == nil {
			return false, scrimserrors.SlotNotOccupiedError(input.SlotNumber)
		}

		owner := (team != nil && team.Captain == input.UserID) || (res != nil && res.User == input.UserID)
		if !owner && !input.Admin {
			return false, scrimserrors.NotSlotOwnerError(input.SlotNumber)
		}

		now := s.now()
		if team != nil {
			result.TeamName = team.TeamName
			team.SlotNumber = nil
			team.CancelledAt = &now
			if team.RoleAssigned {
				revoke = team.Captain
				team.RoleAssigned = false
			}
		}
		if res != nil {
			if result.TeamName == "" {
				result.TeamName = res.TeamName
			}
			res.Status = models.ReservationCancelled
		}

		sc.RemoveCancellations(input.SlotNumber)
		sc.CancelledSlots = append(sc.CancelledSlots, models.CancelledSlot{
			SlotNumber:  input.SlotNumber,
			TeamName:    result.TeamName,
			User:        input.UserID,
			Reason:      input.Reason,
			CancelledAt: now,
		})
		return true, nil
	})
	s.recordOp("cancel", err)
	if err != nil {
		return nil, err
	}
	result.Scrims = sc

	if revoke != "" && sc.SuccessRole != "" {
		if err := s.platform.RevokeRole(ctx, sc.GuildID, sc.SuccessRole, revoke); err != nil {
			s.logger.Warn("Failed to revoke success role", "scrims_id", sc.ScrimsID, "user_id", revoke, "error", err)
		}
	}

	s.logger.Info("Slot cancelled", "scrims_id", sc.ScrimsID, "slot", input.SlotNumber, "team", result.TeamName)
	s.auditLog(ctx, sc.GuildID, "warning", fmt.Sprintf("Slot %d cancelled by <@%s> (%s) in %s",
		input.SlotNumber, input.UserID, result.TeamName, sc.Name))
	s.publish(ctx, commonevents.SlotCancelled, sc, map[string]interface{}{
		"slot":   input.SlotNumber,
		"team":   result.TeamName,
		"user":   input.UserID,
		"reason": input.Reason,
	})
	s.invalidate(ctx, sc.GuildID)

	if sc.Status == models.StatusClosed {
		s.postSlotList(ctx, sc, slots.Allocate(sc))
	}
	s.notifyCapacity(ctx, sc.GuildID)

	return &result, nil
}

func (s *scrimsService) ReserveSlot(ctx context.Context, input ReserveInput) (*models.Reservation, *apperrors.AppError) {
	if err := s.validateInput(input); err != nil {
		s.recordOp("reserve", err)
		return nil, err
	}
	ttl, parseErr := ParseTTL(input.TTL)
	if parseErr != nil {
		appErr := toAppError(parseErr)
		s.recordOp("reserve", appErr)
		return nil, appErr
	}
	teamName := strings.TrimSpace(input.TeamName)

	var reservation models.Reservation
	var autoClosed bool
	var layout slots.Layout

	sc, _, err := s.mutate(ctx, input.ScrimsID, func(sc *models.Scrims) (bool, error) {
		autoClosed = false

		if !sc.InRange(input.SlotNumber) {
			return false, scrimserrors.SlotOutOfRangeError(input.SlotNumber, sc.TotalSlots)
		}
		if sc.SlotTaken(input.SlotNumber) {
			return false, scrimserrors.SlotTakenError(input.SlotNumber)
		}
		if sc.ActiveReservationByName(teamName) != nil {
			return false, scrimserrors.DuplicateTeamError(teamName)
		}
		if t := sc.LiveTeamByName(teamName); t != nil && t.Captain != input.UserID {
			return false, scrimserrors.DuplicateTeamError(teamName)
		}
		for i := range sc.ReservedSlots {
			if sc.ReservedSlots[i].IsActive() && sc.ReservedSlots[i].User == input.UserID {
				return false, scrimserrors.AlreadyHoldsSlotError(input.UserID)
			}
		}

		now := s.now()
		reservation = models.Reservation{
			SlotNumber: input.SlotNumber,
			TeamName:   teamName,
			User:       input.UserID,
			ReservedAt: now,
			ExpiresAt:  now.Add(ttl),
			Status:     models.ReservationActive,
		}

		// A reservation that absorbs a live team does not add occupancy. The team moves into the
		// reserved slot so its old number is released.
		var covered []*models.RegisteredTeam
		for i := range sc.RegisteredTeams {
			t := &sc.RegisteredTeams[i]
			if t.Live() && (strings.EqualFold(t.TeamName, teamName) || t.Captain == input.UserID) {
				covered = append(covered, t)
			}
		}
		if len(covered) == 0 && sc.IsFull() {
			return false, scrimserrors.NoSlotAvailableError()
		}
		for _, t := range covered {
			t.SlotNumber = models.IntPtr(input.SlotNumber)
		}

		sc.ReservedSlots = append(sc.ReservedSlots, reservation)
		sc.RemoveCancellations(input.SlotNumber)

		if sc.Status == models.StatusOpen && sc.IsFull() {
			layout = closeInPlace(sc)
			autoClosed = true
		}
		return true, nil
	})
	s.recordOp("reserve", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot reserved", "scrims_id", sc.ScrimsID, "slot", reservation.SlotNumber,
		"team", reservation.TeamName, "expires_at", reservation.ExpiresAt)
	s.auditLog(ctx, sc.GuildID, "info", fmt.Sprintf("Slot %d reserved for %s (<@%s>) until %s in %s",
		reservation.SlotNumber, reservation.TeamName, reservation.User,
		reservation.ExpiresAt.In(s.opts.Location).Format("15:04"), sc.Name))
	s.publish(ctx, commonevents.SlotReserved, sc, map[string]interface{}{
		"slot":      reservation.SlotNumber,
		"team":      reservation.TeamName,
		"user":      reservation.User,
		"expiresAt": reservation.ExpiresAt.UTC().Format(time.RFC3339),
	})
	s.invalidate(ctx, sc.GuildID)

	if autoClosed {
		s.afterClose(ctx, sc, layout, CloseAuto)
	}

	return &reservation, nil
}

func (s *scrimsService) CancelReservation(ctx context.Context, scrimsID string, slotNumber int) *apperrors.AppError {
	var cancelled models.Reservation

	sc, _, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		res := sc.ActiveReservationInSlot(slotNumber)
		if res == nil {
			return false, scrimserrors.ReservationNotFoundError(slotNumber)
		}
		res.Status = models.ReservationCancelled
		cancelled = *res

		// A team the reservation was carrying stays live and is placed again by the next allocation.
		if t := sc.TeamInSlot(slotNumber); t != nil {
			t.SlotNumber = nil
		}
		sc.RemoveCancellations(slotNumber)
		sc.CancelledSlots = append(sc.CancelledSlots, models.CancelledSlot{
			SlotNumber:  slotNumber,
			TeamName:    res.TeamName,
			User:        res.User,
			Reason:      "reservation cancelled",
			CancelledAt: s.now(),
		})
		return true, nil
	})
	s.recordOp("cancel_reservation", err)
	if err != nil {
		return err
	}

	s.logger.Info("Reservation cancelled", "scrims_id", sc.ScrimsID, "slot", slotNumber, "team", cancelled.TeamName)
	s.auditLog(ctx, sc.GuildID, "warning", fmt.Sprintf("Reservation for slot %d (%s) cancelled in %s",
		slotNumber, cancelled.TeamName, sc.Name))
	s.publish(ctx, commonevents.ReservationCancelled, sc, map[string]interface{}{
		"slot": slotNumber,
		"team": cancelled.TeamName,
		"user": cancelled.User,
	})
	s.invalidate(ctx, sc.GuildID)
	s.notifyCapacity(ctx, sc.GuildID)
	return nil
}

// PublishSlotList re-runs the allocator, persists any placement changes and posts the table.
func (s *scrimsService) PublishSlotList(ctx context.Context, scrimsID string) (slots.Layout, *apperrors.AppError) {
	var layout slots.Layout

	sc, _, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		var changed bool
		layout, changed = slots.Reallocate(sc)
		return changed, nil
	})
	if err != nil {
		return slots.Layout{}, err
	}

	s.postSlotList(ctx, sc, layout)
	s.invalidate(ctx, sc.GuildID)
	return layout, nil
}

// postSlotList replaces the previous slot list posted by the bot with the given layout.
func (s *scrimsService) postSlotList(ctx context.Context, sc *models.Scrims, layout slots.Layout) {
	if sc.SlotListChannel == "" {
		return
	}

	msgs, err := s.platform.FetchRecentMessages(ctx, sc.SlotListChannel, slotListFetchLimit)
	if err != nil {
		s.logger.Warn("Failed to fetch slot list channel", "scrims_id", sc.ScrimsID, "error", err)
	}
	for _, m := range msgs {
		if !m.FromBot || m.Kind != platform.KindSlotList {
			continue
		}
		if err := s.platform.DeleteMessage(ctx, sc.SlotListChannel, m.ID); err != nil {
			s.logger.Debug("Failed to delete old slot list", "scrims_id", sc.ScrimsID, "message_id", m.ID, "error", err)
		}
	}

	rows := make([]interface{}, 0, len(layout.Slots))
	var b strings.Builder
	for _, a := range layout.Slots {
		rows = append(rows, map[string]interface{}{
			"slot":    a.SlotNumber,
			"label":   string(a.Label),
			"team":    a.TeamName,
			"holder":  a.Holder,
			"players": stringList(a.Players),
		})
		switch a.Label {
		case slots.LabelTeam, slots.LabelReserved:
			fmt.Fprintf(&b, "%d. %s\n", a.SlotNumber, a.TeamName)
		case slots.LabelCancelled:
			fmt.Fprintf(&b, "%d. (cancelled)\n", a.SlotNumber)
		default:
			fmt.Fprintf(&b, "%d. -\n", a.SlotNumber)
		}
	}

	s.send(ctx, sc.SlotListChannel, platform.OutboundMessage{
		Kind:    platform.KindSlotList,
		Content: b.String(),
		Data: map[string]interface{}{
			"scrimsId":   sc.ScrimsID,
			"name":       sc.Name,
			"scrimsTime": sc.ScrimsTime,
			"filled":     filledSlots(layout),
			"totalSlots": sc.TotalSlots,
			"slots":      rows,
		},
	})
	s.publish(ctx, commonevents.SlotListPublished, sc, map[string]interface{}{
		"filled":   filledSlots(layout),
		"overflow": len(layout.Overflow),
	})
}

func filledSlots(layout slots.Layout) int {
	n := 0
	for _, a := range layout.Slots {
		if a.Occupied() {
			n++
		}
	}
	return n
}
