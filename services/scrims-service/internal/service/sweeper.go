package service

import (
	"context"
	"fmt"
	"time"

	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
)

// SweepExpiredReservations moves every due reservation to expired. Expired slots become plain empty
// slots: no cancellation record is written for them.
func (s *scrimsService) SweepExpiredReservations(ctx context.Context) (int, *apperrors.AppError) {
	all, err := s.store.Scrims.ListAll(ctx)
	if err != nil {
		return 0, toAppError(err)
	}

	total := 0
	for _, candidate := range all {
		if !hasDueReservation(candidate, s.now()) {
			continue
		}

		var expired []models.Reservation
		sc, changed, appErr := s.mutate(ctx, candidate.ScrimsID, func(sc *models.Scrims) (bool, error) {
			expired = expired[:0]
			now := s.now()
			for i := range sc.ReservedSlots {
				r := &sc.ReservedSlots[i]
				if r.Due(now) {
					r.Status = models.ReservationExpired
					expired = append(expired, *r)
				}
			}
			return len(expired) > 0, nil
		})
		if appErr != nil {
			if apperrors.HasCode(appErr, apperrors.CodeNotFound) {
				continue
			}
			s.logger.Error("Failed to expire reservations", "scrims_id", candidate.ScrimsID, "error", appErr)
			continue
		}
		if !changed {
			continue
		}

		total += len(expired)
		s.metrics.ExpiredReserves.Add(float64(len(expired)))

		for _, r := range expired {
			s.logger.Info("Reservation expired", "scrims_id", sc.ScrimsID, "slot", r.SlotNumber, "team", r.TeamName)
			s.auditLog(ctx, sc.GuildID, "warning", fmt.Sprintf("Reservation expired: slot %d (%s) in %s",
				r.SlotNumber, r.TeamName, sc.Name))
			s.publish(ctx, commonevents.ReservationExpired, sc, map[string]interface{}{
				"slot": r.SlotNumber,
				"team": r.TeamName,
				"user": r.User,
			})
		}
		s.invalidate(ctx, sc.GuildID)
	}

	if total > 0 {
		s.logger.Info("Expiry sweep completed", "expired", total)
	}
	return total, nil
}

func hasDueReservation(sc *models.Scrims, now time.Time) bool {
	for i := range sc.ReservedSlots {
		if sc.ReservedSlots[i].Due(now) {
			return true
		}
	}
	return false
}
