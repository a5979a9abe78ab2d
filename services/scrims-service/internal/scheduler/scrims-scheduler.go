package scheduler

import (
	"context"

	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/service"
)

// Jobs is what the scheduler fires. ScrimsScheduler implements it on top of the scrims service.
type Jobs interface {
	ListScrims(ctx context.Context) ([]*models.Scrims, error)
	SendDetails(ctx context.Context, scrimsID string) error
	OpenRegistration(ctx context.Context, scrimsID string) error
	SweepExpired(ctx context.Context) error
	DispatchReminders(ctx context.Context) error
	DailyReset(ctx context.Context) error
}

type ScrimsScheduler struct {
	scrimsService service.ScrimsService
	logger        *logger.Logger
}

func NewScrimsScheduler(scrimsService service.ScrimsService, log *logger.Logger) *ScrimsScheduler {
	return &ScrimsScheduler{
		scrimsService: scrimsService,
		logger:        log.With("component", "scrims_jobs"),
	}
}

func (ss *ScrimsScheduler) ListScrims(ctx context.Context) ([]*models.Scrims, error) {
	all, err := ss.scrimsService.ListScrims(ctx)
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (ss *ScrimsScheduler) SendDetails(ctx context.Context, scrimsID string) error {
	sent, err := ss.scrimsService.SendDailyDetails(ctx, scrimsID)
	if err != nil {
		return err
	}
	if !sent {
		ss.logger.Debug("Details already sent for this cycle", "scrims_id", scrimsID)
	}
	return nil
}

func (ss *ScrimsScheduler) OpenRegistration(ctx context.Context, scrimsID string) error {
	result, err := ss.scrimsService.OpenRegistration(ctx, scrimsID, "scheduler")
	if err != nil {
		return err
	}
	if !result.Changed {
		ss.logger.Info("Scheduled open skipped", "scrims_id", scrimsID, "status", result.From)
	}
	return nil
}

func (ss *ScrimsScheduler) SweepExpired(ctx context.Context) error {
	if _, err := ss.scrimsService.SweepExpiredReservations(ctx); err != nil {
		return err
	}
	return nil
}

func (ss *ScrimsScheduler) DispatchReminders(ctx context.Context) error {
	n, err := ss.scrimsService.DispatchReminders(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		ss.logger.Info("Reminder sweep delivered", "count", n)
	}
	return nil
}

func (ss *ScrimsScheduler) DailyReset(ctx context.Context) error {
	n, err := ss.scrimsService.DailyReset(ctx)
	if err != nil {
		return err
	}
	ss.logger.Info("Daily reset completed", "scrims", n)
	return nil
}
