package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/slots"
)

type CloseReason string

const (
	CloseAuto   CloseReason = "auto"
	CloseManual CloseReason = "manual"
)

type TransitionResult struct {
	Scrims  *models.Scrims
	Changed bool
	From    models.ScrimsStatus
	To      models.ScrimsStatus
}

type CreateScrimsInput struct {
	GuildID             string `validate:"required"`
	Name                string `validate:"required,max=100"`
	RegistrationChannel string `validate:"required"`
	SlotListChannel     string `validate:"required"`
	RequiredRole        string
	SuccessRole         string
	RequiredTags        int    `validate:"min=1,max=10"`
	TotalSlots          int    `validate:"min=1,max=100"`
	OpenTime            string `validate:"required"`
	ScrimsTime          string `validate:"required"`
}

type RegistrationInput struct {
	ScrimsID  string
	GuildID   string
	ChannelID string
	AuthorID  string `validate:"required"`
	MessageID string
	Content   string `validate:"required"`
}

type RegistrationResult struct {
	Scrims     *models.Scrims
	Team       models.RegisteredTeam
	SlotNumber int
	AutoClosed bool
}

func (s *scrimsService) CreateScrims(ctx context.Context, input CreateScrimsInput) (*models.Scrims, *apperrors.AppError) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	if _, err := ParseClock(input.OpenTime); err != nil {
		return nil, toAppError(err)
	}
	if _, err := ParseClock(input.ScrimsTime); err != nil {
		return nil, toAppError(err)
	}

	// The channel must exist and be lockable before anything is stored.
	if err := s.platform.LockChannel(ctx, input.GuildID, input.RegistrationChannel); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCollaboratorError, "failed to prepare registration channel")
	}

	sc := &models.Scrims{
		ScrimsID:            uuid.NewString(),
		GuildID:             input.GuildID,
		Name:                input.Name,
		RegistrationChannel: input.RegistrationChannel,
		SlotListChannel:     input.SlotListChannel,
		RequiredRole:        input.RequiredRole,
		SuccessRole:         input.SuccessRole,
		RequiredTags:        input.RequiredTags,
		TotalSlots:          input.TotalSlots,
		OpenTime:            input.OpenTime,
		ScrimsTime:          input.ScrimsTime,
		Status:              models.StatusScheduled,
		RegisteredTeams:     []models.RegisteredTeam{},
		ReservedSlots:       []models.Reservation{},
		CancelledSlots:      []models.CancelledSlot{},
	}

	if err := s.store.Scrims.Create(ctx, sc); err != nil {
		return nil, toAppError(err)
	}

	if s.timers != nil {
		s.timers.Register(sc)
	}

	s.logger.Info("Scrims created", "scrims_id", sc.ScrimsID, "guild_id", sc.GuildID, "open_time", sc.OpenTime)
	s.auditLog(ctx, sc.GuildID, "success", fmt.Sprintf("Scrims created: %s (opens %s, starts %s, %d slots)",
		sc.Name, sc.OpenTime, sc.ScrimsTime, sc.TotalSlots))
	s.invalidate(ctx, sc.GuildID)

	return sc, nil
}

func (s *scrimsService) GetScrims(ctx context.Context, scrimsID string) (*models.Scrims, *apperrors.AppError) {
	sc, err := s.store.Scrims.GetByID(ctx, scrimsID)
	if err != nil {
		return nil, toAppError(err)
	}
	return sc, nil
}

func (s *scrimsService) ListScrims(ctx context.Context) ([]*models.Scrims, *apperrors.AppError) {
	all, err := s.store.Scrims.ListAll(ctx)
	if err != nil {
		return nil, toAppError(err)
	}
	return all, nil
}

func (s *scrimsService) DeleteScrims(ctx context.Context, scrimsID string) *apperrors.AppError {
	sc, err := s.store.Scrims.GetByID(ctx, scrimsID)
	if err != nil {
		return toAppError(err)
	}

	if err := s.store.Scrims.Delete(ctx, scrimsID); err != nil {
		return toAppError(err)
	}

	if s.timers != nil {
		s.timers.Unregister(scrimsID)
	}

	s.logger.Info("Scrims deleted", "scrims_id", scrimsID)
	s.auditLog(ctx, sc.GuildID, "warning", fmt.Sprintf("Scrims deleted: %s", sc.Name))
	s.invalidate(ctx, sc.GuildID)
	return nil
}

func (s *scrimsService) DeleteAllScrims(ctx context.Context, guildID string) (int, *apperrors.AppError) {
	existing, err := s.store.Scrims.ListByGuild(ctx, guildID)
	if err != nil {
		return 0, toAppError(err)
	}

	n, err := s.store.Scrims.DeleteByGuild(ctx, guildID)
	if err != nil {
		return n, toAppError(err)
	}

	if s.timers != nil {
		for _, sc := range existing {
			s.timers.Unregister(sc.ScrimsID)
		}
	}

	s.logger.Info("Guild scrims deleted", "guild_id", guildID, "count", n)
	s.auditLog(ctx, guildID, "warning", fmt.Sprintf("All scrims deleted (%d)", n))
	s.invalidate(ctx, guildID)
	return n, nil
}

func (s *scrimsService) ConfigureGuild(
	ctx context.Context,
	guildID, logChannel, adminRole string,
) (*models.GuildSettings, *apperrors.AppError) {
	if guildID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "guild id is required")
	}

	settings, err := s.store.Settings.Get(ctx, guildID)
	if err != nil {
		return nil, toAppError(err)
	}
	if settings == nil {
		settings = &models.GuildSettings{GuildID: guildID}
	}
	settings.LogChannel = logChannel
	settings.BotAdminRole = adminRole

	if err := s.store.Settings.Upsert(ctx, settings); err != nil {
		return nil, toAppError(err)
	}

	s.auditLog(ctx, guildID, "info", "Log channel configured")
	return settings, nil
}

func (s *scrimsService) OpenRegistration(ctx context.Context, scrimsID, trigger string) (*TransitionResult, *apperrors.AppError) {
	var from models.ScrimsStatus

	sc, changed, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		from = sc.Status
		if !sc.Status.CanTransitionTo(models.StatusOpen) {
			return false, nil
		}
		sc.Status = models.StatusOpen
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Scrims: sc, Changed: changed, From: from, To: sc.Status}
	if !changed {
		s.logger.Debug("Open ignored", "scrims_id", scrimsID, "status", from, "trigger", trigger)
		return result, nil
	}

	s.unlock(ctx, sc)
	s.send(ctx, sc.RegistrationChannel, platform.OutboundMessage{
		Kind:    platform.KindRegistrationOpen,
		Content: fmt.Sprintf("%s registration is now OPEN", sc.Name),
		Data:    scrimsSummary(sc),
	})
	s.ensureFormatPosted(ctx, sc)

	s.logger.Info("Registration opened", "scrims_id", sc.ScrimsID, "trigger", trigger)
	s.auditLog(ctx, sc.GuildID, "success", fmt.Sprintf("Registration opened: %s (open %s, scrims %s)",
		sc.Name, sc.OpenTime, sc.ScrimsTime))
	s.publish(ctx, commonevents.RegistrationOpened, sc, map[string]interface{}{"trigger": trigger})
	s.invalidate(ctx, sc.GuildID)

	return result, nil
}

// ensureFormatPosted sends the registration format unless one of the recent messages already is one.
func (s *scrimsService) ensureFormatPosted(ctx context.Context, sc *models.Scrims) {
	msgs, err := s.platform.FetchRecentMessages(ctx, sc.RegistrationChannel, 10)
	if err != nil {
		s.logger.Warn("Failed to fetch registration channel", "scrims_id", sc.ScrimsID, "error", err)
	}
	for _, m := range msgs {
		if m.Kind == platform.KindRegistrationFormat {
			return
		}
	}
	s.send(ctx, sc.RegistrationChannel, formatMessage(sc))
}

func formatMessage(sc *models.Scrims) platform.OutboundMessage {
	var b strings.Builder
	b.WriteString("Team Name: Your Team Name\n")
	for i := 1; i <= sc.RequiredTags; i++ {
		fmt.Fprintf(&b, "Player %d: @discorduser\n", i)
	}
	return platform.OutboundMessage{
		Kind:    platform.KindRegistrationFormat,
		Content: b.String(),
		Data:    scrimsSummary(sc),
	}
}

func scrimsSummary(sc *models.Scrims) map[string]interface{} {
	return map[string]interface{}{
		"scrimsId":     sc.ScrimsID,
		"name":         sc.Name,
		"totalSlots":   sc.TotalSlots,
		"requiredTags": sc.RequiredTags,
		"openTime":     sc.OpenTime,
		"scrimsTime":   sc.ScrimsTime,
		"successRole":  sc.SuccessRole,
		"status":       string(sc.Status),
		"reserved":     countActiveReservations(sc),
	}
}

func countActiveReservations(sc *models.Scrims) int {
	n := 0
	for i := range sc.ReservedSlots {
		if sc.ReservedSlots[i].IsActive() {
			n++
		}
	}
	return n
}

func countLiveTeams(sc *models.Scrims) int {
	n := 0
	for i := range sc.RegisteredTeams {
		if sc.RegisteredTeams[i].Live() {
			n++
		}
	}
	return n
}

// closeInPlace moves an open scrims to closed and persists the allocator's placements.
func closeInPlace(sc *models.Scrims) slots.Layout {
	sc.Status = models.StatusClosed
	layout, _ := slots.Reallocate(sc)
	return layout
}

func (s *scrimsService) CloseRegistration(ctx context.Context, scrimsID string, reason CloseReason) (*TransitionResult, *apperrors.AppError) {
	var from models.ScrimsStatus
	var layout slots.Layout

	sc, changed, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		from = sc.Status
		if !sc.Status.CanTransitionTo(models.StatusClosed) {
			return false, nil
		}
		layout = closeInPlace(sc)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Scrims: sc, Changed: changed, From: from, To: sc.Status}
	if changed {
		s.afterClose(ctx, sc, layout, reason)
	}
	return result, nil
}

func (s *scrimsService) afterClose(ctx context.Context, sc *models.Scrims, layout slots.Layout, reason CloseReason) {
	s.lock(ctx, sc)
	s.send(ctx, sc.RegistrationChannel, platform.OutboundMessage{
		Kind:    platform.KindRegistrationClosed,
		Content: fmt.Sprintf("%s registration is now CLOSED", sc.Name),
		Data: map[string]interface{}{
			"reason":     string(reason),
			"teams":      countLiveTeams(sc),
			"totalSlots": sc.TotalSlots,
			"scrimsTime": sc.ScrimsTime,
		},
	})
	s.postSlotList(ctx, sc, layout)

	if len(layout.Overflow) > 0 {
		s.logger.Warn("Teams left without a slot", "scrims_id", sc.ScrimsID, "count", len(layout.Overflow))
	}

	s.logger.Info("Registration closed", "scrims_id", sc.ScrimsID, "reason", reason)
	s.auditLog(ctx, sc.GuildID, "info", fmt.Sprintf("Registration closed: %s (reason: %s, teams: %d)",
		sc.Name, reason, countLiveTeams(sc)))
	s.publish(ctx, commonevents.RegistrationClosed, sc, map[string]interface{}{
		"reason": string(reason),
		"filled": filledSlots(layout),
	})
	s.invalidate(ctx, sc.GuildID)
}

func (s *scrimsService) ResetScrims(ctx context.Context, scrimsID string) (*TransitionResult, *apperrors.AppError) {
	var from models.ScrimsStatus
	var revoke []string

	sc, changed, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		from = sc.Status
		revoke = revoke[:0]
		for _, t := range sc.RegisteredTeams {
			if t.RoleAssigned && t.Captain != "" {
				revoke = append(revoke, t.Captain)
			}
		}

		now := s.now()
		sc.RegisteredTeams = []models.RegisteredTeam{}

		kept := make([]models.Reservation, 0, len(sc.ReservedSlots))
		if !s.opts.Reset.ClearReservations {
			for _, r := range sc.ReservedSlots {
				if r.IsActive() {
					kept = append(kept, r)
				}
			}
		}
		sc.ReservedSlots = kept

		if s.opts.Reset.ClearCancellations {
			sc.CancelledSlots = []models.CancelledSlot{}
		}

		sc.Status = models.StatusScheduled
		sc.DailySchedule.DetailsSent = false
		sc.DailySchedule.DetailsSentAt = nil
		sc.DailySchedule.LastReset = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if sc.SuccessRole != "" {
		for _, userID := range revoke {
			if err := s.platform.RevokeRole(ctx, sc.GuildID, sc.SuccessRole, userID); err != nil {
				s.logger.Warn("Failed to revoke success role", "scrims_id", sc.ScrimsID, "user_id", userID, "error", err)
			}
		}
	}
	cleared := s.clearChannel(ctx, sc.RegistrationChannel)
	s.lock(ctx, sc)

	s.logger.Info("Scrims reset", "scrims_id", sc.ScrimsID, "from", from, "roles_revoked", len(revoke), "messages_cleared", cleared)
	s.publish(ctx, commonevents.RegistrationReset, sc, map[string]interface{}{
		"from":         string(from),
		"rolesRevoked": len(revoke),
	})
	s.invalidate(ctx, sc.GuildID)

	return &TransitionResult{Scrims: sc, Changed: changed && from != models.StatusScheduled, From: from, To: sc.Status}, nil
}

// DailyReset resets every scrims. A failure on one tenant does not stop the others.
func (s *scrimsService) DailyReset(ctx context.Context) (int, *apperrors.AppError) {
	all, err := s.store.Scrims.ListAll(ctx)
	if err != nil {
		return 0, toAppError(err)
	}

	reset := 0
	perGuild := make(map[string]int)
	for _, sc := range all {
		if _, err := s.ResetScrims(ctx, sc.ScrimsID); err != nil {
			s.logger.Error("Daily reset failed", "scrims_id", sc.ScrimsID, "error", err)
			continue
		}
		reset++
		perGuild[sc.GuildID]++
	}

	for guildID, n := range perGuild {
		s.auditLog(ctx, guildID, "info", fmt.Sprintf("Daily cleanup completed: %d scrims reset, success roles removed, channels cleared", n))
	}
	return reset, nil
}

// SendDailyDetails posts the pre-open details once per reset cycle. It reports whether it sent them.
func (s *scrimsService) SendDailyDetails(ctx context.Context, scrimsID string) (bool, *apperrors.AppError) {
	sc, changed, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		if sc.DailySchedule.DetailsSent {
			return false, nil
		}
		now := s.now()
		sc.DailySchedule.DetailsSent = true
		sc.DailySchedule.DetailsSentAt = &now
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.clearChannel(ctx, sc.RegistrationChannel)
	s.send(ctx, sc.RegistrationChannel, platform.OutboundMessage{
		Kind:    platform.KindDetails,
		Content: fmt.Sprintf("%s registration opens at %s", sc.Name, sc.OpenTime),
		Data:    scrimsSummary(sc),
	})
	s.send(ctx, sc.RegistrationChannel, formatMessage(sc))

	s.logger.Info("Daily details sent", "scrims_id", sc.ScrimsID)
	s.auditLog(ctx, sc.GuildID, "info", fmt.Sprintf("Daily details sent: %s (opens at %s)", sc.Name, sc.OpenTime))
	s.publish(ctx, commonevents.DetailsPublished, sc, nil)
	return true, nil
}

func (s *scrimsService) resolveRegistrationTarget(ctx context.Context, input RegistrationInput) (string, *apperrors.AppError) {
	if input.ScrimsID != "" {
		return input.ScrimsID, nil
	}
	if input.GuildID == "" || input.ChannelID == "" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "scrims id or guild and channel are required")
	}

	all, err := s.store.Scrims.ListByGuild(ctx, input.GuildID)
	if err != nil {
		return "", toAppError(err)
	}
	for _, sc := range all {
		if sc.RegistrationChannel == input.ChannelID && sc.Status == models.StatusOpen {
			return sc.ScrimsID, nil
		}
	}
	return "", apperrors.New(apperrors.CodeNotFound, "no open scrims for this channel")
}

func (s *scrimsService) SubmitRegistration(ctx context.Context, input RegistrationInput) (*RegistrationResult, *apperrors.AppError) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	scrimsID, appErr := s.resolveRegistrationTarget(ctx, input)
	if appErr != nil {
		return nil, appErr
	}

	var team models.RegisteredTeam
	var autoClosed bool
	var layout slots.Layout

	sc, _, err := s.mutate(ctx, scrimsID, func(sc *models.Scrims) (bool, error) {
		autoClosed = false

		if sc.Status != models.StatusOpen {
			return false, scrimserrors.RegistrationClosedError(sc.Status)
		}

		parsed, err := ParseRegistration(input.Content, sc.RequiredTags)
		if err != nil {
			return false, err
		}

		if sc.LiveTeamByName(parsed.TeamName) != nil {
			return false, scrimserrors.DuplicateTeamError(parsed.TeamName)
		}
		if r := sc.ActiveReservationByName(parsed.TeamName); r != nil && r.User != input.AuthorID {
			return false, scrimserrors.DuplicateTeamError(parsed.TeamName)
		}
		for _, p := range parsed.Players {
			for i := range sc.RegisteredTeams {
				other := &sc.RegisteredTeams[i]
				if other.Live() && other.HasPlayer(p) {
					return false, scrimserrors.PlayerAlreadyRegisteredError(p, other.TeamName)
				}
			}
		}
		for i := range sc.RegisteredTeams {
			if sc.RegisteredTeams[i].Live() && sc.RegisteredTeams[i].Captain == input.AuthorID {
				return false, scrimserrors.AlreadyHoldsSlotError(input.AuthorID)
			}
		}

		team = models.RegisteredTeam{
			TeamName:     parsed.TeamName,
			Players:      parsed.Players,
			Captain:      input.AuthorID,
			RegisteredAt: s.now(),
			MessageID:    input.MessageID,
			Validated:    true,
		}

		if r := sc.ActiveReservationCovering(&team); r != nil {
			team.SlotNumber = models.IntPtr(r.SlotNumber)
		} else {
			if sc.IsFull() {
				return false, scrimserrors.NoSlotAvailableError()
			}
			slot, ok := slots.NextSlot(sc)
			if !ok {
				return false, scrimserrors.NoSlotAvailableError()
			}
			sc.RemoveCancellations(slot)
			team.SlotNumber = models.IntPtr(slot)
		}

		sc.RegisteredTeams = append(sc.RegisteredTeams, team)

		if sc.IsFull() {
			layout = closeInPlace(sc)
			autoClosed = true
		}
		return true, nil
	})
	s.recordOp("register", err)
	if err != nil {
		return nil, err
	}

	if sc.SuccessRole != "" {
		if granted := s.grantSuccessRole(ctx, sc, team); granted != nil {
			sc = granted
			team.RoleAssigned = true
		}
	}

	s.logger.Info("Team registered", "scrims_id", sc.ScrimsID, "team", team.TeamName, "captain", team.Captain, "slot", *team.SlotNumber)
	s.auditLog(ctx, sc.GuildID, "success", fmt.Sprintf("Team registered: %s (captain <@%s>) in %s",
		team.TeamName, team.Captain, sc.Name))
	s.publish(ctx, commonevents.TeamRegistered, sc, map[string]interface{}{
		"team":    team.TeamName,
		"captain": team.Captain,
		"players": stringList(team.Players),
	})
	s.invalidate(ctx, sc.GuildID)

	if autoClosed {
		s.afterClose(ctx, sc, layout, CloseAuto)
	}

	result := &RegistrationResult{Scrims: sc, Team: team, AutoClosed: autoClosed}
	if placed := sc.LiveTeamByName(team.TeamName); placed != nil && placed.SlotNumber != nil {
		result.SlotNumber = *placed.SlotNumber
	}
	return result, nil
}

// grantSuccessRole gives the captain the success role and then records it on the team. It returns the
// updated scrims, or nil when the grant or the follow-up write failed.
func (s *scrimsService) grantSuccessRole(ctx context.Context, sc *models.Scrims, team models.RegisteredTeam) *models.Scrims {
	if err := s.platform.GrantRole(ctx, sc.GuildID, sc.SuccessRole, team.Captain); err != nil {
		s.logger.Warn("Failed to grant success role", "scrims_id", sc.ScrimsID, "user_id", team.Captain, "error", err)
		return nil
	}

	updated, _, err := s.mutate(ctx, sc.ScrimsID, func(sc *models.Scrims) (bool, error) {
		t := sc.LiveTeamByName(team.TeamName)
		if t == nil || t.Captain != team.Captain || t.RoleAssigned {
			return false, nil
		}
		t.RoleAssigned = true
		return true, nil
	})
	if err != nil {
		s.logger.Warn("Failed to record success role", "scrims_id", sc.ScrimsID, "user_id", team.Captain, "error", err)
		return nil
	}
	return updated
}
