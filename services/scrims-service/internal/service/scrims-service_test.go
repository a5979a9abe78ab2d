package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus/testutil"
	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = "guild-1"

func userID() string {
	return gofakeit.Numerify("1##########")
}

func (e *testEnv) create(t *testing.T, total int, successRole string) *models.Scrims {
	t.Helper()
	sc, err := e.svc.CreateScrims(context.Background(), CreateScrimsInput{
		GuildID:             testGuild,
		Name:                gofakeit.AppName(),
		RegistrationChannel: "reg-" + gofakeit.LetterN(8),
		SlotListChannel:     "list-" + gofakeit.LetterN(8),
		SuccessRole:         successRole,
		RequiredTags:        1,
		TotalSlots:          total,
		OpenTime:            "18:30",
		ScrimsTime:          "19:00",
	})
	require.Nil(t, err)
	return sc
}

func (e *testEnv) createOpen(t *testing.T, total int) *models.Scrims {
	t.Helper()
	sc := e.create(t, total, "")
	res, err := e.svc.OpenRegistration(context.Background(), sc.ScrimsID, "test")
	require.Nil(t, err)
	require.True(t, res.Changed)
	return res.Scrims
}

func (e *testEnv) register(scrimsID, teamName, author, player string) (*RegistrationResult, *apperrors.AppError) {
	return e.svc.SubmitRegistration(context.Background(), RegistrationInput{
		ScrimsID:  scrimsID,
		AuthorID:  author,
		MessageID: gofakeit.UUID(),
		Content:   fmt.Sprintf("Team Name: %s\nPlayer 1: <@%s>", teamName, player),
	})
}

func (e *testEnv) get(t *testing.T, scrimsID string) *models.Scrims {
	t.Helper()
	sc, err := e.svc.GetScrims(context.Background(), scrimsID)
	require.Nil(t, err)
	return sc
}

func requireCode(t *testing.T, err *apperrors.AppError, code string) {
	t.Helper()
	require.NotNil(t, err)
	assert.Equal(t, code, err.Code, err.Error())
}

func TestCreateScrims_LockFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.platform.lockErr = errors.New("unknown channel")

	_, err := env.svc.CreateScrims(context.Background(), CreateScrimsInput{
		GuildID:             testGuild,
		Name:                "Evening",
		RegistrationChannel: "reg",
		SlotListChannel:     "list",
		RequiredTags:        4,
		TotalSlots:          20,
		OpenTime:            "18:30",
		ScrimsTime:          "19:00",
	})
	requireCode(t, err, apperrors.CodeCollaboratorError)

	all, listErr := env.svc.ListScrims(context.Background())
	require.Nil(t, listErr)
	assert.Empty(t, all)
}

func TestCreateScrims_ValidatesInput(t *testing.T) {
	env := newTestEnv(t, Options{})

	base := CreateScrimsInput{
		GuildID:             testGuild,
		Name:                "Evening",
		RegistrationChannel: "reg",
		SlotListChannel:     "list",
		RequiredTags:        4,
		TotalSlots:          20,
		OpenTime:            "18:30",
		ScrimsTime:          "19:00",
	}

	badTime := base
	badTime.OpenTime = "25:00"
	_, err := env.svc.CreateScrims(context.Background(), badTime)
	requireCode(t, err, apperrors.CodeInvalidInput)

	noSlots := base
	noSlots.TotalSlots = 0
	_, err = env.svc.CreateScrims(context.Background(), noSlots)
	requireCode(t, err, apperrors.CodeInvalidInput)

	sc, err := env.svc.CreateScrims(context.Background(), base)
	require.Nil(t, err)
	assert.Equal(t, models.StatusScheduled, sc.Status)
	assert.True(t, env.platform.locked["reg"])
}

func TestStateMachine_IllegalTransitionsAreNoOps(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.create(t, 4, "")

	res, err := env.svc.CloseRegistration(ctx, sc.ScrimsID, CloseManual)
	require.Nil(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.StatusScheduled, res.Scrims.Status)

	res, err = env.svc.OpenRegistration(ctx, sc.ScrimsID, "admin")
	require.Nil(t, err)
	assert.True(t, res.Changed)
	assert.False(t, env.platform.locked[sc.RegistrationChannel])

	res, err = env.svc.OpenRegistration(ctx, sc.ScrimsID, "scheduler")
	require.Nil(t, err)
	assert.False(t, res.Changed)

	res, err = env.svc.CloseRegistration(ctx, sc.ScrimsID, CloseManual)
	require.Nil(t, err)
	assert.True(t, res.Changed)
	assert.True(t, env.platform.locked[sc.RegistrationChannel])

	res, err = env.svc.CloseRegistration(ctx, sc.ScrimsID, CloseManual)
	require.Nil(t, err)
	assert.False(t, res.Changed)

	assert.Equal(t, 1, env.events.count(commonevents.RegistrationOpened))
	assert.Equal(t, 1, env.events.count(commonevents.RegistrationClosed))
}

func TestOpenRegistration_PostsFormatOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	sc := env.create(t, 4, "")

	sent, err := env.svc.SendDailyDetails(context.Background(), sc.ScrimsID)
	require.Nil(t, err)
	require.True(t, sent)

	_, err = env.svc.OpenRegistration(context.Background(), sc.ScrimsID, "scheduler")
	require.Nil(t, err)

	formats := 0
	for _, k := range env.platform.kinds(sc.RegistrationChannel) {
		if k == platform.KindRegistrationFormat {
			formats++
		}
	}
	assert.Equal(t, 1, formats)
}

func TestScenario_CancelledSlotIsReusedFirst(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	captainA := userID()
	regA, err := env.register(sc.ScrimsID, "Alpha", captainA, captainA)
	require.Nil(t, err)
	assert.Equal(t, 1, regA.SlotNumber)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: 1, UserID: captainA, Reason: "no show"})
	require.Nil(t, err)

	after := env.get(t, sc.ScrimsID)
	require.Len(t, after.CancelledSlots, 1)
	assert.Equal(t, 1, after.CancelledSlots[0].SlotNumber)
	alpha := after.TeamByName("Alpha")
	require.NotNil(t, alpha)
	assert.Nil(t, alpha.SlotNumber)
	assert.NotNil(t, alpha.CancelledAt)

	claimB, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Bravo", UserID: userID()})
	require.Nil(t, err)
	assert.Equal(t, 1, claimB.SlotNumber)
	assert.Empty(t, env.get(t, sc.ScrimsID).CancelledSlots)

	claimC, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Charlie", UserID: userID()})
	require.Nil(t, err)
	assert.Equal(t, 2, claimC.SlotNumber)
}

func TestRegistration_FirstComeFirstServed(t *testing.T) {
	env := newTestEnv(t, Options{})
	sc := env.createOpen(t, 4)

	a := userID()
	first, err := env.register(sc.ScrimsID, "Alpha", a, a)
	require.Nil(t, err)
	env.clock.Advance(time.Second)
	b := userID()
	second, err := env.register(sc.ScrimsID, "Bravo", b, b)
	require.Nil(t, err)

	assert.Equal(t, 1, first.SlotNumber)
	assert.Equal(t, 2, second.SlotNumber)
}

func TestRegistration_Rejections(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.create(t, 4, "role-winner")

	author := userID()
	_, err := env.register(sc.ScrimsID, "Alpha", author, author)
	requireCode(t, err, apperrors.CodeRegistrationClosed)

	_, err = env.svc.OpenRegistration(ctx, sc.ScrimsID, "admin")
	require.Nil(t, err)

	_, err = env.register(sc.ScrimsID, "Alpha", author, author)
	require.Nil(t, err)
	assert.Equal(t, []string{author}, env.platform.granted)

	other := userID()
	_, err = env.register(sc.ScrimsID, "ALPHA", other, other)
	requireCode(t, err, apperrors.CodeDuplicateTeam)

	_, err = env.register(sc.ScrimsID, "Bravo", other, author)
	requireCode(t, err, apperrors.CodeDuplicateTeam)

	fresh := userID()
	_, err = env.register(sc.ScrimsID, "Charlie", author, fresh)
	requireCode(t, err, apperrors.CodeSlotTaken)

	_, err = env.svc.SubmitRegistration(ctx, RegistrationInput{
		ScrimsID: sc.ScrimsID,
		AuthorID: other,
		Content:  "Team Name: Delta",
	})
	requireCode(t, err, apperrors.CodeInvalidInput)

	stored := env.get(t, sc.ScrimsID)
	require.Len(t, stored.RegisteredTeams, 1)
	assert.True(t, stored.RegisteredTeams[0].RoleAssigned)
}

func TestRegistration_ResolvesOpenScrimsByChannel(t *testing.T) {
	env := newTestEnv(t, Options{})
	sc := env.createOpen(t, 4)

	author := userID()
	res, err := env.svc.SubmitRegistration(context.Background(), RegistrationInput{
		GuildID:   testGuild,
		ChannelID: sc.RegistrationChannel,
		AuthorID:  author,
		Content:   fmt.Sprintf("Team Name: Alpha\nPlayer 1: <@%s>", author),
	})
	require.Nil(t, err)
	assert.Equal(t, sc.ScrimsID, res.Scrims.ScrimsID)

	_, err = env.svc.SubmitRegistration(context.Background(), RegistrationInput{
		GuildID:   testGuild,
		ChannelID: "somewhere-else",
		AuthorID:  author,
		Content:   "Team Name: Bravo",
	})
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestAutoClose_ExactlyOnceUnderConcurrentRegistrations(t *testing.T) {
	env := newTestEnv(t, Options{MaxConflictRetries: 100})
	sc := env.createOpen(t, 2)

	const contenders = 8
	var wg sync.WaitGroup
	results := make([]*RegistrationResult, contenders)
	failures := make([]*apperrors.AppError, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			captain := fmt.Sprintf("%d", 1000+i)
			results[i], failures[i] = env.register(sc.ScrimsID, fmt.Sprintf("Team %d", i), captain, captain)
		}(i)
	}
	wg.Wait()

	succeeded, autoClosed := 0, 0
	for i := 0; i < contenders; i++ {
		if failures[i] != nil {
			assert.Contains(t,
				[]string{apperrors.CodeNoSlotAvailable, apperrors.CodeRegistrationClosed},
				failures[i].Code)
			continue
		}
		succeeded++
		if results[i].AutoClosed {
			autoClosed++
		}
	}

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, autoClosed)
	assert.Equal(t, 1, env.events.count(commonevents.RegistrationClosed))

	final := env.get(t, sc.ScrimsID)
	assert.Equal(t, models.StatusClosed, final.Status)
	assert.Equal(t, 2, final.OccupiedCount())
}

func TestReserveSlot_CollisionLeavesRecordUntouched(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	a := userID()
	_, err := env.register(sc.ScrimsID, "Alpha", a, a)
	require.Nil(t, err)

	before := env.get(t, sc.ScrimsID)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 1, TeamName: "Reserved", UserID: userID(), TTL: "1h"})
	requireCode(t, err, apperrors.CodeSlotTaken)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 9, TeamName: "Reserved", UserID: userID(), TTL: "1h"})
	requireCode(t, err, apperrors.CodeSlotOutOfRange)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Reserved", UserID: userID(), TTL: "soon"})
	requireCode(t, err, apperrors.CodeInvalidInput)

	assert.Equal(t, before.Version, env.get(t, sc.ScrimsID).Version)

	r, err := env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Reserved", UserID: userID(), TTL: "2h"})
	require.Nil(t, err)
	assert.Equal(t, env.clock.Now().Add(2*time.Hour), r.ExpiresAt)

	held := env.get(t, sc.ScrimsID)
	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Other", UserID: userID(), TTL: "1h"})
	requireCode(t, err, apperrors.CodeSlotTaken)
	assert.Equal(t, held.Version, env.get(t, sc.ScrimsID).Version)
}

func TestReservation_ExpiresToEmptySlot(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	_, err := env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Reserved", UserID: userID(), TTL: "10m"})
	require.Nil(t, err)

	n, err := env.svc.SweepExpiredReservations(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, env.get(t, sc.ScrimsID).AvailableSlots())

	env.clock.Advance(11 * time.Minute)

	n, err = env.svc.SweepExpiredReservations(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ExpiredReserves))

	layout, err := env.svc.PublishSlotList(ctx, sc.ScrimsID)
	require.Nil(t, err)
	require.Len(t, layout.Slots, 3)
	assert.Equal(t, slots.LabelEmpty, layout.Slots[1].Label)

	stored := env.get(t, sc.ScrimsID)
	assert.Empty(t, stored.CancelledSlots)
	assert.Equal(t, models.ReservationExpired, stored.ReservedSlots[0].Status)
	assert.Equal(t, 3, stored.AvailableSlots())

	n, err = env.svc.SweepExpiredReservations(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)
}

func TestCancelReservation(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	err := env.svc.CancelReservation(ctx, sc.ScrimsID, 2)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Reserved", UserID: userID(), TTL: "1h"})
	require.Nil(t, err)

	require.Nil(t, env.svc.CancelReservation(ctx, sc.ScrimsID, 2))

	stored := env.get(t, sc.ScrimsID)
	assert.Equal(t, models.ReservationCancelled, stored.ReservedSlots[0].Status)
	assert.True(t, stored.IsCancelled(2))

	next, ok := slots.NextSlot(stored)
	require.True(t, ok)
	assert.Equal(t, 2, next)
}

func TestClaim_ReviveVersusNewRecord(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 4)

	a := userID()
	first, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Alpha", UserID: a})
	require.Nil(t, err)
	assert.False(t, first.Revived)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: first.SlotNumber, UserID: a})
	require.Nil(t, err)

	again, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "alpha", UserID: a})
	require.Nil(t, err)
	assert.True(t, again.Revived)
	assert.Equal(t, first.SlotNumber, again.SlotNumber)
	assert.Len(t, env.get(t, sc.ScrimsID).RegisteredTeams, 1)

	b := userID()
	bravo, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Bravo", UserID: b})
	require.Nil(t, err)
	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: bravo.SlotNumber, UserID: b})
	require.Nil(t, err)

	c := userID()
	taken, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Bravo", UserID: c})
	require.Nil(t, err)
	assert.False(t, taken.Revived)

	stored := env.get(t, sc.ScrimsID)
	assert.Len(t, stored.RegisteredTeams, 3)
	assert.Equal(t, c, stored.LiveTeamByName("Bravo").Captain)
}

func TestClaim_OneSlotPerCaptain(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 4)

	a := userID()
	_, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Alpha", UserID: a})
	require.Nil(t, err)

	_, err = env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Second", UserID: a})
	requireCode(t, err, apperrors.CodeSlotTaken)

	_, err = env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "ALPHA", UserID: userID()})
	requireCode(t, err, apperrors.CodeDuplicateTeam)
}

func TestClaim_RequiresOpenOrClosed(t *testing.T) {
	env := newTestEnv(t, Options{})
	sc := env.create(t, 4, "")

	_, err := env.svc.ClaimSlot(context.Background(), ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Alpha", UserID: userID()})
	requireCode(t, err, apperrors.CodeRegistrationClosed)
}

func TestCancelSlot_Ownership(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 4)

	a := userID()
	claim, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Alpha", UserID: a})
	require.Nil(t, err)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: claim.SlotNumber, UserID: userID()})
	requireCode(t, err, apperrors.CodeNotSlotOwner)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: 9, UserID: a})
	requireCode(t, err, apperrors.CodeSlotOutOfRange)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: 3, UserID: a})
	requireCode(t, err, apperrors.CodeNotFound)

	res, err := env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: claim.SlotNumber, UserID: "admin", Admin: true})
	require.Nil(t, err)
	assert.Equal(t, "Alpha", res.TeamName)
	assert.Equal(t, 1, env.events.count(commonevents.SlotCancelled))
}

func TestCancelSlot_NotifiesWaitingReminders(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 1)

	a := userID()
	claim, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Alpha", UserID: a})
	require.Nil(t, err)
	require.True(t, claim.AutoClosed)

	waiter := userID()
	_, err = env.svc.SetReminder(ctx, testGuild, waiter, "waiter#0001")
	require.Nil(t, err)

	n, err := env.svc.DispatchReminders(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)
	before := env.platform.dmCount()

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: claim.SlotNumber, UserID: a})
	require.Nil(t, err)

	assert.Equal(t, before+1, env.platform.dmCount())
	reminder, repoErr := env.store.Reminders.Get(ctx, testGuild, waiter)
	require.NoError(t, repoErr)
	assert.True(t, reminder.Notified)
}

func TestReminder_DeliveredExactlyOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	full := env.createOpen(t, 1)
	_, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: full.ScrimsID, TeamName: "Alpha", UserID: userID()})
	require.Nil(t, err)
	env.createOpen(t, 2)

	waiter := userID()
	_, err = env.svc.SetReminder(ctx, testGuild, waiter, "waiter#0001")
	require.Nil(t, err)

	_, err = env.svc.SetReminder(ctx, testGuild, waiter, "waiter#0001")
	requireCode(t, err, apperrors.CodeReminderExists)

	before := env.platform.dmCount()

	n, err := env.svc.DispatchReminders(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, env.platform.dmCount())

	n, err = env.svc.DispatchReminders(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before+1, env.platform.dmCount())

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RemindersSent.WithLabelValues("sent")))

	_, err = env.svc.SetReminder(ctx, testGuild, waiter, "waiter#0001")
	assert.Nil(t, err, "a delivered reminder can be requested again")
}

func TestReminder_FailedDeliveryIsNotRetried(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.createOpen(t, 2)

	waiter := userID()
	_, err := env.svc.SetReminder(ctx, testGuild, waiter, "")
	require.Nil(t, err)

	env.platform.dmErr = errors.New("dms closed")
	n, err := env.svc.DispatchReminders(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)

	env.platform.dmErr = nil
	before := env.platform.dmCount()
	n, err = env.svc.DispatchReminders(ctx)
	require.Nil(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, env.platform.dmCount())
}

func TestGetAvailability_SortedAndFiltered(t *testing.T) {
	env := newTestEnv(t, Options{})

	small := env.createOpen(t, 2)
	large := env.createOpen(t, 5)
	env.create(t, 8, "")

	got, err := env.svc.GetAvailability(context.Background(), testGuild)
	require.Nil(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, large.ScrimsID, got[0].ScrimsID)
	assert.Equal(t, 5, got[0].Available)
	assert.Equal(t, small.ScrimsID, got[1].ScrimsID)
}

func TestResetScrims_AppliesPolicy(t *testing.T) {
	tests := []struct {
		name             string
		policy           ResetPolicy
		wantReservations int
		wantCancelled    int
	}{
		{"keep reservations, clear cancellations", ResetPolicy{ClearCancellations: true}, 1, 0},
		{"clear everything", ResetPolicy{ClearReservations: true, ClearCancellations: true}, 0, 0},
		{"keep both", ResetPolicy{}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{Reset: tt.policy})
			ctx := context.Background()
			sc := env.create(t, 4, "role-winner")
			_, err := env.svc.OpenRegistration(ctx, sc.ScrimsID, "admin")
			require.Nil(t, err)

			a := userID()
			_, err = env.register(sc.ScrimsID, "Alpha", a, a)
			require.Nil(t, err)

			b := userID()
			claim, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Bravo", UserID: b})
			require.Nil(t, err)
			_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: claim.SlotNumber, UserID: b})
			require.Nil(t, err)

			_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 4, TeamName: "Reserved", UserID: userID(), TTL: "1d"})
			require.Nil(t, err)

			res, err := env.svc.ResetScrims(ctx, sc.ScrimsID)
			require.Nil(t, err)
			assert.True(t, res.Changed)

			stored := env.get(t, sc.ScrimsID)
			assert.Equal(t, models.StatusScheduled, stored.Status)
			assert.Empty(t, stored.RegisteredTeams)
			assert.Len(t, stored.ReservedSlots, tt.wantReservations)
			assert.Len(t, stored.CancelledSlots, tt.wantCancelled)
			assert.False(t, stored.DailySchedule.DetailsSent)
			require.NotNil(t, stored.DailySchedule.LastReset)
			assert.Equal(t, []string{a}, env.platform.revoked)
			assert.True(t, env.platform.locked[sc.RegistrationChannel])
		})
	}
}

func TestDailyReset_CoversEveryScrims(t *testing.T) {
	env := newTestEnv(t, Options{})
	open := env.createOpen(t, 3)
	env.create(t, 3, "")

	n, err := env.svc.DailyReset(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.StatusScheduled, env.get(t, open.ScrimsID).Status)
	assert.Equal(t, 2, env.events.count(commonevents.RegistrationReset))
}

func TestSendDailyDetails_OncePerCycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.create(t, 4, "")

	sent, err := env.svc.SendDailyDetails(ctx, sc.ScrimsID)
	require.Nil(t, err)
	assert.True(t, sent)
	assert.Contains(t, env.platform.kinds(sc.RegistrationChannel), platform.KindDetails)

	sent, err = env.svc.SendDailyDetails(ctx, sc.ScrimsID)
	require.Nil(t, err)
	assert.False(t, sent)

	_, err = env.svc.ResetScrims(ctx, sc.ScrimsID)
	require.Nil(t, err)

	sent, err = env.svc.SendDailyDetails(ctx, sc.ScrimsID)
	require.Nil(t, err)
	assert.True(t, sent)
}

func TestPublishSlotList_ReplacesPreviousList(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	a := userID()
	_, err := env.register(sc.ScrimsID, "Alpha", a, a)
	require.Nil(t, err)

	_, err = env.svc.CloseRegistration(ctx, sc.ScrimsID, CloseManual)
	require.Nil(t, err)
	layout, err := env.svc.PublishSlotList(ctx, sc.ScrimsID)
	require.Nil(t, err)

	assert.Equal(t, []string{platform.KindSlotList}, env.platform.kinds(sc.SlotListChannel))
	assert.Equal(t, slots.LabelTeam, layout.Slots[0].Label)
	assert.Equal(t, "Alpha", layout.Slots[0].TeamName)
	assert.Equal(t, 2, env.events.count(commonevents.SlotListPublished))
}

func TestDeleteScrims(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	one := env.create(t, 2, "")
	env.create(t, 2, "")

	require.Nil(t, env.svc.DeleteScrims(ctx, one.ScrimsID))
	_, err := env.svc.GetScrims(ctx, one.ScrimsID)
	requireCode(t, err, apperrors.CodeNotFound)

	n, err := env.svc.DeleteAllScrims(ctx, testGuild)
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	all, err := env.svc.ListScrims(ctx)
	require.Nil(t, err)
	assert.Empty(t, all)
}

func TestConfigureGuild_AuditLog(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	_, err := env.svc.ConfigureGuild(ctx, testGuild, "log-channel", "admins")
	require.Nil(t, err)

	env.createOpen(t, 2)
	assert.Contains(t, env.platform.kinds("log-channel"), platform.KindAuditLog)
}

func TestRegistration_FailedRoleGrantIsNotRecorded(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.create(t, 4, "role-winner")
	_, err := env.svc.OpenRegistration(ctx, sc.ScrimsID, "admin")
	require.Nil(t, err)

	env.platform.grantErr = errors.New("missing permissions")
	author := userID()
	res, err := env.register(sc.ScrimsID, "Alpha", author, author)
	require.Nil(t, err)
	assert.False(t, res.Team.RoleAssigned)

	stored := env.get(t, sc.ScrimsID)
	require.Len(t, stored.RegisteredTeams, 1)
	assert.False(t, stored.RegisteredTeams[0].RoleAssigned)

	_, err = env.svc.CancelSlot(ctx, CancelInput{ScrimsID: sc.ScrimsID, SlotNumber: 1, UserID: author})
	require.Nil(t, err)
	assert.Empty(t, env.platform.revoked)
}

func TestReserveSlot_MovesCaptainsTeamIntoReservedSlot(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 3)

	a := userID()
	_, err := env.register(sc.ScrimsID, "Alpha", a, a)
	require.Nil(t, err)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Alpha", UserID: a, TTL: "1h"})
	require.Nil(t, err)

	stored := env.get(t, sc.ScrimsID)
	assert.Equal(t, 1, stored.OccupiedCount())
	assert.False(t, stored.SlotTaken(1))
	assert.True(t, stored.SlotTaken(2))
	require.NotNil(t, stored.RegisteredTeams[0].SlotNumber)
	assert.Equal(t, 2, *stored.RegisteredTeams[0].SlotNumber)

	b := userID()
	claim, err := env.svc.ClaimSlot(ctx, ClaimInput{ScrimsID: sc.ScrimsID, TeamName: "Bravo", UserID: b})
	require.Nil(t, err)
	assert.Equal(t, 1, claim.SlotNumber)
}

func TestReserveSlot_FillingLastSlotAutoCloses(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sc := env.createOpen(t, 2)

	a := userID()
	_, err := env.register(sc.ScrimsID, "Alpha", a, a)
	require.Nil(t, err)

	_, err = env.svc.ReserveSlot(ctx, ReserveInput{ScrimsID: sc.ScrimsID, SlotNumber: 2, TeamName: "Reserved", UserID: userID(), TTL: "1h"})
	require.Nil(t, err)

	stored := env.get(t, sc.ScrimsID)
	assert.True(t, stored.IsFull())
	assert.Equal(t, models.StatusClosed, stored.Status)
	assert.True(t, env.platform.locked[stored.RegistrationChannel])
	assert.Contains(t, env.platform.kinds(stored.SlotListChannel), platform.KindSlotList)
	assert.Equal(t, 1, env.events.count(commonevents.RegistrationClosed))
}
