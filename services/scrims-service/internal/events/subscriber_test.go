package events

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeIntake struct {
	registration *service.RegistrationInput
	claim        *service.ClaimInput
	cancel       *service.CancelInput
	reminder     []string

	err *apperrors.AppError
}

func (f *fakeIntake) SubmitRegistration(ctx context.Context, input service.RegistrationInput) (*service.RegistrationResult, *apperrors.AppError) {
	f.registration = &input
	if f.err != nil {
		return nil, f.err
	}
	return &service.RegistrationResult{Scrims: &models.Scrims{ScrimsID: input.ScrimsID}}, nil
}

func (f *fakeIntake) ClaimSlot(ctx context.Context, input service.ClaimInput) (*service.SlotResult, *apperrors.AppError) {
	f.claim = &input
	if f.err != nil {
		return nil, f.err
	}
	return &service.SlotResult{SlotNumber: 1}, nil
}

func (f *fakeIntake) CancelSlot(ctx context.Context, input service.CancelInput) (*service.SlotResult, *apperrors.AppError) {
	f.cancel = &input
	if f.err != nil {
		return nil, f.err
	}
	return &service.SlotResult{SlotNumber: input.SlotNumber}, nil
}

func (f *fakeIntake) SetReminder(ctx context.Context, guildID, userID, userTag string) (*models.Reminder, *apperrors.AppError) {
	f.reminder = []string{guildID, userID, userTag}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Reminder{GuildID: guildID, UserID: userID}, nil
}

func newTestSubscriber(intake IntakeService) *EventSubscriber {
	return &EventSubscriber{scrimsService: intake, logger: logger.Nop()}
}

func encode(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	st, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	data, err := proto.Marshal(st)
	require.NoError(t, err)
	return data
}

func TestRoute_Registration(t *testing.T) {
	intake := &fakeIntake{}
	s := newTestSubscriber(intake)

	author := gofakeit.Numerify("##########")
	data := encode(t, map[string]interface{}{
		"guildId":   "g1",
		"channelId": "c1",
		"authorId":  author,
		"messageId": "m1",
		"content":   "Team Name: Alpha\nPlayer 1: <@1>",
	})

	require.NoError(t, s.route(context.Background(), commonevents.IntakeRegistration, data))
	require.NotNil(t, intake.registration)
	assert.Equal(t, "c1", intake.registration.ChannelID)
	assert.Equal(t, author, intake.registration.AuthorID)
	assert.Contains(t, intake.registration.Content, "Alpha")
}

func TestRoute_CancelReadsNumbers(t *testing.T) {
	intake := &fakeIntake{}
	s := newTestSubscriber(intake)

	data := encode(t, map[string]interface{}{
		"scrimsId":   "s1",
		"slotNumber": 4,
		"userId":     "u1",
		"admin":      true,
	})

	require.NoError(t, s.route(context.Background(), commonevents.IntakeCancel, data))
	require.NotNil(t, intake.cancel)
	assert.Equal(t, 4, intake.cancel.SlotNumber)
	assert.True(t, intake.cancel.Admin)
}

func TestRoute_ClaimAndReminder(t *testing.T) {
	intake := &fakeIntake{}
	s := newTestSubscriber(intake)

	require.NoError(t, s.route(context.Background(), commonevents.IntakeClaim,
		encode(t, map[string]interface{}{"scrimsId": "s1", "teamName": "Bravo", "userId": "u2"})))
	require.NotNil(t, intake.claim)
	assert.Equal(t, "Bravo", intake.claim.TeamName)

	require.NoError(t, s.route(context.Background(), commonevents.IntakeReminder,
		encode(t, map[string]interface{}{"guildId": "g1", "userId": "u3", "userTag": "user#3"})))
	assert.Equal(t, []string{"g1", "u3", "user#3"}, intake.reminder)
}

func TestRoute_RejectionsKeepTheirCode(t *testing.T) {
	intake := &fakeIntake{err: apperrors.New(apperrors.CodeSlotTaken, "taken")}
	s := newTestSubscriber(intake)

	err := s.route(context.Background(), commonevents.IntakeClaim,
		encode(t, map[string]interface{}{"scrimsId": "s1", "teamName": "Bravo", "userId": "u2"}))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRoute_MalformedPayloadIsTerminal(t *testing.T) {
	s := newTestSubscriber(&fakeIntake{})

	err := s.route(context.Background(), commonevents.IntakeClaim, []byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRoute_UnknownSubjectIsIgnored(t *testing.T) {
	intake := &fakeIntake{}
	s := newTestSubscriber(intake)

	assert.NoError(t, s.route(context.Background(), "intake.scrims.unknown", nil))
	assert.Nil(t, intake.claim)
}
