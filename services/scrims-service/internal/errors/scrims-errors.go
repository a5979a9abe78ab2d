package errors

import (
	"fmt"

	apperrors "github.com/scrimx/scrims/common/errors"
)

func ScrimsNotFoundError(scrimsID string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("scrims %s not found", scrimsID))
}

func DuplicateTeamError(teamName string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeDuplicateTeam,
		fmt.Sprintf("team name %q is already registered", teamName))
}

func PlayerAlreadyRegisteredError(userID, teamName string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeDuplicateTeam,
		fmt.Sprintf("player <@%s> is already registered with team %q", userID, teamName))
}

func SlotTakenError(slot int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeSlotTaken, fmt.Sprintf("slot %d is already taken", slot))
}

func SlotOutOfRangeError(slot, total int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeSlotOutOfRange,
		fmt.Sprintf("slot %d is outside 1..%d", slot, total))
}

func NotSlotOwnerError(slot int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeNotSlotOwner,
		fmt.Sprintf("only the captain or reservation holder can cancel slot %d", slot))
}

func NoSlotAvailableError() *apperrors.AppError {
	return apperrors.New(apperrors.CodeNoSlotAvailable, "no slots available")
}

func AlreadyHoldsSlotError(userID string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeSlotTaken,
		fmt.Sprintf("<@%s> already holds a slot in this scrims", userID))
}

func RegistrationClosedError(status fmt.Stringer) *apperrors.AppError {
	return apperrors.New(apperrors.CodeRegistrationClosed,
		fmt.Sprintf("registration is not accepting entries (status: %s)", status))
}

func InvalidTimeError(value string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidInput,
		fmt.Sprintf("invalid time %q, use HH:MM in 24-hour format", value))
}

func InvalidDurationError(value string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidInput,
		fmt.Sprintf("invalid duration %q, use formats like 30m, 2h or 1d", value))
}

func MalformedRegistrationError(reason string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidInput, "malformed registration: "+reason)
}

func ReminderExistsError() *apperrors.AppError {
	return apperrors.New(apperrors.CodeReminderExists, "you already have an active reminder")
}

func ReservationNotFoundError(slot int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no active reservation for slot %d", slot))
}

func ConflictExhaustedError(scrimsID string, attempts int, err error) *apperrors.AppError {
	return apperrors.Wrap(err, apperrors.CodeConflict,
		fmt.Sprintf("scrims %s kept changing, gave up after %d attempts", scrimsID, attempts))
}

func VersionConflictError(scrimsID string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeConflict, fmt.Sprintf("scrims %s was modified concurrently", scrimsID))
}

func SlotNotOccupiedError(slot int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("slot %d is not occupied", slot))
}
