package errors

const (
	// Generic codes
	CodeNotFound             = "NOT_FOUND"
	CodeAlreadyExists        = "ALREADY_EXISTS"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternalServer       = "INTERNAL_SERVER"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeEventPublishError    = "EVENT_PUBLISH_ERROR"
	CodeObjectMarshalError   = "OBJECT_MARSHALL_ERROR"
	CodeObjectUnmarshalError = "OBJECT_UNMARSHALL_ERROR"
	CodeDatabaseError        = "DATABASE_ERROR"
	CodeTransactionError     = "TRANSACTION_ERROR"
	CodeCollaboratorError    = "COLLABORATOR_ERROR"
	CodeCacheError           = "CACHE_ERROR"

	// Slot lifecycle codes
	CodeSlotTaken          = "SLOT_TAKEN"
	CodeSlotOutOfRange     = "SLOT_OUT_OF_RANGE"
	CodeNoSlotAvailable    = "NO_SLOT_AVAILABLE"
	CodeNotSlotOwner       = "NOT_SLOT_OWNER"
	CodeDuplicateTeam      = "DUPLICATE_TEAM"
	CodeRegistrationClosed = "REGISTRATION_CLOSED"
	CodeReminderExists     = "REMINDER_EXISTS"
)
