package events

const (
	// Streams
	ScrimsEventsStream = "SCRIMS_EVENTS"
	ScrimsIntakeStream = "SCRIMS_INTAKE"

	// Events
	RegistrationOpened   = "events.scrims.registrationOpened"
	RegistrationClosed   = "events.scrims.registrationClosed"
	RegistrationReset    = "events.scrims.registrationReset"
	DetailsPublished     = "events.scrims.detailsPublished"
	TeamRegistered       = "events.scrims.teamRegistered"
	SlotClaimed          = "events.scrims.slotClaimed"
	SlotCancelled        = "events.scrims.slotCancelled"
	SlotReserved         = "events.scrims.slotReserved"
	ReservationCancelled = "events.scrims.reservationCancelled"
	ReservationExpired   = "events.scrims.reservationExpired"
	SlotListPublished    = "events.scrims.slotListPublished"
	RemindersDispatched  = "events.scrims.remindersDispatched"

	// Inbound commands
	IntakeRegistration = "intake.scrims.registration"
	IntakeClaim        = "intake.scrims.claim"
	IntakeCancel       = "intake.scrims.cancel"
	IntakeReminder     = "intake.scrims.reminder"

	// Event Wildcards
	ScrimsEventsWildcard = "events.scrims.*"
	ScrimsIntakeWildcard = "intake.scrims.*"
)
