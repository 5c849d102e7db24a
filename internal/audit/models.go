package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	// Subject identifies who the event is about, in domain.Identity string
	// form ("user:<id>" or "guest:<id>").
	Subject string
	Action  string
	Reason  string
}

// Actions recorded by the services. Stores persist them verbatim.
const (
	ActionDocumentCreated   = "document_created"
	ActionQuotaDenied       = "quota_denied"
	ActionGuestBlocked      = "guest_blocked"
	ActionLessonCompleted   = "lesson_completed"
	ActionLessonReset       = "lesson_reset"
	ActionTransferCompleted = "transfer_completed"
	ActionSubscriptionSync  = "subscription_synced"
)
