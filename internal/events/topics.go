package events

// Topic constants for domain events emitted by the service.
const (
	TopicQuoteCreated      = "quote.created"
	TopicSessionCompleted  = "session.completed"
	TopicDecisionSubmitted = "decision.submitted"
)
