package messaging

// Subject layout for the palletline event bus.
//
// Every published envelope lands on events.<routing-key>, where the routing
// key is the lower-cased, dot-separated form of the event type. Dead letters
// are parked on the dead-letter subject after the consumer retry budget is
// exhausted.
const (
	// SubjectPrefix is prepended to every routing key.
	SubjectPrefix = "events."

	// SubjectWildcard matches every event subject.
	SubjectWildcard = "events.>"

	// SubjectDeadLetter is where exhausted messages are parked. Dead letters
	// live under their own root so the stream subject spaces do not overlap.
	SubjectDeadLetter = "dlx.events.dead-letter"

	// SubjectDeadLetterWildcard matches everything on the dead-letter exchange.
	SubjectDeadLetterWildcard = "dlx.events.>"
)

// Stream and consumer names.
const (
	// StreamEvents is the durable work-queue stream backing the fan-in queue.
	StreamEvents = "EVENTS"

	// StreamDeadLetter is the durable dead-letter stream.
	StreamDeadLetter = "EVENTS_DLQ"

	// ConsumerAgentProcessor is the durable consumer the agent runtime drains.
	ConsumerAgentProcessor = "agent-processor"
)

// EventSubject returns the broker subject for a routing key.
// inventory.movement.recorded -> events.inventory.movement.recorded
func EventSubject(routingKey string) string {
	return SubjectPrefix + routingKey
}
