package stream

// Outbound event names published to the event plane.
const (
	EventStreamStarted  = "stream_started"
	EventStreamStopped  = "stream_stopped"
	EventFrameAnalyzed  = "frame_analyzed"
	EventStreamDegraded = "stream_degraded"
	EventStreamFailed   = "stream_failed"
)

// Publisher hands outbound events to the external transport layer. The
// core never knows how (or whether) they reach subscribers; implementations
// must not block.
type Publisher interface {
	Publish(streamID, event string, payload interface{})
}

// NopPublisher discards events. Used when no event plane is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, interface{}) {}

// Session end reasons recorded in audit rows and failure events.
const (
	ReasonClientStop       = "client_stop"
	ReasonIngestionTimeout = "ingestion_timeout"
	ReasonPipelineFailure  = "pipeline_failure"
	ReasonTransportError   = "transport_error"
	ReasonShutdown         = "shutdown"
)
