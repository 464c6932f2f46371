package packer

// EventType identifies a merklize progress event.
type EventType int

const (
	EventTypeUnknown         EventType = 0
	EventTypeDataRead        EventType = 1
	EventTypeMerklized       EventType = 2
	EventTypeProofsValidated EventType = 3
	EventTypeStored          EventType = 4
	// EventTypeReused replaces the merklize/validate/store events when the
	// same content was already processed.
	EventTypeReused EventType = 5
)

func (e EventType) String() string {
	switch e {
	case EventTypeDataRead:
		return "data_read"
	case EventTypeMerklized:
		return "merklized"
	case EventTypeProofsValidated:
		return "proofs_validated"
	case EventTypeStored:
		return "stored"
	case EventTypeReused:
		return "reused"
	default:
		return "unknown"
	}
}

// Event is streamed to the caller of Merklize as each step completes.
type Event struct {
	TaskID     string
	Type       EventType
	Message    string
	DataRoot   string
	ChunkCount int
}
