package sync

// EventKind classifies a normalized filesystem change.
type EventKind string

const (
	EventCreated  EventKind = "Created"
	EventModified EventKind = "Modified"
	EventDeleted  EventKind = "Deleted"
)

// Event is a single debounced filesystem change. Path is absolute.
type Event struct {
	Path string
	Kind EventKind
}
