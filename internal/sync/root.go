package sync

// Direction controls which way changes flow for a watch root.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionBoth Direction = "both"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionBoth:
		return true
	}
	return false
}

// WatchRoot pairs a local directory with a remote destination.
// Immutable for the lifetime of a sync session.
type WatchRoot struct {
	// LocalPath is the absolute path of the watched directory.
	LocalPath string
	// RemotePath is the destination prefix on the remote store.
	RemotePath string
	// Direction of sync for this root.
	Direction Direction
	// IgnorePatterns excluded from sync, on top of the root's ignore file.
	IgnorePatterns []string
}
