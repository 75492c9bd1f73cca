package sync

import "time"

// Strategy selects how conflicting edits are resolved.
type Strategy string

const (
	// StrategyNewest prefers the side with the later modification time.
	StrategyNewest Strategy = "newest"
	// StrategyLargest prefers the side with the bigger file.
	StrategyLargest Strategy = "largest"
	// StrategyManual never auto-resolves, the conflict is surfaced instead.
	StrategyManual Strategy = "manual"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyNewest, StrategyLargest, StrategyManual:
		return true
	}
	return false
}

// Winner is the resolved outcome of one conflict evaluation.
type Winner string

const (
	WinnerLocal  Winner = "Local"
	WinnerRemote Winner = "Remote"
	WinnerSkip   Winner = "Skip"
)

// FileConflict captures both sides of a file that exists locally and
// remotely with differing metadata. Never persisted.
type FileConflict struct {
	RelPath       string
	LocalSize     int64
	LocalModTime  time.Time
	RemoteSize    int64
	RemoteModTime time.Time
}

// Resolve picks a winner for the conflict under the given strategy.
// Pure function, no I/O. Ties fall through to the secondary criterion
// and finally to Local, so the outcome is always deterministic.
func Resolve(c FileConflict, strategy Strategy) Winner {
	switch strategy {
	case StrategyNewest:
		if c.LocalModTime.After(c.RemoteModTime) {
			return WinnerLocal
		}
		if c.RemoteModTime.After(c.LocalModTime) {
			return WinnerRemote
		}
		if c.LocalSize > c.RemoteSize {
			return WinnerLocal
		}
		if c.RemoteSize > c.LocalSize {
			return WinnerRemote
		}
		return WinnerLocal
	case StrategyLargest:
		if c.LocalSize > c.RemoteSize {
			return WinnerLocal
		}
		if c.RemoteSize > c.LocalSize {
			return WinnerRemote
		}
		if c.LocalModTime.After(c.RemoteModTime) {
			return WinnerLocal
		}
		if c.RemoteModTime.After(c.LocalModTime) {
			return WinnerRemote
		}
		return WinnerLocal
	default:
		// manual and anything unrecognized
		return WinnerSkip
	}
}
