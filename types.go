package inkframe

// OrderMode selects how the slideshow walks the photo library.
type OrderMode string

const (
	OrderRandom     OrderMode = "random"
	OrderSequential OrderMode = "sequential"
)

// ParseOrderMode maps a stored settings value to an OrderMode,
// falling back to random for anything unrecognized.
func ParseOrderMode(s string) OrderMode {
	if OrderMode(s) == OrderSequential {
		return OrderSequential
	}
	return OrderRandom
}

// SlideshowIntervals is the whitelist of allowed cycle intervals, in minutes.
var SlideshowIntervals = []int{5, 15, 30, 60, 180, 360, 720, 1440}

// DefaultIntervalMinutes is substituted when a requested interval is not whitelisted.
const DefaultIntervalMinutes = 60

// ValidInterval reports whether the given interval is one of the allowed options.
func ValidInterval(minutes int) bool {
	for _, m := range SlideshowIntervals {
		if m == minutes {
			return true
		}
	}
	return false
}

// CommandKind identifies a manual trigger event.
type CommandKind string

const (
	CommandAdvance    CommandKind = "advance"
	CommandRetreat    CommandKind = "retreat"
	CommandJumpTo     CommandKind = "jump_to"
	CommandShowInfo   CommandKind = "show_info"
	CommandEnterSetup CommandKind = "enter_setup"
)

// Command is a manual trigger event from a button press or HTTP call.
// PhotoID is only set for CommandJumpTo.
type Command struct {
	Kind    CommandKind
	PhotoID string
}

// ScheduleStatus is the merged slideshow state reported to the HTTP layer.
type ScheduleStatus struct {
	Running         bool      `json:"running"`
	Enabled         bool      `json:"enabled"`
	IntervalMinutes int       `json:"interval_minutes"`
	Order           OrderMode `json:"order"`
	PhotoCount      int       `json:"photo_count"`
	NextRun         *string   `json:"next_run"`
}
