package session

// ActivityEvent names a user interaction that may extend a session.
type ActivityEvent string

const (
	EventPointerDown ActivityEvent = "pointerdown"
	EventPointerMove ActivityEvent = "pointermove"
	EventKeyDown     ActivityEvent = "keydown"
	EventScroll      ActivityEvent = "scroll"
	EventTouchStart  ActivityEvent = "touchstart"
	EventFocus       ActivityEvent = "focus"
	EventCommand     ActivityEvent = "command"
)

var qualifying = map[ActivityEvent]struct{}{
	EventPointerDown: {},
	EventPointerMove: {},
	EventKeyDown:     {},
	EventScroll:      {},
	EventTouchStart:  {},
	EventFocus:       {},
	EventCommand:     {},
}

// Qualifies reports whether e counts as user activity. Programmatic
// events such as timers or network responses do not.
func Qualifies(e ActivityEvent) bool {
	_, ok := qualifying[e]
	return ok
}
