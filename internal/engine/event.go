package engine

import "fmt"

// EventKind distinguishes between event kinds.
type EventKind int

const (
	// EventJoin queues a player for matchmaking.
	EventJoin EventKind = iota + 1
	// EventLeave withdraws a player from matchmaking.
	EventLeave
	// EventSubmit carries an answer for a session's current problem.
	EventSubmit
	// EventDisconnect reports a closed connection.
	EventDisconnect
	// EventForceEnd ends a session from outside the game flow.
	EventForceEnd
	// EventMatchTick runs one matchmaking pass.
	EventMatchTick
	// EventSweep runs registry and store cleanup.
	EventSweep
	// EventStart activates a matched session after the start delay.
	EventStart
	// EventTimeout fires when a problem's time budget runs out.
	EventTimeout
	// EventAdvance begins the next problem cycle.
	EventAdvance
)

var kindNames = map[EventKind]string{
	EventJoin:       "join",
	EventLeave:      "leave",
	EventSubmit:     "submit",
	EventDisconnect: "disconnect",
	EventForceEnd:   "force_end",
	EventMatchTick:  "match_tick",
	EventSweep:      "sweep",
	EventStart:      "start",
	EventTimeout:    "timeout",
	EventAdvance:    "advance",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one unit of work for the loop. Which fields are set depends on
// Kind. Seq is the problem cycle a timer event was armed against.
type Event struct {
	Kind      EventKind
	Stamp     int64
	ConnID    string
	Name      string
	SessionID string
	Seq       int64
	Answer    float64
	Winner    string
}
