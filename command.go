package beatbox

import (
	"fmt"
	"time"
)

type (
	// CommandKind identifies what happened. The set of kinds is closed; every
	// kind has exactly one payload type, listed next to the constants.
	CommandKind int

	// Command is the immutable event published on the bus. Sender is the
	// listener that published the command, if any; the bus never delivers a
	// command back to its sender.
	Command struct {
		Kind   CommandKind
		Sender any
		Data   Payload
		Time   time.Time
	}

	// Payload is implemented only by the payload types of this package.
	Payload interface {
		payload()
	}

	// TransportState is the state of the session clock.
	TransportState int

	TransportEvent struct {
		State    TransportState
		Position Position
	}

	// The change events carry the session revision at which the change was
	// committed. Revisions increase with every change to a session, so
	// listeners that may see the events out of order can drop stale ones.
	PlayerEvent struct {
		SessionID int64
		Revision  int64
		Player    Player
	}

	// RuleEvent carries the changed rule and the whole player after the change.
	RuleEvent struct {
		SessionID int64
		Revision  int64
		PlayerID  int64
		Rule      Rule
		Player    Player
	}

	SessionEvent struct {
		Revision int64
		Config   SessionConfig
	}
)

const (
	CommandTickAdvanced     CommandKind = iota // TimingUpdate
	CommandBeatAdvanced                        // TimingUpdate
	CommandBarAdvanced                         // TimingUpdate
	CommandPartAdvanced                        // TimingUpdate
	CommandTransportStarted                    // TransportEvent
	CommandTransportPaused                     // TransportEvent
	CommandTransportStopped                    // TransportEvent
	CommandTransportReset                      // TransportEvent
	CommandPlayerAdded                         // PlayerEvent
	CommandPlayerRemoved                       // PlayerEvent
	CommandPlayerUpdated                       // PlayerEvent
	CommandRuleAdded                           // RuleEvent
	CommandRuleRemoved                         // RuleEvent
	CommandSessionUpdated                      // SessionEvent
	NumCommandKinds
)

const (
	Stopped TransportState = iota
	Playing
	Paused
)

var commandKindNames = [NumCommandKinds]string{
	"tick advanced",
	"beat advanced",
	"bar advanced",
	"part advanced",
	"transport started",
	"transport paused",
	"transport stopped",
	"transport reset",
	"player added",
	"player removed",
	"player updated",
	"rule added",
	"rule removed",
	"session updated",
}

func (TimingUpdate) payload()   {}
func (TransportEvent) payload() {}
func (PlayerEvent) payload()    {}
func (RuleEvent) payload()      {}
func (SessionEvent) payload()   {}

// NewCommand returns a command, checking that the payload type matches the
// kind.
func NewCommand(kind CommandKind, sender any, data Payload) (Command, error) {
	if !kind.Accepts(data) {
		return Command{}, fmt.Errorf("%w: %v cannot carry %T", ErrInvalidCommand, kind, data)
	}
	return Command{Kind: kind, Sender: sender, Data: data, Time: time.Now()}, nil
}

// Accepts reports whether data is the payload type of the kind.
func (k CommandKind) Accepts(data Payload) bool {
	switch k {
	case CommandTickAdvanced, CommandBeatAdvanced, CommandBarAdvanced, CommandPartAdvanced:
		_, ok := data.(TimingUpdate)
		return ok
	case CommandTransportStarted, CommandTransportPaused, CommandTransportStopped, CommandTransportReset:
		_, ok := data.(TransportEvent)
		return ok
	case CommandPlayerAdded, CommandPlayerRemoved, CommandPlayerUpdated:
		_, ok := data.(PlayerEvent)
		return ok
	case CommandRuleAdded, CommandRuleRemoved:
		_, ok := data.(RuleEvent)
		return ok
	case CommandSessionUpdated:
		_, ok := data.(SessionEvent)
		return ok
	}
	return false
}

// IsTiming reports whether the kind is one of the *Advanced kinds.
func (k CommandKind) IsTiming() bool {
	return k >= CommandTickAdvanced && k <= CommandPartAdvanced
}

func (k CommandKind) String() string {
	if k < 0 || k >= NumCommandKinds {
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
	return commandKindNames[k]
}

// ParseCommandKind is the inverse of CommandKind.String.
func ParseCommandKind(s string) (CommandKind, error) {
	for i, n := range commandKindNames {
		if n == s {
			return CommandKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown command kind %q", ErrInvalidCommand, s)
}

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("TransportState(%d)", int(s))
}
