// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

// State is the participation state of a descriptor.
type State uint8

const (
	// Idle descriptors do not participate; their published id is InvalidID.
	Idle State = iota
	// ReadJoined descriptors observe the structure at the global id current
	// when they joined. Joining does not advance the counter.
	ReadJoined
	// WriteJoined descriptors hold a freshly allocated global id that tags
	// the nodes they retire.
	WriteJoined
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReadJoined:
		return "read-joined"
	case WriteJoined:
		return "write-joined"
	default:
		return "unknown"
	}
}

// Mode selects how a window is joined.
type Mode uint8

const (
	// ReadJoin joins at the current global id.
	ReadJoin Mode = iota
	// WriteJoin joins with a new global id.
	WriteJoin
)

// action is what a descriptor must do to perform a transition.
type action uint8

const (
	actNone action = iota
	// actPublishCurrent publishes the current global id.
	actPublishCurrent
	// actPublishNew publishes the current global id, then a new one.
	actPublishNew
	// actAllocate allocates a new id for tagging while the published id
	// keeps protecting what was read so far.
	actAllocate
	// actClear publishes InvalidID.
	actClear
	// actIllegal marks a transition the state machine rejects.
	actIllegal
)

// transitions[from][event] with events: 0 = ReadJoin, 1 = WriteJoin, 2 = end.
var transitions = [3][3]struct {
	to  State
	act action
}{
	Idle: {
		{ReadJoined, actPublishCurrent},
		{WriteJoined, actPublishNew},
		{Idle, actIllegal},
	},
	ReadJoined: {
		{ReadJoined, actNone},
		{WriteJoined, actAllocate},
		{Idle, actClear},
	},
	WriteJoined: {
		{WriteJoined, actNone},
		{WriteJoined, actNone},
		{Idle, actClear},
	},
}

const endEvent = 2

func (s State) next(event int) (State, action) {
	t := transitions[s][event]
	return t.to, t.act
}
