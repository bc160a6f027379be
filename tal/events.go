package tal

import (
	"fmt"

	"nyiyui.ca/hato/railflux"
)

type Event interface {
	fmt.Stringer
}

// EventEntryExit is emitted when a train enters or leaves a segment.
type EventEntryExit struct {
	Train   string              `json:"train"`
	Segment railflux.SegmentRef `json:"segment"`
	// Enter is whether this was an enter or exit event.
	Enter bool  `json:"enter"`
	Tick  int64 `json:"tick"`
}

func (enx EventEntryExit) String() string {
	verb := map[bool]string{true: "enter", false: "exit"}[enx.Enter]
	return fmt.Sprintf("tick %d: train %s: %s segment %s", enx.Tick, enx.Train, verb, enx.Segment)
}

// EventRemote is emitted when an external refresh changed a segment.
type EventRemote struct {
	Segment  railflux.SegmentRef `json:"segment"`
	Occupied bool                `json:"occupied"`
	Tick     int64               `json:"tick"`
}

func (er EventRemote) String() string {
	return fmt.Sprintf("tick %d: remote set segment %s occupied=%t", er.Tick, er.Segment, er.Occupied)
}
