package coordinator

import "fmt"

// State is the progress of one worker through a run.
type State int32

const (
	Idle State = iota
	DimensionsKnown
	Partitioned
	DataReceived
	HaloExchanged
	Filtered
	DataSent
	Aborted
)

var stateNames = [...]string{
	Idle:            "Idle",
	DimensionsKnown: "DimensionsKnown",
	Partitioned:     "Partitioned",
	DataReceived:    "DataReceived",
	HaloExchanged:   "HaloExchanged",
	Filtered:        "Filtered",
	DataSent:        "DataSent",
	Aborted:         "Aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
