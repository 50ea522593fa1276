package paparazzi

import "fmt"

// State is where a Paparazzi is in handling a job
type State int

const (
	StateIdle State = iota
	StateValidating
	StateMutating
	StateSettling
	StateCapturing
	StateResponding
)

var stateNames = []string{
	"idle",
	"validating",
	"mutating",
	"settling",
	"capturing",
	"responding",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("unknown state (%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
