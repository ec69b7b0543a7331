package frames

import "fmt"

// State is where the orchestrator is within one frame cycle.
type State int

const (
	StateIdle State = iota
	StateFrameOpen
	StateRenderPassOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrameOpen:
		return "frame_open"
	case StateRenderPassOpen:
		return "render_pass_open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats counts what happened to frame cycles since the orchestrator was built.
type Stats struct {
	// Frames is the number of cycles that reached the screen.
	Frames int
	// Skipped cycles were abandoned for a rebuild before presenting.
	Skipped  int
	Rebuilds int
	// Resets counts transient allocator resets, one per started cycle.
	Resets int
}
