package detect

import (
	"sync"
	"time"
)

// CycleState is the position of a detection cycle.
type CycleState int

const (
	StateIdle CycleState = iota
	StateSampling
	StateAnalyzing
	StateRejected
	StateAccepted
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSampling:
		return "SAMPLING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateRejected:
		return "REJECTED"
	case StateAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a cycle state transition.
type StateChange struct {
	From      CycleState
	To        CycleState
	Timestamp time.Time
	Reason    string
}

// StateListener observes cycle transitions. It is invoked on the detection
// goroutine and must not block.
type StateListener func(StateChange)

var validTransitions = map[CycleState][]CycleState{
	StateIdle:      {StateSampling},
	StateSampling:  {StateAnalyzing, StateIdle},
	StateAnalyzing: {StateRejected, StateAccepted, StateIdle},
	StateRejected:  {StateSampling, StateIdle},
	StateAccepted:  {StateIdle},
}

// InvalidTransitionError represents an invalid cycle transition attempt.
type InvalidTransitionError struct {
	From CycleState
	To   CycleState
}

func (e *InvalidTransitionError) Error() string {
	return "invalid detection transition from " + e.From.String() + " to " + e.To.String()
}

type cycle struct {
	mu       sync.RWMutex
	current  CycleState
	listener StateListener
}

func (c *cycle) State() CycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *cycle) transition(to CycleState, reason string) error {
	c.mu.Lock()
	from := c.current
	allowed := false
	for _, s := range validTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	c.current = to
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(StateChange{From: from, To: to, Timestamp: time.Now(), Reason: reason})
	}
	return nil
}

// reset returns the cycle to Idle from any state.
func (c *cycle) reset(reason string) {
	if c.State() == StateIdle {
		return
	}
	_ = c.transition(StateIdle, reason)
}
