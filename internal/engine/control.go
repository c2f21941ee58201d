package engine

import (
	"sync"
)

// Control holds the operator flags read at the start of every cycle.
// Pause is reversible; an emergency stop holds for the rest of the session.
type Control struct {
	mu         sync.RWMutex
	paused     bool
	stopped    bool
	stopReason string
}

// NewControl creates a control block with everything enabled.
func NewControl() *Control {
	return &Control{}
}

// Pause suspends signal generation until Resume.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume lifts a pause. It does not clear an emergency stop.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// EmergencyStop halts signal generation for the remainder of the session.
func (c *Control) EmergencyStop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.stopReason = reason
}

// Paused reports whether the engine is paused.
func (c *Control) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// Stopped reports the emergency-stop flag and its reason.
func (c *Control) Stopped() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped, c.stopReason
}
