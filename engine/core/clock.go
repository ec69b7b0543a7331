package core

import "time"

// DefaultMaxFrameTime caps the delta handed to simulation code after a stall.
const DefaultMaxFrameTime = 0.0333

type Clock struct {
	now       func() time.Time
	startTime time.Time
	lastTick  time.Time
	elapsed   float64
	running   bool
	maxDelta  float64
}

func NewClock() *Clock {
	return &Clock{
		now:      time.Now,
		maxDelta: DefaultMaxFrameTime,
	}
}

// NewClockWithSource is NewClock with an injectable time source.
func NewClockWithSource(now func() time.Time) *Clock {
	c := NewClock()
	c.now = now
	return c
}

// SetMaxDelta changes the upper bound returned by Tick. Non-positive values disable clamping.
func (c *Clock) SetMaxDelta(seconds float64) {
	c.maxDelta = seconds
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = c.now().Sub(c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.lastTick = c.startTime
	c.elapsed = 0
	c.running = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed returns seconds since Start as of the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// Tick returns the seconds since the previous Tick (or Start), clamped to the
// configured maximum, and the unclamped value.
func (c *Clock) Tick() (clamped float64, raw float64) {
	if !c.running {
		return 0, 0
	}
	t := c.now()
	raw = t.Sub(c.lastTick).Seconds()
	c.lastTick = t
	c.Update()
	if raw < 0 {
		raw = 0
	}
	clamped = raw
	if c.maxDelta > 0 && clamped > c.maxDelta {
		clamped = c.maxDelta
	}
	return clamped, raw
}
