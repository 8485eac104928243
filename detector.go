package main

import (
	"errors"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrLinkUnavailable is returned by Start when no micro:bit is connected.
var ErrLinkUnavailable = errors.New("bluetooth is not connected")

// Reading is the result of one active tick.
type Reading struct {
	Color   RGB
	Payload Payload
	Sent    bool // accepted by the transmitter
}

// Detector switches color detection on and off and runs it once per tick.
type Detector struct {
	tx *Transmitter

	mu     sync.Mutex
	active bool
}

// NewDetector returns an inactive detector sending through tx.
func NewDetector(tx *Transmitter) *Detector {
	return &Detector{tx: tx}
}

// Active reports whether detection is on.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Start turns detection on. It fails with ErrLinkUnavailable, leaving
// detection off, when the transmitter has no link.
func (d *Detector) Start() error {
	if !d.tx.Connected() {
		return ErrLinkUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	return nil
}

// Stop turns detection off and offers StopCommand once. It returns false
// if detection was already off.
func (d *Detector) Stop() bool {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return false
	}
	d.active = false
	d.mu.Unlock()

	// Dropped if a color write is still in flight.
	if !d.tx.TrySend(StopCommand) {
		log.Debug("stop command dropped")
	}
	return true
}

// Tick samples frame and offers the encoded color to the transmitter.
// It reports false when detection is off or the frame is too small.
func (d *Detector) Tick(frame *image.RGBA) (Reading, bool) {
	if !d.Active() {
		return Reading{}, false
	}

	c, err := SampleCenter(frame, RegionSize)
	if err != nil {
		log.WithError(err).Debug("skipping frame")
		return Reading{}, false
	}

	p := Encode(c)
	return Reading{
		Color:   c,
		Payload: p,
		Sent:    d.tx.TrySend(p.Wire),
	}, true
}
