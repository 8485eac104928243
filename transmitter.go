package main

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Transmitter forwards payloads to the current link, one write at a time.
// A payload offered while a write is in flight is dropped, not queued.
type Transmitter struct {
	mu   sync.Mutex
	link Link

	sending atomic.Bool
	wg      sync.WaitGroup
}

// NewTransmitter returns a transmitter with no link.
func NewTransmitter() *Transmitter {
	return &Transmitter{}
}

// SetLink installs the link used for subsequent sends.
func (t *Transmitter) SetLink(l Link) {
	t.mu.Lock()
	t.link = l
	t.mu.Unlock()
}

// ClearLink removes and returns the current link. An in-flight write keeps
// its own reference and completes against the old link.
func (t *Transmitter) ClearLink() Link {
	t.mu.Lock()
	l := t.link
	t.link = nil
	t.mu.Unlock()
	return l
}

// Connected reports whether a link is installed.
func (t *Transmitter) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link != nil
}

// Busy reports whether a write is in flight.
func (t *Transmitter) Busy() bool {
	return t.sending.Load()
}

// TrySend starts writing payload plus a newline and reports whether it was
// accepted. It returns false without side effects when there is no link or
// a write is already in flight.
func (t *Transmitter) TrySend(payload string) bool {
	t.mu.Lock()
	l := t.link
	t.mu.Unlock()
	if l == nil {
		return false
	}
	if !t.sending.CompareAndSwap(false, true) {
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.sending.Store(false)

		if err := l.Write([]byte(payload + "\n")); err != nil {
			log.WithError(err).WithField("link", l.Name()).Warn("Error sending data")
			return
		}
		log.WithField("data", payload).Debug("Sent")
	}()
	return true
}

// Wait blocks until no write is in flight.
func (t *Transmitter) Wait() {
	t.wg.Wait()
}
