package main

import (
	"errors"
	"sync"
)

// fakeLink records writes. When block is set, Write waits for it to close.
type fakeLink struct {
	block chan struct{}
	err   error

	mu       sync.Mutex
	writes   []string
	attempts int
	closed   bool
}

func (l *fakeLink) Name() string { return "fake" }

func (l *fakeLink) Write(p []byte) error {
	l.mu.Lock()
	l.attempts++
	l.mu.Unlock()

	if l.block != nil {
		<-l.block
	}
	if l.err != nil {
		return l.err
	}

	l.mu.Lock()
	l.writes = append(l.writes, string(p))
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func (l *fakeLink) Writes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

func (l *fakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

var errWriteFailed = errors.New("write failed")
