package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// ErrNoPeers is returned when a scan finishes without finding a micro:bit.
var ErrNoPeers = errors.New("no micro:bit found")

// ErrNotConnected is returned by a link that has already been closed.
var ErrNotConnected = errors.New("link not connected")

// Link is an established connection to a micro:bit.
type Link interface {
	Name() string
	Write(p []byte) error
	Close() error
}

// Peer is a micro:bit (or relay in front of one) found by a scan.
type Peer struct {
	ID      string
	Name    string
	Address string
}

func (p Peer) String() string {
	if p.Name == "" {
		return p.Address
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Address)
}

// Connector finds peers and opens links to them.
type Connector interface {
	Scan(ctx context.Context) ([]Peer, error)
	Connect(ctx context.Context, p Peer, onReceive func([]byte)) (Link, error)
}

// NewConnector returns the connector for cfg.Mode.
func NewConnector(cfg LinkConfig) (Connector, error) {
	switch cfg.Mode {
	case "ble", "":
		return newBLEConnector(cfg)
	case "relay":
		return newRelayConnector(cfg), nil
	default:
		return nil, fmt.Errorf("unknown link mode %q", cfg.Mode)
	}
}

// logReceived logs text sent back by the micro:bit.
func logReceived(buf []byte) {
	text := string(buf)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	log.WithField("data", strings.TrimRight(text, "\r\n")).Info("Received")
}
