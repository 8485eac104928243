package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
	log "github.com/sirupsen/logrus"
)

const relayReadBuffer = 512

// relayConnector reaches a micro:bit through a network UART relay over DTLS.
type relayConnector struct {
	cfg LinkConfig
}

func newRelayConnector(cfg LinkConfig) *relayConnector {
	return &relayConnector{cfg: cfg}
}

// Scan returns the configured relay address, or browses mDNS for relays
// until the scan timeout.
func (c *relayConnector) Scan(ctx context.Context) ([]Peer, error) {
	if c.cfg.RelayAddr != "" {
		return []Peer{{ID: c.cfg.RelayAddr, Name: "relay", Address: c.cfg.RelayAddr}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ScanTimeout)
	defer cancel()

	peerCh, errCh := DiscoverRelays(ctx)

	var peers []Peer
	for p := range peerCh {
		peers = append(peers, p)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	return peers, nil
}

func (c *relayConnector) Connect(ctx context.Context, p Peer, onReceive func([]byte)) (Link, error) {
	creds, found, err := LoadCredentials(p.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", p.ID, ErrNoCredentials)
	}
	psk, err := creds.Key()
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", p.Address)
	if err != nil {
		return nil, fmt.Errorf("resolving relay address: %w", err)
	}

	return dialRelay(ctx, addr, p.String(), creds.Identity, psk, onReceive)
}

// relayLink sends payloads as DTLS datagrams to a relay.
type relayLink struct {
	name string
	conn net.Conn
	done chan struct{}

	closeOnce sync.Once
}

func dialRelay(ctx context.Context, addr *net.UDPAddr, name, identity string, psk []byte, onReceive func([]byte)) (*relayLink, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := dtls.DialWithContext(ctx, "udp", addr, &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			return psk, nil
		},
		PSKIdentityHint: []byte(identity),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_GCM_SHA256},
	})
	if err != nil {
		return nil, fmt.Errorf("DTLS handshake: %w", err)
	}

	l := &relayLink{
		name: name,
		conn: conn,
		done: make(chan struct{}),
	}
	go l.readLoop(onReceive)
	return l, nil
}

func (l *relayLink) readLoop(onReceive func([]byte)) {
	defer close(l.done)
	buf := make([]byte, relayReadBuffer)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.WithError(err).WithField("link", l.name).Debug("relay read ended")
			}
			return
		}
		if onReceive != nil {
			onReceive(append([]byte(nil), buf[:n]...))
		}
	}
}

func (l *relayLink) Name() string { return l.name }

func (l *relayLink) Write(p []byte) error {
	if _, err := l.conn.Write(p); err != nil {
		return fmt.Errorf("writing to DTLS: %w", err)
	}
	return nil
}

func (l *relayLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
		<-l.done
	})
	return err
}
