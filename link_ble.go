package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Nordic UART service as exposed by the micro:bit.
const (
	uartServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	uartTXCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // notifications from the micro:bit
	uartRXCharUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // writes to the micro:bit
)

// bleConnector talks to micro:bits directly over Bluetooth LE.
type bleConnector struct {
	cfg     LinkConfig
	adapter *bluetooth.Adapter

	service bluetooth.UUID
	rx      bluetooth.UUID
	tx      bluetooth.UUID

	mu   sync.Mutex
	seen map[string]bluetooth.Address
}

func newBLEConnector(cfg LinkConfig) (*bleConnector, error) {
	c := &bleConnector{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.Address),
	}
	var err error
	if c.service, err = bluetooth.ParseUUID(uartServiceUUID); err != nil {
		return nil, fmt.Errorf("parsing service UUID: %w", err)
	}
	if c.rx, err = bluetooth.ParseUUID(uartRXCharUUID); err != nil {
		return nil, fmt.Errorf("parsing RX UUID: %w", err)
	}
	if c.tx, err = bluetooth.ParseUUID(uartTXCharUUID); err != nil {
		return nil, fmt.Errorf("parsing TX UUID: %w", err)
	}
	return c, nil
}

// Scan collects advertisements whose local name starts with the configured
// prefix until the scan timeout or ctx ends.
func (c *bleConnector) Scan(ctx context.Context) ([]Peer, error) {
	if err := c.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling bluetooth adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ScanTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		peers []Peer
	)
	found := make(map[string]bool)

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if !strings.HasPrefix(name, c.cfg.NamePrefix) {
				return
			}
			addr := result.Address.String()

			mu.Lock()
			defer mu.Unlock()
			if found[addr] {
				return
			}
			found[addr] = true
			peers = append(peers, Peer{ID: addr, Name: name, Address: addr})

			c.mu.Lock()
			c.seen[addr] = result.Address
			c.mu.Unlock()
		})
	}()

	select {
	case err := <-scanErr:
		if err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
	case <-ctx.Done():
		if err := c.adapter.StopScan(); err != nil {
			log.WithError(err).Debug("stopping scan")
		}
		if err := <-scanErr; err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	return peers, nil
}

// Connect opens the UART service on p. The context bounds only the wait for
// the connection attempt; the BLE stack may finish connecting in the background.
func (c *bleConnector) Connect(ctx context.Context, p Peer, onReceive func([]byte)) (Link, error) {
	c.mu.Lock()
	addr, ok := c.seen[p.Address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %s, scan first", p.Address)
	}

	type result struct {
		link *bleLink
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		l, err := c.connect(addr, p, onReceive)
		resCh <- result{l, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		return r.link, nil
	case <-ctx.Done():
		go func() {
			if r := <-resCh; r.link != nil {
				_ = r.link.Close()
			}
		}()
		return nil, fmt.Errorf("connecting to %s: %w", p, ctx.Err())
	}
}

func (c *bleConnector) connect(addr bluetooth.Address, p Peer, onReceive func([]byte)) (*bleLink, error) {
	device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", p, err)
	}
	disconnect := func() error { return device.Disconnect() }

	services, err := device.DiscoverServices([]bluetooth.UUID{c.service})
	if err != nil || len(services) == 0 {
		_ = disconnect()
		return nil, fmt.Errorf("discovering UART service: %w", orNotFound(err, "UART service"))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{c.rx, c.tx})
	if err != nil {
		_ = disconnect()
		return nil, fmt.Errorf("discovering UART characteristics: %w", err)
	}

	l := &bleLink{name: p.Name, disconnect: disconnect}
	var (
		haveRX bool
		tx     bluetooth.DeviceCharacteristic
		haveTX bool
	)
	for _, ch := range chars {
		switch ch.UUID() {
		case c.rx:
			l.rx = ch
			haveRX = true
		case c.tx:
			tx = ch
			haveTX = true
		}
	}
	if !haveRX || !haveTX {
		_ = disconnect()
		return nil, fmt.Errorf("discovering UART characteristics: %w", orNotFound(nil, "RX/TX characteristic"))
	}

	if err := tx.EnableNotifications(func(buf []byte) {
		if onReceive != nil {
			onReceive(append([]byte(nil), buf...))
		}
	}); err != nil {
		_ = disconnect()
		return nil, fmt.Errorf("enabling notifications: %w", err)
	}

	return l, nil
}

func orNotFound(err error, what string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%s not found", what)
}

// bleLink writes to the micro:bit's UART RX characteristic.
type bleLink struct {
	name       string
	rx         bluetooth.DeviceCharacteristic
	disconnect func() error

	mu     sync.Mutex
	closed bool
}

func (l *bleLink) Name() string { return l.name }

func (l *bleLink) Write(p []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	if _, err := l.rx.WriteWithoutResponse(p); err != nil {
		return fmt.Errorf("writing characteristic: %w", err)
	}
	return nil
}

func (l *bleLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.disconnect()
}
