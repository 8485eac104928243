package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const relayService = "_microbit-uart._udp"

// DiscoverRelays browses the network for UART relays via mDNS and returns
// discovered relays on the peers channel. The error channel receives any
// discovery errors. Both channels are closed when discovery finishes or the
// context is cancelled.
func DiscoverRelays(ctx context.Context) (<-chan Peer, <-chan error) {
	peers := make(chan Peer)
	errs := make(chan error, 1)

	go func() {
		defer close(peers)
		defer close(errs)

		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			errs <- fmt.Errorf("creating mDNS resolver: %w", err)
			return
		}

		entries := make(chan *zeroconf.ServiceEntry)
		done := make(chan struct{})
		seen := make(map[string]bool)

		go func() {
			defer close(done)
			for entry := range entries {
				p, ok := parseRelay(entry)
				if !ok || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				select {
				case peers <- p:
				case <-ctx.Done():
				}
			}
		}()

		err = resolver.Browse(ctx, relayService, "local.", entries)
		if err != nil {
			errs <- fmt.Errorf("browsing for relays: %w", err)
		}

		<-ctx.Done()
		<-done
	}()

	return peers, errs
}

// parseRelay turns an mDNS entry into a Peer. Entries without an address are skipped.
func parseRelay(entry *zeroconf.ServiceEntry) (Peer, bool) {
	p := Peer{Name: entry.Instance}

	var ip net.IP
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0]
	}
	if ip == nil {
		return Peer{}, false
	}
	p.Address = net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "id":
			p.ID = value
		case "name":
			p.Name = value
		}
	}

	if p.ID == "" {
		p.ID = p.Address
	}
	return p, true
}
