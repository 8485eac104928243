package main

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseRelay(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay-kitchen", relayService, "local.")
	entry.Port = 5684
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.Text = []string{"id=mb-01", "name=Kitchen micro:bit", "junk"}

	got, ok := parseRelay(entry)
	if !ok {
		t.Fatal("expected relay to parse")
	}
	want := Peer{ID: "mb-01", Name: "Kitchen micro:bit", Address: "192.168.1.20:5684"}
	if got != want {
		t.Fatalf("parseRelay = %+v, want %+v", got, want)
	}
}

func TestParseRelayIPv6AndDefaults(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay", relayService, "local.")
	entry.Port = 5684
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	got, ok := parseRelay(entry)
	if !ok {
		t.Fatal("expected relay to parse")
	}
	if got.Address != "[fe80::1]:5684" {
		t.Errorf("Address = %q, want [fe80::1]:5684", got.Address)
	}
	if got.ID != got.Address {
		t.Errorf("ID = %q, want address fallback", got.ID)
	}
	if got.Name != "relay" {
		t.Errorf("Name = %q, want instance name", got.Name)
	}
}

func TestParseRelayWithoutAddress(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay", relayService, "local.")
	if _, ok := parseRelay(entry); ok {
		t.Fatal("expected entry without address to be skipped")
	}
}
