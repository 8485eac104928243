package main

import (
	"os"
	"path/filepath"
	"testing"
)

func setupCredentialsDir(t *testing.T) {
	t.Helper()
	credentialsDir = t.TempDir()
	t.Cleanup(func() { credentialsDir = "" })
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	setupCredentialsDir(t)

	creds := RelayCredentials{Identity: "user1", PSK: "0a1b"}
	if err := SaveCredentials("relay-1", creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	got, found, err := LoadCredentials("relay-1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if !found {
		t.Fatal("expected credentials to be found")
	}
	if got.Identity != "user1" || got.PSK != "0a1b" {
		t.Fatalf("got %+v, want identity=user1 psk=0a1b", got)
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	setupCredentialsDir(t)

	_, found, err := LoadCredentials("relay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected credentials not found")
	}
}

func TestLoadMissingBridgeID(t *testing.T) {
	setupCredentialsDir(t)

	if err := SaveCredentials("relay-1", RelayCredentials{Identity: "u", PSK: "ff"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	_, found, err := LoadCredentials("relay-other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected credentials not found for missing relay ID")
	}
}

func TestDeleteCredentials(t *testing.T) {
	setupCredentialsDir(t)

	if err := SaveCredentials("relay-1", RelayCredentials{Identity: "u", PSK: "ff"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	if err := DeleteCredentials("relay-1"); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}

	_, found, err := LoadCredentials("relay-1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if found {
		t.Fatal("expected credentials to be deleted")
	}
}

func TestMultipleBridgesPreserved(t *testing.T) {
	setupCredentialsDir(t)

	c1 := RelayCredentials{Identity: "user1", PSK: "0a1b"}
	c2 := RelayCredentials{Identity: "user2", PSK: "2c3d"}

	if err := SaveCredentials("relay-1", c1); err != nil {
		t.Fatalf("SaveCredentials relay-1: %v", err)
	}
	if err := SaveCredentials("relay-2", c2); err != nil {
		t.Fatalf("SaveCredentials relay-2: %v", err)
	}

	got1, found, err := LoadCredentials("relay-1")
	if err != nil || !found {
		t.Fatalf("LoadCredentials relay-1: found=%v err=%v", found, err)
	}
	if got1.Identity != "user1" {
		t.Fatalf("relay-1: got identity %q, want user1", got1.Identity)
	}

	got2, found, err := LoadCredentials("relay-2")
	if err != nil || !found {
		t.Fatalf("LoadCredentials relay-2: found=%v err=%v", found, err)
	}
	if got2.Identity != "user2" {
		t.Fatalf("relay-2: got identity %q, want user2", got2.Identity)
	}

	// Delete one, other should remain
	if err := DeleteCredentials("relay-1"); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}

	_, found, _ = LoadCredentials("relay-1")
	if found {
		t.Fatal("relay-1 should be deleted")
	}

	got2, found, _ = LoadCredentials("relay-2")
	if !found {
		t.Fatal("relay-2 should still exist")
	}
	if got2.Identity != "user2" {
		t.Fatal("relay-2 credentials changed unexpectedly")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	credentialsDir = filepath.Join(tmp, "nested", "dir")
	t.Cleanup(func() { credentialsDir = "" })

	if err := SaveCredentials("b1", RelayCredentials{Identity: "u", PSK: "ff"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	path := filepath.Join(credentialsDir, "credentials.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("file permissions: got %o, want 0600", info.Mode().Perm())
	}
}

func TestSaveRejectsBadKey(t *testing.T) {
	setupCredentialsDir(t)

	if err := SaveCredentials("relay-1", RelayCredentials{Identity: "u", PSK: "not-hex"}); err == nil {
		t.Fatal("expected error for non-hex psk")
	}
	if err := SaveCredentials("relay-1", RelayCredentials{Identity: "u"}); err == nil {
		t.Fatal("expected error for empty psk")
	}

	_, found, err := LoadCredentials("relay-1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if found {
		t.Fatal("rejected credentials should not be stored")
	}
}

func TestCredentialsKey(t *testing.T) {
	key, err := RelayCredentials{PSK: "0a1b"}.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if len(key) != 2 || key[0] != 0x0a || key[1] != 0x1b {
		t.Fatalf("Key = %x, want 0a1b", key)
	}
}
