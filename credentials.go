package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCredentials is returned when a relay has not been paired.
var ErrNoCredentials = errors.New("relay not paired")

// RelayCredentials holds the DTLS pre-shared key for a relay.
type RelayCredentials struct {
	Identity string `json:"identity"`
	PSK      string `json:"psk"` // hex
}

// Key decodes the hex pre-shared key.
func (c RelayCredentials) Key() ([]byte, error) {
	psk, err := hex.DecodeString(c.PSK)
	if err != nil {
		return nil, fmt.Errorf("decoding psk: %w", err)
	}
	if len(psk) == 0 {
		return nil, fmt.Errorf("empty psk")
	}
	return psk, nil
}

// credentialsDir overrides the default credentials directory for testing.
// When empty, the user's home directory is used.
var credentialsDir string

func credentialsPath() (string, error) {
	if credentialsDir != "" {
		return filepath.Join(credentialsDir, "credentials.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+appName, "credentials.json"), nil
}

func readAllCredentials(path string) (map[string]RelayCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds map[string]RelayCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func writeAllCredentials(path string, all map[string]RelayCredentials) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCredentials loads the stored credentials for the given relay ID.
// Returns false with no error if no credentials are found.
func LoadCredentials(relayID string) (RelayCredentials, bool, error) {
	path, err := credentialsPath()
	if err != nil {
		return RelayCredentials{}, false, err
	}

	creds, err := readAllCredentials(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RelayCredentials{}, false, nil
		}
		return RelayCredentials{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	rc, ok := creds[relayID]
	if !ok {
		return RelayCredentials{}, false, nil
	}
	return rc, true, nil
}

// SaveCredentials persists the credentials for the given relay ID.
// Creates the credentials directory with 0700 if needed.
func SaveCredentials(relayID string, creds RelayCredentials) error {
	if _, err := creds.Key(); err != nil {
		return err
	}

	path, err := credentialsPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	all, err := readAllCredentials(path)
	if err != nil || all == nil {
		all = make(map[string]RelayCredentials)
	}

	all[relayID] = creds
	return writeAllCredentials(path, all)
}

// DeleteCredentials removes the stored credentials for the given relay ID.
func DeleteCredentials(relayID string) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}

	all, err := readAllCredentials(path)
	if err != nil {
		return err
	}

	delete(all, relayID)
	return writeAllCredentials(path, all)
}
