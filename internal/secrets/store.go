// Package secrets keeps gateway credentials out of the config file, in the OS
// keychain when one is available and in an encrypted file otherwise.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "payledger"

// ErrNotFound is returned when no secret is stored under a name.
var ErrNotFound = errors.New("secret not found")

// Options selects the keyring backend. With FileOnly set the encrypted file
// backend under Dir is used even where an OS keychain exists.
type Options struct {
	Dir      string
	Password string
	FileOnly bool
}

// Store reads and writes named secrets.
type Store struct {
	ring keyring.Keyring
}

// Open opens the keyring described by opts.
func Open(opts Options) (*Store, error) {
	dir := opts.Dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, serviceName, "keyring")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil { // restrict directory
		return nil, err
	}
	cfg := keyring.Config{
		ServiceName:              serviceName,
		FileDir:                  dir,
		KeychainTrustApplication: true,
	}
	if opts.Password != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(opts.Password)
	} else {
		cfg.FilePasswordFunc = keyring.TerminalPrompt
	}
	if opts.FileOnly {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// GatewayKeyName is the secret name of the gateway API key for a mode.
func GatewayKeyName(testmode bool) string {
	if testmode {
		return "gateway-test"
	}
	return "gateway-live"
}

func (s *Store) Set(name, value string) error {
	if name = norm(name); name == "" {
		return fmt.Errorf("secret name required")
	}
	if value == "" {
		return fmt.Errorf("secret value required")
	}
	return s.ring.Set(keyring.Item{Key: name, Data: []byte(value), Label: serviceName + " " + name})
}

func (s *Store) Get(name string) (string, error) {
	if name = norm(name); name == "" {
		return "", fmt.Errorf("secret name required")
	}
	item, err := s.ring.Get(name)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", err
	}
	return string(item.Data), nil
}

func (s *Store) Delete(name string) error {
	if name = norm(name); name == "" {
		return fmt.Errorf("secret name required")
	}
	if err := s.ring.Remove(name); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

// Names lists stored secret names.
func (s *Store) Names() ([]string, error) {
	return s.ring.Keys()
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
