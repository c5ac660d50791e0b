package livefeed

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// PinStore caches the access code between sessions. With an empty path the
// code is only kept in memory.
type PinStore struct {
	path string

	mu  sync.Mutex
	pin string
}

func NewPinStore(path string) *PinStore {
	return &PinStore{path: path}
}

// Read returns the cached code, or "" when none is saved.
func (p *PinStore) Read() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return p.pin, nil
	}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pin file: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("decode pin file: %w", err)
	}
	return string(raw), nil
}

// Save stores the code, base64 encoded, with owner-only permissions.
func (p *PinStore) Save(pin string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		p.pin = pin
		return nil
	}
	enc := base64.StdEncoding.EncodeToString([]byte(pin))
	if err := os.WriteFile(p.path, []byte(enc+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pin file: %w", err)
	}
	return nil
}

// Clear forgets the cached code.
func (p *PinStore) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pin = ""
	if p.path == "" {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pin file: %w", err)
	}
	return nil
}
