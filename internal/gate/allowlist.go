package gate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/banshee-data/plate.report/internal/anpr/ocr"
)

// Allowlist is the set of plates permitted to open the barrier. Entries are
// held in normalized form (uppercase alphanumeric) so lookups match the
// pipeline's reading events regardless of how the file writes them.
type Allowlist struct {
	mu      sync.RWMutex
	path    string
	entries map[string]struct{}
}

// NewAllowlist returns an empty allowlist that permits nothing. Useful when
// the gate should display readings but never open.
func NewAllowlist() *Allowlist {
	return &Allowlist{entries: make(map[string]struct{})}
}

// LoadAllowlist reads the allowlist file at path: one plate per line, blank
// lines and #-comments ignored. The path is retained for Reload.
func LoadAllowlist(path string) (*Allowlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open allowlist: %w", err)
	}
	defer f.Close()

	entries, err := parseAllowlist(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse allowlist %s: %w", path, err)
	}

	return &Allowlist{path: path, entries: entries}, nil
}

// parseAllowlist reads plate entries from r into a normalized set.
func parseAllowlist(r io.Reader) (map[string]struct{}, error) {
	entries := make(map[string]struct{})
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := scan.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		plate := ocr.Normalize(line)
		if plate == "" {
			continue
		}
		entries[plate] = struct{}{}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Reload re-reads the backing file. Lists created with NewAllowlist have no
// file and reload as a no-op. On read failure the existing entries are kept.
func (a *Allowlist) Reload() error {
	a.mu.RLock()
	path := a.path
	a.mu.RUnlock()
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open allowlist: %w", err)
	}
	defer f.Close()

	entries, err := parseAllowlist(f)
	if err != nil {
		return fmt.Errorf("failed to parse allowlist %s: %w", path, err)
	}

	a.mu.Lock()
	a.entries = entries
	a.mu.Unlock()
	return nil
}

// Contains reports whether the plate is allowlisted. The argument is
// normalized before lookup.
func (a *Allowlist) Contains(plate string) bool {
	key := ocr.Normalize(plate)
	if key == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.entries[key]
	return ok
}

// Len returns the number of allowlisted plates.
func (a *Allowlist) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
