// Package devicedb maps HID vendor/product IDs to driver IDs. Entries are
// markdown files with YAML frontmatter; a built-in set ships embedded and a
// user directory can add or override entries.
package devicedb

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

//go:embed data/*.md
var builtinFS embed.FS

// DeviceMatch is one USB vendor/product pair an entry claims.
type DeviceMatch struct {
	VendorID  uint16
	ProductID uint16
}

func (m DeviceMatch) String() string {
	return fmt.Sprintf("%04x:%04x", m.VendorID, m.ProductID)
}

// Entry is one device database record.
type Entry struct {
	ID     string
	Alias  string
	Name   string
	Driver string

	Matches []DeviceMatch
}

var ErrNoEntry = errors.New("no device database entry")

type DB struct {
	log    *zap.Logger
	dir    string
	parser *Parser

	mu      sync.RWMutex
	entries map[string]Entry
	matches map[DeviceMatch]string
}

// New creates a database backed by the embedded entries plus the markdown
// files in dir. An empty dir loads only the embedded set.
func New(log *zap.Logger, dir string) *DB {
	return &DB{
		log:    log,
		dir:    dir,
		parser: NewParser(),
	}
}

// Load reads the embedded entries and then the user directory, replacing the
// current state. User entries with the same ID override embedded ones.
func (db *DB) Load() error {
	entries := make(map[string]Entry)
	matches := make(map[DeviceMatch]string)

	err := fs.WalkDir(builtinFS, "data", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		src, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		return db.addEntry(entries, matches, path, src)
	})
	if err != nil {
		return fmt.Errorf("failed to load built-in device database: %w", err)
	}

	if db.dir != "" {
		userFiles, err := filepath.Glob(filepath.Join(db.dir, "*.md"))
		if err != nil {
			return fmt.Errorf("failed to list device database dir: %w", err)
		}
		for _, path := range userFiles {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			if err := db.addEntry(entries, matches, path, src); err != nil {
				db.log.Warn("skipping device database file", zap.String("path", path), zap.Error(err))
			}
		}
	}

	db.mu.Lock()
	db.entries = entries
	db.matches = matches
	db.mu.Unlock()
	db.log.Info("Device database loaded", zap.Int("entries", len(entries)))
	return nil
}

func (db *DB) addEntry(entries map[string]Entry, matches map[DeviceMatch]string, path string, src []byte) error {
	entry, err := db.parser.Parse(src)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if prev, ok := entries[entry.ID]; ok {
		for _, m := range prev.Matches {
			delete(matches, m)
		}
	}
	entries[entry.ID] = entry
	for _, m := range entry.Matches {
		matches[m] = entry.ID
	}
	return nil
}

// Match returns the entry claiming the given vendor/product pair.
func (db *DB) Match(vendorID, productID uint16) (Entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.matches[DeviceMatch{VendorID: vendorID, ProductID: productID}]
	if !ok {
		return Entry{}, false
	}
	return db.entries[id], true
}

// Get looks an entry up by its ID.
func (db *DB) Get(id string) (Entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	entry, ok := db.entries[id]
	return entry, ok
}

// Entries returns all entries, ordered by ID.
func (db *DB) Entries() []Entry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := make([]Entry, 0, len(db.entries))
	for _, entry := range db.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
