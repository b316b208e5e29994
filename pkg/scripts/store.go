// Package scripts stores named scripts on disk as a metadata document plus a
// script body per key.
package scripts

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound is returned when no script exists under a key.
var ErrNotFound = errors.New("script not found")

// ErrInvalidKey is returned for keys that are not plain slugs.
var ErrInvalidKey = errors.New("invalid script key")

// ErrInvalidScript is returned by Save for scripts that cannot be stored.
var ErrInvalidScript = errors.New("invalid script")

// Script is a stored script with its content.
type Script struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Metadata identifies a stored script without its content.
type Metadata struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// document is the on-disk <key>.json format.
type document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Script      string `json:"script"`
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store keeps scripts in a directory as <key>.json and <key>.sh.
type Store struct {
	Dir    string
	Logger *slog.Logger
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Dir: dir, Logger: logger}
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create scripts directory: %w", err)
	}
	return nil
}

func checkKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// List returns every readable script sorted by name. Metadata that cannot be
// parsed is skipped; a missing body reads as empty content.
func (s *Store) List() ([]Script, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts directory: %w", err)
	}

	var out []Script
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		script, err := s.load(key)
		if err != nil {
			s.Logger.Warn("skipping script", "key", key, "error", err)
			continue
		}
		out = append(out, *script)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Get returns the script stored under key.
func (s *Store) Get(key string) (*Script, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return s.load(key)
}

func (s *Store) load(key string) (*Script, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, key+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read script metadata: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse script metadata %s: %w", key, err)
	}
	if doc.Name == "" || doc.Script == "" {
		return nil, fmt.Errorf("script metadata %s: name and script are required", key)
	}

	// The body is looked up by base name only.
	content, err := os.ReadFile(filepath.Join(s.Dir, filepath.Base(doc.Script)))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read script body: %w", err)
		}
		s.Logger.Warn("script body not found, assuming empty content", "key", key)
	}
	return &Script{Key: key, Name: doc.Name, Description: doc.Description, Content: string(content)}, nil
}

// Save writes a script. An empty key is derived from name. When key differs
// from the derived key the old files are removed.
func (s *Store) Save(key, name, description, content string) (Metadata, error) {
	if err := s.ensureDir(); err != nil {
		return Metadata{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Metadata{}, fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	newKey := key
	if newKey == "" {
		newKey = Slugify(name)
	}
	if newKey == "" {
		return Metadata{}, fmt.Errorf("%w: could not generate a valid key from name %q", ErrInvalidScript, name)
	}
	if err := checkKey(newKey); err != nil {
		return Metadata{}, err
	}

	doc := document{Name: name, Description: description, Script: newKey + ".sh"}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal script metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, newKey+".json"), data, 0o644); err != nil {
		return Metadata{}, fmt.Errorf("write script metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, doc.Script), []byte(content), 0o644); err != nil {
		return Metadata{}, fmt.Errorf("write script body: %w", err)
	}
	return Metadata{Key: newKey, Name: name, Description: description}, nil
}

// Rename saves the script under a key derived from name and removes the
// files stored under oldKey.
func (s *Store) Rename(oldKey, name, description, content string) (Metadata, error) {
	if err := checkKey(oldKey); err != nil {
		return Metadata{}, err
	}
	meta, err := s.Save("", name, description, content)
	if err != nil {
		return Metadata{}, err
	}
	if meta.Key != oldKey {
		if err := s.Delete(oldKey); err != nil {
			return meta, err
		}
	}
	return meta, nil
}

// Delete removes the script's files. Missing files are ignored.
func (s *Store) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	var errs []error
	for _, name := range []string{key + ".json", key + ".sh"} {
		err := os.Remove(filepath.Join(s.Dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	nonWordRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	multiDash = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases text, turns whitespace runs into dashes and drops every
// other character outside [a-z0-9_-].
func Slugify(text string) string {
	s := strings.ToLower(text)
	s = spaceRe.ReplaceAllString(s, "-")
	s = nonWordRe.ReplaceAllString(s, "")
	s = multiDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

//go:embed builtin
var builtin embed.FS

// SeedBuiltins copies the bundled sample scripts into an empty store and
// returns how many files were written.
func (s *Store) SeedBuiltins() (int, error) {
	if err := s.ensureDir(); err != nil {
		return 0, err
	}
	existing, err := filepath.Glob(filepath.Join(s.Dir, "*.json"))
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	entries, err := builtin.ReadDir("builtin")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		data, err := builtin.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return n, err
		}
		if err := os.WriteFile(filepath.Join(s.Dir, entry.Name()), data, 0o644); err != nil {
			return n, fmt.Errorf("seed %s: %w", entry.Name(), err)
		}
		n++
	}
	s.Logger.Info("seeded sample scripts", "dir", s.Dir, "files", n)
	return n, nil
}
