// Package catalog persists the sketch descriptors the gallery reads.
//
// The catalog is a single JSON object keyed by "<name>_<sketchID>". The
// gallery owns some fields of its own (is_buggy, hand-edited cabinets), so
// writes patch the file in place instead of re-encoding it from a struct.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// AllCabinets is the cabinet name that sees every confirmed sketch.
const AllCabinets = "test"

// ErrCorrupt is returned when the catalog file is not a JSON object.
var ErrCorrupt = errors.New("catalog is not a JSON object")

// Descriptor is one gallery entry. Paths are relative to the sketches
// directory.
type Descriptor struct {
	Cabinet       string   `json:"cabinet"`
	FoundAllFiles bool     `json:"found_all_files"`
	HasConfirmed  bool     `json:"has_confirmed"`
	IsBuggy       bool     `json:"is_buggy"`
	MissingFiles  []string `json:"missing_files"`
	Documentation string   `json:"documentation"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Instructions  string   `json:"instructions"`
	Sketch        string   `json:"sketch"`
	Thumb         string   `json:"thumb"`
	Title         string   `json:"title,omitempty"`
	ImportedAt    string   `json:"imported_at,omitempty"`
}

// Visible reports whether the gallery on cabinet shows d.
func Visible(d Descriptor, cabinet string) bool {
	if d.IsBuggy || !d.HasConfirmed {
		return false
	}
	if cabinet == AllCabinets {
		return true
	}
	for _, c := range strings.Split(d.Cabinet, ",") {
		if strings.TrimSpace(c) == cabinet {
			return true
		}
	}
	return false
}

// Store is the catalog file on disk.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Get returns every descriptor. A missing file is an empty catalog.
func (s *Store) Get() (map[string]Descriptor, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Descriptor)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return out, nil
}

// Raw returns the catalog file as stored, including fields this package
// does not model.
func (s *Store) Raw() ([]byte, error) {
	return s.read()
}

// Merge writes batch into the catalog with one read-modify-write. Entries
// in batch replace any existing entry with the same key; every other entry
// is left byte-for-byte as it was.
func (s *Store) Merge(batch map[string]Descriptor) error {
	if len(batch) == 0 {
		return nil
	}

	lock, err := utils.NewFileLock(s.path)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, err := json.Marshal(batch[k])
		if err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		data, err = sjson.SetRawBytes(data, gjson.Escape(k), raw)
		if err != nil {
			return fmt.Errorf("setting %s: %w", k, err)
		}
	}

	if err := utils.WriteFileAtomic(s.path, pretty.Pretty(data)); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// MarkBuggy sets is_buggy on the existing entries named by keys, leaving
// the rest of each entry as it was. Unknown keys are ignored.
func (s *Store) MarkBuggy(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	lock, err := utils.NewFileLock(s.path)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	changed := false
	for _, k := range keys {
		path := gjson.Escape(k)
		if !gjson.GetBytes(data, path).IsObject() {
			continue
		}
		data, err = sjson.SetBytes(data, path+".is_buggy", true)
		if err != nil {
			return fmt.Errorf("marking %s: %w", k, err)
		}
		changed = true
	}
	if !changed {
		return nil
	}

	if err := utils.WriteFileAtomic(s.path, pretty.Pretty(data)); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, s.path)
	}
	return data, nil
}
