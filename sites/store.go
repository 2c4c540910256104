package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Fingerprint is what is remembered about a site between checks.
type Fingerprint struct {
	Text      uint64    `json:"text"`
	Layout    uint64    `json:"layout"`
	Images    string    `json:"images,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps one fingerprint file per site under a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load returns the stored fingerprint for siteURL, or ok=false when the
// site has never been seen.
func (s *Store) Load(siteURL string) (Fingerprint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fp Fingerprint
	data, err := os.ReadFile(s.path(siteURL))
	if errors.Is(err, fs.ErrNotExist) {
		return fp, false, nil
	}
	if err != nil {
		return fp, false, fmt.Errorf("sites: read fingerprint: %w", err)
	}
	if err := json.Unmarshal(data, &fp); err != nil {
		// A corrupt file is treated as a first visit and rewritten.
		return fp, false, nil
	}
	return fp, true, nil
}

// Save replaces the stored fingerprint for siteURL.
func (s *Store) Save(siteURL string, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("sites: create hash dir: %w", err)
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return err
	}

	path := s.path(siteURL)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sites: write fingerprint: %w", err)
	}
	return os.Rename(tmp, path)
}

var unsafeFilename = regexp.MustCompile(`[^0-9a-zA-Z.-]`)

func (s *Store) path(siteURL string) string {
	return filepath.Join(s.dir, fileKey(siteURL)+".json")
}

// fileKey derives a filesystem-safe name from host and path.
func fileKey(siteURL string) string {
	name := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	name = unsafeFilename.ReplaceAllString(name, "_")
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}
