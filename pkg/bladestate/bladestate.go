// Package bladestate persists the scraper blade's local record of which
// module (and which version of it) is currently installed, so that a
// process restart triggered by a module install (§4.7) can tell, on the
// next intent, whether a reinstall is actually required. It is the
// restart-safe equivalent of the boltdb-embedded "what's on disk" ledger
// the teacher repository keeps for cluster state, scoped down to a single
// key.
package bladestate

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketInstalled = []byte("installed_module")

const installedKey = "current"

// Installed records the module currently installed on this blade.
type Installed struct {
	Module  string `json:"module"`  // owner/repo
	Version string `json:"version"` // tag
}

// Store is a tiny bbolt-backed ledger, one file per blade data directory.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the blade's local state file.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "blade-state.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening blade state at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketInstalled)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blade state bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the currently recorded installed module, or ok=false if
// nothing has been installed yet.
func (s *Store) Get() (Installed, bool, error) {
	var installed Installed
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInstalled).Get([]byte(installedKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &installed)
	})
	return installed, found, err
}

// Set records the given module as installed.
func (s *Store) Set(installed Installed) error {
	data, err := json.Marshal(installed)
	if err != nil {
		return fmt.Errorf("marshaling installed module record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstalled).Put([]byte(installedKey), data)
	})
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}
