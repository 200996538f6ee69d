// Package store persists the open ZMaps so a restarted daemon can restore
// them.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"zmapd/internal/common/fsutil"
	"zmapd/internal/feature"
)

const bucketZMaps = "zmaps"

// Session is one persisted ZMap and the regions of its views.
type Session struct {
	ID        string             `json:"id"`
	Sequences []feature.Sequence `json:"sequences"`
	Created   time.Time          `json:"created"`
	Updated   time.Time          `json:"updated"`
}

// Store is a bbolt backed session store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := fsutil.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketZMaps))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces s.
func (s *Store) Put(sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("store: session without id")
	}
	now := time.Now().UTC()
	if sess.Created.IsZero() {
		sess.Created = now
	}
	sess.Updated = now
	v, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketZMaps)).Put([]byte(sess.ID), v)
	})
}

// Get returns the session with id.
func (s *Store) Get(id string) (Session, bool, error) {
	var (
		sess  Session
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketZMaps)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &sess)
	})
	return sess, found, err
}

// Delete removes a session; missing ids are not an error.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketZMaps)).Delete([]byte(id))
	})
}

// List returns all sessions, oldest first. Undecodable records are skipped.
func (s *Store) List() ([]Session, error) {
	var out []Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketZMaps)).ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return nil
			}
			out = append(out, sess)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
