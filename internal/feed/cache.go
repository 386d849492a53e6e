package feed

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

const (
	bucketSnapshot = "snapshot"
	keyLatest      = "latest"
)

// BoltCache stores the last good snapshot in a bbolt file.
type BoltCache struct {
	db *bolt.DB
}

func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSnapshot)); err != nil {
			return fmt.Errorf("creating snapshot bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db}, nil
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) Save(snap catalog.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSnapshot)).Put([]byte(keyLatest), data)
	})
}

// Load reports false when nothing was saved yet.
func (c *BoltCache) Load() (catalog.Snapshot, bool, error) {
	var (
		snap  catalog.Snapshot
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSnapshot)).Get([]byte(keyLatest))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("reading snapshot cache: %w", err)
	}
	return snap, found, nil
}
