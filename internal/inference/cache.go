package inference

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var scoresBucket = []byte("scores")

// Cache persists inference results in a local bbolt file so re-analyzing a
// repository does not re-score unchanged commits.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (or creates) the cache file.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening inference cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scoresBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing inference cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up a previously scored (model, message, diff) triple.
func (c *Cache) Get(model, message, diff string) (Scores, bool) {
	var scores Scores
	found := false
	c.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(scoresBucket).Get(cacheKey(model, message, diff))
		if value == nil {
			return nil
		}
		if err := json.Unmarshal(value, &scores); err != nil {
			return nil // stale format, treat as a miss
		}
		found = true
		return nil
	})
	return scores, found
}

// Put stores a scored triple.
func (c *Cache) Put(model, message, diff string, scores Scores) error {
	value, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(scoresBucket).Put(cacheKey(model, message, diff), value)
	})
}

func cacheKey(model, message, diff string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(diff))
	return h.Sum(nil)
}
