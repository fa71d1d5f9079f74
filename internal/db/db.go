package db

import (
	"time"

	"github.com/boltdb/bolt"
)

var bucketName = []byte("Records")

// Store is an ordered key-value store of metadata records.
type Store interface {
	// Get returns the value stored at key, errs.NotFound if there is none.
	Get(key string) ([]byte, error)
	// Put stores value at key, replacing any previous value.
	Put(key string, value []byte) error
	// PutNew stores value at key unless the key is taken. It reports whether
	// the value was written.
	PutNew(key string, value []byte) (bool, error)
	// Keys lists the keys with the given prefix and suffix in lexicographic
	// order.
	Keys(prefix, suffix string) ([]string, error)
	Close() error
}

func Connect(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
}

func Init(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
}
