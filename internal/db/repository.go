package db

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
)

// BoltRepository keeps every record in a single bolt bucket. Bolt iterates
// keys in byte order, which is the order Keys has to return.
type BoltRepository struct {
	db     *bolt.DB
	logger *zap.Logger
}

// NewRepository wraps an initialised bolt database (see Connect and Init).
func NewRepository(db *bolt.DB, logger *zap.Logger) (*BoltRepository, error) {
	return &BoltRepository{
		db:     db,
		logger: logger,
	}, nil
}

// OpenBolt connects to the database at path and prepares the bucket.
func OpenBolt(path string, logger *zap.Logger) (*BoltRepository, error) {
	db, err := Connect(path)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot open database %s", path)
	}
	if err := Init(db); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.IO, err, "cannot initialise database %s", path)
	}

	return NewRepository(db, logger)
}

func (r *BoltRepository) Get(key string) ([]byte, error) {
	var value []byte

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		stored := bucket.Get([]byte(key))
		if stored == nil {
			return errs.New(errs.NotFound, "record %s does not exist", key)
		}
		// bolt values are only valid for the lifetime of the transaction
		value = append([]byte(nil), stored...)
		return nil
	})

	return value, err
}

func (r *BoltRepository) Put(key string, value []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(key), value); err != nil {
			return errs.Wrap(errs.IO, err, "cannot store record %s", key)
		}
		return nil
	})
}

func (r *BoltRepository) PutNew(key string, value []byte) (bool, error) {
	written := false

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		if bucket.Get([]byte(key)) != nil {
			return nil
		}
		if err := bucket.Put([]byte(key), value); err != nil {
			return errs.Wrap(errs.IO, err, "cannot store record %s", key)
		}
		written = true
		return nil
	})

	return written, err
}

func (r *BoltRepository) Keys(prefix, suffix string) ([]string, error) {
	var keys []string

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		p := []byte(prefix)
		c := bucket.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if key := string(k); strings.HasSuffix(key, suffix) {
				keys = append(keys, key)
			}
		}
		return nil
	})

	return keys, err
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func records(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket := tx.Bucket(bucketName)
	if bucket == nil {
		return nil, errs.Wrap(errs.IO, fmt.Errorf("bucket %s doesn't exist", string(bucketName)), "corrupt database")
	}
	return bucket, nil
}
