package persistence

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ASHISH26940/pipekv/internal/store"
)

var recordsBucket = []byte("records")

func writeBolt(path string, records []store.Record) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		// Keys are big-endian positions so cursor order is insertion order.
		key := make([]byte, 8)
		for i, rec := range records {
			val, err := json.Marshal(toEntry(rec))
			if err != nil {
				return err
			}
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := b.Put(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	return err
}

func readBolt(path string) ([]store.Record, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var records []store.Record
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return errors.New("records bucket missing")
		}
		return b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			rec, err := e.record()
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
