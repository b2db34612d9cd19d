package store

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore is the durable backend: every Put is written through to an
// on-disk LevelDB database, so a node's held values survive a restart. It
// follows the reference implementation's thin LDBDatabase wrapper shape
// (open-by-path, Put/Get/Delete passthrough, explicit Close).
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if necessary) a LevelDB database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	return e, err
}

func (s *LevelDBStore) Put(key id.ID, entry Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.db.Put(key.Bytes(), data, nil)
}

func (s *LevelDBStore) Get(key id.ID) (Entry, bool, error) {
	data, err := s.db.Get(key.Bytes(), nil)
	if err == leveldb.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *LevelDBStore) Delete(key id.ID) error {
	return s.db.Delete(key.Bytes(), nil)
}

func (s *LevelDBStore) Keys() ([]id.ID, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []id.ID
	for iter.Next() {
		key, err := id.FromBytes(iter.Key())
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	return out, iter.Error()
}

func (s *LevelDBStore) ExpireOlderThan(now time.Time, ttl time.Duration) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		e, ok, err := s.Get(k)
		if err != nil {
			return removed, err
		}
		if ok && e.Expired(now, ttl) {
			if err := s.Delete(k); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
