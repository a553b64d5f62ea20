// Package peerstore is a syndtr/goleveldb-backed implementation of
// iface.PeerStore (github.com/syndtr/goleveldb/leveldb, opened against
// either a real path or an in-memory storage.MemStorage for tests).
package peerstore

import (
	"encoding/json"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mwc-project/mwc-node/p2p/types"
)

// Store persists PeerData records keyed by the peer address key string.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMem opens an in-memory database, used by tests.
func OpenMem() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func keyFor(addr types.PeerAddr) []byte {
	return []byte("peer/" + addr.Key())
}

// Save upserts a PeerData record.
func (s *Store) Save(data types.PeerData) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Put(keyFor(data.Addr), buf, nil)
}

// Get retrieves the record for addr, if present.
func (s *Store) Get(addr types.PeerAddr) (types.PeerData, bool, error) {
	buf, err := s.db.Get(keyFor(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.PeerData{}, false, nil
	}
	if err != nil {
		return types.PeerData{}, false, err
	}
	var data types.PeerData
	if err := json.Unmarshal(buf, &data); err != nil {
		return types.PeerData{}, false, err
	}
	return data, true, nil
}

// FindPeers scans every record matching state and advertising all bits of
// cap, ordering left to the caller (callers needing a specific order, e.g.
// difficulty-ranked, re-sort the returned slice themselves).
func (s *Store) FindPeers(state types.PersistState, cap types.Capabilities) ([]types.PeerData, error) {
	var out []types.PeerData
	err := s.scan(func(data types.PeerData) error {
		if data.State == state && data.Capabilities.Has(cap) {
			out = append(out, data)
		}
		return nil
	})
	return out, err
}

// All returns every persisted record.
func (s *Store) All() ([]types.PeerData, error) {
	var out []types.PeerData
	err := s.scan(func(data types.PeerData) error {
		out = append(out, data)
		return nil
	})
	return out, err
}

// DeletePeers removes every record for which pred reports true.
func (s *Store) DeletePeers(pred func(types.PeerData) bool) error {
	batch := new(leveldb.Batch)
	err := s.scan(func(data types.PeerData) error {
		if pred(data) {
			batch.Delete(keyFor(data.Addr))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.db.Write(batch, nil)
}

func (s *Store) scan(fn func(types.PeerData) error) error {
	var it iterator.Iterator = s.db.NewIterator(util.BytesPrefix([]byte("peer/")), nil)
	defer it.Release()
	for it.Next() {
		var data types.PeerData
		if err := json.Unmarshal(it.Value(), &data); err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return it.Error()
}
