// Package ledger is the badger-backed session audit store: a durable
// record of every connection accepted,
// every command dispatched on it, and how it was closed. It implements
// internal/session.Recorder so the session/server packages never import
// this package directly.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key namespace:
//
//	Data type         Prefix   Key format              Value
//	Session record    "s:"     s:<ucix>                SessionRecord (JSON)
//	Command tally     "c:"     c:<ucix>:<cmd>           count (binary uint64)
const (
	prefixSession = "s:"
	prefixCommand = "c:"
)

func keySession(ucix int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixSession, ucix))
}

func keyCommand(ucix int64, cmd int32) []byte {
	return []byte(fmt.Sprintf("%s%020d:%d", prefixCommand, ucix, cmd))
}

func keyCommandPrefix(ucix int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixCommand, ucix))
}

// SessionRecord is the durable audit trail for one connection. ID is a
// random UUID so records stay globally unique even if the UCIX counter
// restarts with the process; UCIX is the lookup key.
type SessionRecord struct {
	ID         string    `json:"id"`
	UCIX       int64     `json:"ucix"`
	PeerAddr   string    `json:"peer_addr"`
	AcceptedAt time.Time `json:"accepted_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	LastStat   int32     `json:"last_stat"`
	CommandLen int64     `json:"command_count"`
	Closed     bool      `json:"closed"`
}

// Ledger is a badger-backed append-mostly audit store. A Ledger is safe
// for concurrent use by multiple goroutines.
type Ledger struct {
	db *badgerdb.DB
}

// Open opens (creating if necessary) a Ledger at path. Callers must
// Close it on shutdown.
func Open(path string) (*Ledger, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordAccept implements session.Recorder: persists a new SessionRecord
// for a just-accepted connection.
func (l *Ledger) RecordAccept(ucix int64, peerAddr string) {
	rec := SessionRecord{
		ID:         uuid.NewString(),
		UCIX:       ucix,
		PeerAddr:   peerAddr,
		AcceptedAt: time.Now(),
	}
	_ = l.db.Update(func(txn *badgerdb.Txn) error {
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(keySession(ucix), data)
	})
}

// RecordCommand implements session.Recorder: increments the per-command
// tally for ucix and bumps the session's overall command count.
func (l *Ledger) RecordCommand(ucix int64, cmd int32) {
	_ = l.db.Update(func(txn *badgerdb.Txn) error {
		if err := incrCounter(txn, keyCommand(ucix, cmd)); err != nil {
			return err
		}

		item, err := txn.Get(keySession(ucix))
		if err != nil {
			return err
		}
		var rec SessionRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		rec.CommandLen++
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(keySession(ucix), data)
	})
}

// RecordClose implements session.Recorder: marks the session closed and
// stores the last response status observed on the connection.
func (l *Ledger) RecordClose(ucix int64, lastStat int32) {
	_ = l.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keySession(ucix))
		if err != nil {
			return err
		}
		var rec SessionRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		rec.Closed = true
		rec.ClosedAt = time.Now()
		rec.LastStat = lastStat
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(keySession(ucix), data)
	})
}

// Get returns the SessionRecord for ucix.
func (l *Ledger) Get(ucix int64) (*SessionRecord, error) {
	var rec SessionRecord
	err := l.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keySession(ucix))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every SessionRecord, ordered by UCIX (badger iterates keys
// in lexicographic order; the zero-padded UCIX key keeps that numeric).
func (l *Ledger) List() ([]SessionRecord, error) {
	var records []SessionRecord
	err := l.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec SessionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// CommandCount returns how many times cmd was dispatched on ucix.
func (l *Ledger) CommandCount(ucix int64, cmd int32) (uint64, error) {
	var count uint64
	err := l.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyCommand(ucix, cmd))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			count = decodeUint64(val)
			return nil
		})
	})
	return count, err
}

func incrCounter(txn *badgerdb.Txn, key []byte) error {
	var count uint64
	item, err := txn.Get(key)
	if err != nil && err != badgerdb.ErrKeyNotFound {
		return err
	}
	if err == nil {
		if err := item.Value(func(val []byte) error {
			count = decodeUint64(val)
			return nil
		}); err != nil {
			return err
		}
	}
	count++
	return txn.Set(key, encodeUint64(count))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(buf)
}

// CommandBreakdown returns the per-command-code dispatch counts recorded
// for ucix, keyed by command code.
func (l *Ledger) CommandBreakdown(ucix int64) (map[int32]uint64, error) {
	breakdown := make(map[int32]uint64)
	prefix := keyCommandPrefix(ucix)

	err := l.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			cmd, err := parseCommandFromKey(item.Key(), prefix)
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				breakdown[cmd] = decodeUint64(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return breakdown, err
}

func parseCommandFromKey(key, prefix []byte) (int32, error) {
	suffix := key[len(prefix):]
	var cmd int32
	if _, err := fmt.Sscanf(string(suffix), "%d", &cmd); err != nil {
		return 0, fmt.Errorf("ledger: malformed command key %q: %w", key, err)
	}
	return cmd, nil
}
