package homa

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// TimeTraceEntry is one LOG_TIME_TRACE record (spec.md section 4.1's
// **[EXPANSION]**: the wire protocol carries no payload of its own, but a
// production deployment needs somewhere to land the diagnostic string a
// peer is reporting).
type TimeTraceEntry struct {
	RpcId   RpcId
	From    string
	Message string
}

// TimeTraceStore persists LOG_TIME_TRACE records for later inspection
// through Recent.
type TimeTraceStore interface {
	Append(id RpcId, from string, payload []byte)
	Recent(id RpcId, limit int) []TimeTraceEntry
	Close() error
}

// MemoryTimeTraceStore is the default TimeTraceStore: a bounded ring per
// RpcId, adequate for interactive debugging but lost on restart.
type MemoryTimeTraceStore struct {
	mu      sync.Mutex
	perRpc  map[RpcId][]TimeTraceEntry
	maxKept int
}

// NewMemoryTimeTraceStore constructs a MemoryTimeTraceStore keeping at
// most 64 entries per RpcId.
func NewMemoryTimeTraceStore() *MemoryTimeTraceStore {
	return &MemoryTimeTraceStore{perRpc: make(map[RpcId][]TimeTraceEntry), maxKept: 64}
}

func (s *MemoryTimeTraceStore) Append(id RpcId, from string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.perRpc[id], TimeTraceEntry{RpcId: id, From: from, Message: string(payload)})
	if len(entries) > s.maxKept {
		entries = entries[len(entries)-s.maxKept:]
	}
	s.perRpc[id] = entries
}

func (s *MemoryTimeTraceStore) Recent(id RpcId, limit int) []TimeTraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.perRpc[id]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]TimeTraceEntry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

func (s *MemoryTimeTraceStore) Close() error { return nil }

var timeTraceBucket = []byte("timetrace")

// BoltTimeTraceStore persists LOG_TIME_TRACE records to a bbolt database,
// grounded on the teacher's use of go.etcd.io/bbolt for its own on-disk
// state (pkg/routing/boltdb_routing_table.go): a single-file embedded KV
// store fits a low-write-rate diagnostic log without pulling in an
// external database dependency.
type BoltTimeTraceStore struct {
	db  *bbolt.DB
	seq uint64
}

// OpenBoltTimeTraceStore opens (creating if necessary) a bbolt database at
// path for LOG_TIME_TRACE persistence.
func OpenBoltTimeTraceStore(path string) (*BoltTimeTraceStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening time trace store %q", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(timeTraceBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating time trace bucket")
	}
	return &BoltTimeTraceStore{db: db}, nil
}

// key encodes (RpcId, monotonic sequence) so entries for the same RPC sort
// in arrival order under Cursor iteration. This is a local storage key, not
// a wire header, so it deliberately stays big-endian rather than following
// packet.go's little-endian wire format: bbolt's Cursor sorts keys by byte
// order, and only a big-endian encoding makes that byte order match numeric
// order.
func (s *BoltTimeTraceStore) key(id RpcId, seq uint64) []byte {
	var buf [8 + 8 + 8]byte
	binary.BigEndian.PutUint64(buf[0:8], id.ClientID)
	binary.BigEndian.PutUint64(buf[8:16], id.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], seq)
	return buf[:]
}

func (s *BoltTimeTraceStore) Append(id RpcId, from string, payload []byte) {
	s.seq++
	seq := s.seq
	value := []byte(fmt.Sprintf("%s: %s", from, payload))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(timeTraceBucket).Put(s.key(id, seq), value)
	})
	if err != nil {
		log.Warningf("time trace append failed: %v", err)
	}
}

func (s *BoltTimeTraceStore) Recent(id RpcId, limit int) []TimeTraceEntry {
	var entries []TimeTraceEntry
	prefix := s.key(id, 0)[:16]
	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(timeTraceBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			entries = append(entries, TimeTraceEntry{RpcId: id, Message: string(v)})
		}
		return nil
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func (s *BoltTimeTraceStore) Close() error { return s.db.Close() }

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
