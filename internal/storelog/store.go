package storelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/apperr"
)

// Store is a single-writer, append-only JSON-lines log over values of
// type T, with an in-memory map rebuilt by replay. One Store instance
// owns its backing file exclusively for the process's lifetime; callers
// must serialize concurrent mutation externally.
//
// The in-memory index (ids in insertion order + a position map, values
// keyed by id) keeps insert at O(1) overwrite and removal at O(n)
// compaction, with deterministic insertion-ordered iteration (ordering
// matters to callers like childrenOf/attachmentsOf).
type Store[T Record] struct {
	log   *zap.Logger
	codec Codec[T]

	path string
	file *os.File

	mu     sync.Mutex
	ids    []string
	pos    map[string]int
	values map[string]T
}

// Init opens (or creates) dir/filename as a log store for T. If the file
// does not exist, it is created with a fresh descriptor record. If it
// exists, it is replayed in full to rebuild the in-memory map.
func Init[T Record](dir, filename string, codec Codec[T], log *zap.Logger) (*Store[T], error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("storelog").With(zap.String("valueType", codec.ValueType()))

	path := filepath.Join(dir, filename)
	s := &Store[T]{
		log:    log,
		codec:  codec,
		path:   path,
		ids:    make([]string, 0),
		pos:    make(map[string]int),
		values: make(map[string]T),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.IO, "create db dir", err)
	}

	_, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		if err := s.create(); err != nil {
			return nil, err
		}
	case statErr != nil:
		return nil, apperr.Wrap(apperr.IO, "stat log file", statErr)
	default:
		if err := s.replay(); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "open log file for append", err)
	}
	s.file = f

	return s, nil
}

// create writes a fresh descriptor record to a brand-new log file.
func (s *Store[T]) create() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.IO, "create log file", err)
	}
	defer f.Close()

	desc := map[string]any{
		"__recordType": recordTypeDescriptor,
		"version":      schemaVersion,
		"valueType":    s.codec.ValueType(),
	}
	if err := writeLine(f, desc); err != nil {
		return apperr.Wrap(apperr.IO, "write descriptor", err)
	}
	s.log.Info("created new log file")
	return nil
}

// replay reads every line of an existing log file in order and rebuilds
// the in-memory map. Any structural problem is a hard, fatal error — the
// store refuses to serve a log it cannot fully reconstruct.
func (s *Store[T]) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return apperr.Wrap(apperr.IO, "open log file for replay", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	sawDescriptor := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return apperr.Wrap(apperr.RecordShape, fmt.Sprintf("malformed JSON at line %d", lineNo), err)
		}

		rt, _ := rec["__recordType"].(string)
		switch rt {
		case recordTypeDescriptor:
			if sawDescriptor {
				return apperr.New(apperr.FormatVersion, fmt.Sprintf("duplicate descriptor at line %d", lineNo))
			}
			if err := s.checkDescriptor(rec); err != nil {
				return err
			}
			sawDescriptor = true

		case recordTypeEntry:
			if !sawDescriptor {
				return apperr.New(apperr.FormatVersion, "entry before descriptor")
			}
			if err := s.applyEntry(rec); err != nil {
				return err
			}

		case recordTypeUpdate:
			if !sawDescriptor {
				return apperr.New(apperr.FormatVersion, "update before descriptor")
			}
			if err := s.applyUpdateRecord(rec); err != nil {
				return err
			}

		case recordTypeDelete:
			if !sawDescriptor {
				return apperr.New(apperr.FormatVersion, "delete before descriptor")
			}
			if err := s.applyDeleteRecord(rec); err != nil {
				return err
			}

		default:
			return apperr.New(apperr.RecordShape, fmt.Sprintf("unknown __recordType %q at line %d", rt, lineNo))
		}
	}
	if err := sc.Err(); err != nil {
		return apperr.Wrap(apperr.IO, "scan log file", err)
	}
	if !sawDescriptor {
		return apperr.New(apperr.FormatVersion, "missing descriptor record")
	}

	s.log.Info("replay complete", zap.Int("records", len(s.ids)))
	return nil
}

func (s *Store[T]) checkDescriptor(rec map[string]any) error {
	versionF, ok := rec["version"].(float64)
	if !ok {
		return apperr.New(apperr.RecordShape, "descriptor missing version")
	}
	if int(versionF) != schemaVersion {
		return apperr.New(apperr.FormatVersion, fmt.Sprintf("unsupported descriptor version %v", versionF))
	}
	valueType, ok := rec["valueType"].(string)
	if !ok {
		return apperr.New(apperr.RecordShape, "descriptor missing valueType")
	}
	if valueType != s.codec.ValueType() {
		return apperr.New(apperr.FormatVersion, fmt.Sprintf("valueType mismatch: file has %q, expected %q", valueType, s.codec.ValueType()))
	}
	return nil
}

func (s *Store[T]) applyEntry(rec map[string]any) error {
	fields := withoutKey(rec, "__recordType")
	v, err := s.codec.Unmarshal(fields)
	if err != nil {
		return err
	}
	id := v.RecordID()
	if _, exists := s.values[id]; exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("duplicate entry id %q", id))
	}
	s.insert(id, v)
	return nil
}

func (s *Store[T]) applyUpdateRecord(rec map[string]any) error {
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		return apperr.New(apperr.RecordShape, "update record missing id")
	}
	cur, exists := s.values[id]
	if !exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("update for unknown id %q", id))
	}
	fields := withoutKey(withoutKey(rec, "__recordType"), "id")
	next, err := s.codec.Apply(cur, fields)
	if err != nil {
		return err
	}
	s.values[id] = next
	return nil
}

func (s *Store[T]) applyDeleteRecord(rec map[string]any) error {
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		return apperr.New(apperr.RecordShape, "delete record missing id")
	}
	if _, exists := s.values[id]; !exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("delete for unknown id %q", id))
	}
	s.remove(id)
	return nil
}

// Add appends an entry record for v and inserts it into the map. v's id
// must not already be present.
func (s *Store[T]) Add(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := v.RecordID()
	if _, exists := s.values[id]; exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("id %q already present", id))
	}

	fields, err := s.codec.Marshal(v)
	if err != nil {
		return err
	}
	rec := withKey(fields, "__recordType", recordTypeEntry)
	if err := writeLine(s.file, rec); err != nil {
		return apperr.Wrap(apperr.IO, "append entry", err)
	}

	s.insert(id, v)
	return nil
}

// Update diffs v against the currently stored value for its id, appends
// an update record for the changed fields, and applies it in memory.
// An empty diff is rejected.
func (s *Store[T]) Update(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := v.RecordID()
	cur, exists := s.values[id]
	if !exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("update for unknown id %q", id))
	}

	diff, err := s.codec.Diff(cur, v)
	if err != nil {
		return err
	}
	if len(diff) == 0 {
		return apperr.New(apperr.Invariant, fmt.Sprintf("update for id %q is a no-op", id))
	}

	// Apply is validated before the durable append, so a codec bug can
	// never leave an update record on disk that replay cannot apply.
	next, err := s.codec.Apply(cur, diff)
	if err != nil {
		return err
	}

	rec := withKey(withKey(diff, "id", id), "__recordType", recordTypeUpdate)
	if err := writeLine(s.file, rec); err != nil {
		return apperr.Wrap(apperr.IO, "append update", err)
	}

	s.values[id] = next
	return nil
}

// Remove appends a delete record for id and drops it from the map.
func (s *Store[T]) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[id]; !exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("remove for unknown id %q", id))
	}

	rec := map[string]any{"__recordType": recordTypeDelete, "id": id}
	if err := writeLine(s.file, rec); err != nil {
		return apperr.Wrap(apperr.IO, "append delete", err)
	}

	s.remove(id)
	return nil
}

// Get returns the current value for id, if present.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	return v, ok
}

// Iter returns all current values, in insertion order.
func (s *Store[T]) Iter() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.values[id]
	}
	return out
}

// Len reports the number of values currently held.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// CompactTo writes a fresh log containing only a descriptor plus one
// entry record per currently-live value, in insertion order, to a new
// file at path. It does not touch the Store's own open file; callers
// (e.g. cmd/logtool) are expected to close the Store and replace the
// original file with the compacted one themselves.
func (s *Store[T]) CompactTo(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.IO, "create compacted log file", err)
	}
	defer f.Close()

	desc := map[string]any{
		"__recordType": recordTypeDescriptor,
		"version":      schemaVersion,
		"valueType":    s.codec.ValueType(),
	}
	if err := writeLine(f, desc); err != nil {
		return apperr.Wrap(apperr.IO, "write compacted descriptor", err)
	}

	for _, id := range s.ids {
		fields, err := s.codec.Marshal(s.values[id])
		if err != nil {
			return err
		}
		rec := withKey(fields, "__recordType", recordTypeEntry)
		if err := writeLine(f, rec); err != nil {
			return apperr.Wrap(apperr.IO, "write compacted entry", err)
		}
	}
	return nil
}

// Close releases the underlying file handle.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// insert and remove maintain the ordered-ids/positions index. Callers
// must hold s.mu.
func (s *Store[T]) insert(id string, v T) {
	s.values[id] = v
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
}

func (s *Store[T]) remove(id string) {
	idx, ok := s.pos[id]
	if !ok {
		return
	}
	delete(s.values, id)
	delete(s.pos, id)
	s.ids = append(s.ids[:idx], s.ids[idx+1:]...)
	for i := idx; i < len(s.ids); i++ {
		s.pos[s.ids[i]] = i
	}
}

func writeLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == key {
			continue
		}
		out[k] = v
	}
	return out
}

func withKey(m map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
