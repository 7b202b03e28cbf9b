package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const maxAttempts = 8

// Memory is an in-process Store with the same optimistic-commit semantics as
// the Postgres-backed implementation: reads record the document version they
// observed, the commit validates the whole read-set under a global lock, and
// conflicting transactions are re-run. It backs the test suite and small
// single-process deployments.
type Memory struct {
	mu   sync.Mutex
	docs map[Ref][]byte
	vers map[Ref]int64 // survives deletes so delete/recreate still conflicts
	now  time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[Ref][]byte),
		vers: make(map[Ref]int64),
	}
}

func (s *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := s.begin()
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
	}
	return fmt.Errorf("transaction did not commit after %d attempts: %w", maxAttempts, ErrConflict)
}

func (s *Memory) begin() *memTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.now) {
		now = s.now.Add(time.Microsecond)
	}
	return &memTx{
		store: s,
		reads: make(map[Ref]int64),
		now:   now,
	}
}

func (s *Memory) commit(t *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, ver := range t.reads {
		if s.vers[ref] != ver {
			return false
		}
	}
	for _, op := range t.ops {
		switch op.kind {
		case opSet:
			s.docs[op.ref] = op.data
		case opDelete:
			delete(s.docs, op.ref)
		case opUnion:
			s.docs[op.ref] = unionField(s.docs[op.ref], op.field, op.elems)
		}
		s.vers[op.ref]++
	}
	if t.now.After(s.now) {
		s.now = t.now
	}
	return true
}

type opKind int

const (
	opSet opKind = iota
	opDelete
	opUnion
)

type memOp struct {
	ref   Ref
	kind  opKind
	data  []byte
	field string
	elems []json.RawMessage
}

type memTx struct {
	store *Memory
	reads map[Ref]int64
	ops   []memOp
	now   time.Time
}

func (t *memTx) Get(ref Ref, out any) error {
	// read-your-writes: the latest buffered Set or Delete wins
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		if op.ref != ref {
			continue
		}
		switch op.kind {
		case opSet:
			return json.Unmarshal(op.data, out)
		case opDelete:
			return fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
	}

	t.store.mu.Lock()
	data, ok := t.store.docs[ref]
	t.reads[ref] = t.store.vers[ref]
	t.store.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return json.Unmarshal(data, out)
}

func (t *memTx) Set(ref Ref, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	t.ops = append(t.ops, memOp{ref: ref, kind: opSet, data: data})
	return nil
}

func (t *memTx) Delete(ref Ref) error {
	t.ops = append(t.ops, memOp{ref: ref, kind: opDelete})
	return nil
}

func (t *memTx) ArrayUnion(ref Ref, field string, elems ...any) error {
	raw := make([]json.RawMessage, 0, len(elems))
	for _, e := range elems {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", ref, field, err)
		}
		raw = append(raw, b)
	}
	t.ops = append(t.ops, memOp{ref: ref, kind: opUnion, field: field, elems: raw})
	return nil
}

func (t *memTx) ServerTime() time.Time { return t.now }

func unionField(data []byte, field string, elems []json.RawMessage) []byte {
	m := map[string]json.RawMessage{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &m)
	}
	var list []json.RawMessage
	if cur, ok := m[field]; ok {
		_ = json.Unmarshal(cur, &list)
	}
	list = append(list, elems...)
	merged, _ := json.Marshal(list)
	m[field] = merged
	out, _ := json.Marshal(m)
	return out
}
