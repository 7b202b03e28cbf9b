package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

const txMaxAttempts = 8

// DocStore implements store.Store on a single jsonb table:
//
//	CREATE TABLE documents (
//	    collection text NOT NULL,
//	    id         text NOT NULL,
//	    data       jsonb NOT NULL,
//	    version    bigint NOT NULL DEFAULT 1,
//	    updated_at timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (collection, id)
//	);
//
// Transactions run SERIALIZABLE; aborts with SQLSTATE 40001 are retried,
// matching the optimistic retry-on-conflict behavior of store.Memory.
type DocStore struct {
	pool *pgxpool.Pool
}

func NewDocStore(pool *pgxpool.Pool) *DocStore { return &DocStore{pool: pool} }

func (s *DocStore) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("transaction did not commit after %d attempts: %w",
		txMaxAttempts, errors.Join(store.ErrConflict, lastErr))
}

func (s *DocStore) runOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	var now time.Time
	if err := pgtx.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return err
	}

	t := &docTx{ctx: ctx, tx: pgtx, now: now.UTC()}
	if err := fn(t); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

type docTx struct {
	ctx context.Context
	tx  pgx.Tx
	now time.Time
}

func (t *docTx) Get(ref store.Ref, out any) error {
	var data []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		// predicate locking covers the missing row, so the read-set
		// semantics match store.Memory
		return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *docTx) Set(ref store.Ref, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data,
		    version = documents.version + 1,
		    updated_at = now()`,
		ref.Collection, ref.ID, data)
	return err
}

func (t *docTx) Delete(ref store.Ref) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID)
	return err
}

func (t *docTx) ArrayUnion(ref store.Ref, field string, elems ...any) error {
	add, err := json.Marshal(elems)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", ref, field, err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb), 1, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = jsonb_set(
		        documents.data,
		        ARRAY[$3::text],
		        coalesce(documents.data -> $3::text, '[]'::jsonb) || $4::jsonb),
		    version = documents.version + 1,
		    updated_at = now()`,
		ref.Collection, ref.ID, field, add)
	return err
}

func (t *docTx) ServerTime() time.Time { return t.now }
