package memory

import (
	"context"
)

// txState marks an open transaction. The store's write lock is held
// for the transaction's whole duration, so joining goroutines never
// race; key locks taken during the transaction are released when it
// ends.
type txState struct {
	snap     *snapshot
	cleanups []func()
}

type txKey struct{}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// TxManager implements tx.Manager over the store with snapshot and
// restore semantics: on error every change made inside the transaction
// is rolled back.
type TxManager struct {
	s *Store
}

// RunInTransaction executes fn atomically. Nested calls join the
// enclosing transaction; an error from any level rolls back the whole
// thing.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	m.s.mu.Lock()
	st := &txState{snap: m.s.takeSnapshot()}
	ctx = context.WithValue(ctx, txKey{}, st)

	err := fn(ctx)
	if err != nil {
		m.s.restore(st.snap)
	}

	for i := len(st.cleanups) - 1; i >= 0; i-- {
		st.cleanups[i]()
	}
	m.s.mu.Unlock()

	return err
}

// ReadOnly executes fn without write isolation: each repository read
// takes the read lock on its own.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
