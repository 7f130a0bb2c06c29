// Package memory provides in-process storage for local runs and tests.
// Data lives for the life of the process.
package memory

import (
	"context"
	"sync"

	"stockflow/internal/core/tx"
)

var _ tx.ReadOnlyManager = (*TxManager)(nil)

type txKey struct{}

// snapshotter is a store whose state can be captured and put back.
type snapshotter interface {
	snapshot() (restore func())
}

// TxManager serializes transactions over the stores registered with it.
// When fn fails, every registered store is restored to its state before fn.
type TxManager struct {
	mu     sync.Mutex
	stores []snapshotter
}

// NewTxManager creates a transaction manager with no stores.
func NewTxManager() *TxManager {
	return &TxManager{}
}

func (m *TxManager) register(s snapshotter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, s)
}

// RunInTransaction executes fn under the manager lock. Nested calls reuse
// the running transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.snapshot())
	}
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// ReadOnly executes fn without snapshotting.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// InTransaction reports whether ctx carries a running transaction.
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}
