// Package wal provides the opaque write-ahead-log sink the buffer pool
// holds a reference to but never calls itself. WAL is pass-through for
// this core: no crash-recovery protocol is implemented here.
package wal

import "sync/atomic"

// Manager is the log-sink contract the buffer pool is constructed with.
// It is never invoked by the buffer pool or the hash table directly;
// it exists so a caller above the core can thread a real WAL through
// the same handle the pool carries.
type Manager interface {
	AppendRecord(record []byte) (lsn uint64)
}

// NoopManager discards every record and hands back a monotonically
// increasing LSN, enough to let a caller stamp pages without a real
// log behind it.
type NoopManager struct {
	nextLSN uint64
}

func NewNoopManager() *NoopManager { return &NoopManager{} }

func (m *NoopManager) AppendRecord([]byte) uint64 {
	return atomic.AddUint64(&m.nextLSN, 1)
}
