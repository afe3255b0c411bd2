package manager

import (
	"sync"
	"time"
)

// NonceManager issues action nonces. The exchange rejects replayed
// nonces within the signature validity window, so issuance is
// serialized and strictly increasing for the life of the process.
//
// Nonce layout follows the exchange convention: UTC milliseconds
// shifted by three digits, leaving room for a per-millisecond counter.
type NonceManager struct {
	mu   sync.Mutex
	last uint64
}

func NewNonceManager() *NonceManager {
	return &NonceManager{}
}

// Next returns a fresh nonce. Two consecutive calls never return the
// same value, even within the same millisecond.
func (m *NonceManager) Next() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uint64(time.Now().UnixMilli()) * 1000
	if nonce <= m.last {
		nonce = m.last + 1
	}
	m.last = nonce
	return nonce
}
