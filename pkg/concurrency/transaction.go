// Package concurrency ties server clients to the work they run against the
// database. Each client has at most one transaction running at a given time,
// so the clientId is a unique identifier for both the Transaction and its
// client connection.
package concurrency

import (
	"sync"

	"github.com/google/uuid"
)

// Transaction identifies one client's unit of work.
type Transaction struct {
	clientId uuid.UUID
	mtx      sync.RWMutex
}

// NewTransaction begins a transaction on behalf of the given client.
func NewTransaction(clientId uuid.UUID) *Transaction {
	return &Transaction{clientId: clientId}
}

func (t *Transaction) WLock() {
	t.mtx.Lock()
}

func (t *Transaction) WUnlock() {
	t.mtx.Unlock()
}

func (t *Transaction) RLock() {
	t.mtx.RLock()
}

func (t *Transaction) RUnlock() {
	t.mtx.RUnlock()
}

func (t *Transaction) GetClientID() (clientId uuid.UUID) {
	return t.clientId
}
