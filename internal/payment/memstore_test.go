package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the package tests. It mirrors the
// SQL implementation's merge semantics: success is absorbing, mark_paid sets
// paid_at once, the callback trail only grows.
type memStore struct {
	mu           sync.Mutex
	transactions map[string]Transaction
	callbacks    []Callback
	sessions     map[string]Session
	nextCBID     int64

	failCreate error
}

func newMemStore() *memStore {
	return &memStore{
		transactions: map[string]Transaction{},
		sessions:     map[string]Session{},
	}
}

func (m *memStore) CreateTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		err := m.failCreate
		m.failCreate = nil
		return Transaction{}, err
	}
	if _, exists := m.transactions[tx.OrderID]; exists {
		return Transaction{}, ErrDuplicateOrder
	}
	tx.ID = uuid.New()
	tx.Status = StatusPending
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	m.transactions[tx.OrderID] = tx
	return tx, nil
}

func (m *memStore) GetByOrderID(_ context.Context, orderID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[orderID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (m *memStore) GetBySessionID(_ context.Context, sessionID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Transaction
	for _, tx := range m.transactions {
		if tx.UnitySessionID == sessionID {
			t := tx
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = &t
			}
		}
	}
	if found == nil {
		return Transaction{}, ErrNotFound
	}
	return *found, nil
}

func (m *memStore) MarkPaid(_ context.Context, orderID, paymentID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[orderID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	tx.Status = StatusSuccess
	if tx.PaidAt == nil {
		now := time.Now()
		tx.PaidAt = &now
	}
	if tx.PaymentID == "" && paymentID != "" {
		tx.PaymentID = paymentID
	}
	tx.UpdatedAt = time.Now()
	m.transactions[orderID] = tx
	return tx, nil
}

func (m *memStore) MarkFailed(_ context.Context, orderID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[orderID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status != StatusSuccess {
		tx.Status = StatusFailed
		tx.UpdatedAt = time.Now()
		m.transactions[orderID] = tx
	}
	return tx, nil
}

func (m *memStore) AppendCallback(_ context.Context, orderID string, cbType CallbackType, raw map[string]string) (Callback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[orderID]; !ok {
		return Callback{}, ErrNotFound
	}
	m.nextCBID++
	cb := Callback{
		ID:        m.nextCBID,
		OrderID:   orderID,
		Type:      cbType,
		RawData:   raw,
		Processed: true,
		CreatedAt: time.Now(),
	}
	m.callbacks = append(m.callbacks, cb)
	return cb, nil
}

func (m *memStore) ListCallbacks(_ context.Context, orderID string) ([]Callback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Callback
	for _, cb := range m.callbacks {
		if cb.OrderID == orderID {
			out = append(out, cb)
		}
	}
	return out, nil
}

func (m *memStore) CreateSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	s.IsActive = true
	m.sessions[s.SessionID] = s
	return s, nil
}

func (m *memStore) ExpireStaleSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsActive && s.ExpiresAt.Before(now) {
			s.IsActive = false
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}
