package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

var ErrNotFound = errors.New("storage: contract not found")

// ContractStore defines persistence operations for contracts. The snapshot
// travels with the contract as one frozen blob; nothing ever writes into a
// stored snapshot.
type ContractStore interface {
	SaveContract(ctx context.Context, c *models.Contract) error
	UpdateContract(ctx context.Context, c *models.Contract) error
	ContractByID(ctx context.Context, id uuid.UUID) (models.Contract, error)
	ContractByOrder(ctx context.Context, orderID uuid.UUID) (models.Contract, error)

	// ExpiredPendingDeposits lists contracts still awaiting a deposit whose
	// deadline has passed, oldest first. Used by the expiry sweep.
	ExpiredPendingDeposits(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error)

	// ExpiredFullPayments lists DEPOSIT_PAID contracts whose full-payment due
	// date has passed, oldest first. Used by the expiry sweep.
	ExpiredFullPayments(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]*models.Contract
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[uuid.UUID]*models.Contract)}
}

func (m *MemoryStore) SaveContract(ctx context.Context, c *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateContract(ctx context.Context, c *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ContractByID(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return models.Contract{}, ErrNotFound
	}
	return *c, nil
}

func (m *MemoryStore) ContractByOrder(ctx context.Context, orderID uuid.UUID) (models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contracts {
		if c.OrderID == orderID {
			return *c, nil
		}
	}
	return models.Contract{}, ErrNotFound
}

func (m *MemoryStore) ExpiredPendingDeposits(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error) {
	return m.expiredWhere(limit, func(c *models.Contract) bool {
		return c.Status == models.ContractPendingDeposit && c.DepositDeadline.Before(asOf)
	})
}

func (m *MemoryStore) ExpiredFullPayments(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error) {
	return m.expiredWhere(limit, func(c *models.Contract) bool {
		return c.Status == models.ContractDepositPaid && c.FullPaymentDue.Before(asOf)
	})
}

func (m *MemoryStore) expiredWhere(limit int, match func(*models.Contract) bool) ([]models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Contract
	for _, c := range m.contracts {
		if match(c) {
			out = append(out, *c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
