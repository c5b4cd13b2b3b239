package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/fleet-pricing/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying handle so the ledger and catalog can share one
// connection pool.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) SaveContract(ctx context.Context, c *models.Contract) error {
	snapshot, err := json.Marshal(c.Snapshot)
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO contracts (id, order_id, status, snapshot, payment_intent_id, trip_date,
		                       deposit_deadline, signing_deadline, full_payment_due, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.OrderID, c.Status, snapshot, c.PaymentIntentID, c.TripDate,
		c.DepositDeadline, c.SigningDeadline, c.FullPaymentDue, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert contract: %w", err)
	}
	return nil
}

// UpdateContract writes status and payment linkage only. The snapshot column
// is deliberately absent from the statement: it is frozen at creation.
func (p *PostgresStore) UpdateContract(ctx context.Context, c *models.Contract) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE contracts
		SET status = $1, payment_intent_id = $2, updated_at = now()
		WHERE id = $3`,
		c.Status, c.PaymentIntentID, c.ID)
	if err != nil {
		return fmt.Errorf("storage: update contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: update contract rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ContractByID(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, order_id, status, snapshot, payment_intent_id, trip_date,
		       deposit_deadline, signing_deadline, full_payment_due, created_at, updated_at
		FROM contracts WHERE id = $1`, id))
}

func (p *PostgresStore) ContractByOrder(ctx context.Context, orderID uuid.UUID) (models.Contract, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, order_id, status, snapshot, payment_intent_id, trip_date,
		       deposit_deadline, signing_deadline, full_payment_due, created_at, updated_at
		FROM contracts WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`, orderID))
}

func (p *PostgresStore) ExpiredPendingDeposits(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error) {
	return p.queryContracts(ctx, `
		SELECT id, order_id, status, snapshot, payment_intent_id, trip_date,
		       deposit_deadline, signing_deadline, full_payment_due, created_at, updated_at
		FROM contracts
		WHERE status = 'PENDING_DEPOSIT' AND deposit_deadline < $1
		ORDER BY deposit_deadline
		LIMIT $2`, asOf, limit)
}

func (p *PostgresStore) ExpiredFullPayments(ctx context.Context, asOf time.Time, limit int) ([]models.Contract, error) {
	return p.queryContracts(ctx, `
		SELECT id, order_id, status, snapshot, payment_intent_id, trip_date,
		       deposit_deadline, signing_deadline, full_payment_due, created_at, updated_at
		FROM contracts
		WHERE status = 'DEPOSIT_PAID' AND full_payment_due < $1
		ORDER BY full_payment_due
		LIMIT $2`, asOf, limit)
}

func (p *PostgresStore) queryContracts(ctx context.Context, q string, args ...any) ([]models.Contract, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query expired contracts: %w", err)
	}
	defer rows.Close()

	var out []models.Contract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) scanOne(row *sql.Row) (models.Contract, error) {
	c, err := scanContract(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contract{}, ErrNotFound
	}
	return c, err
}

func scanContract(scan func(...any) error) (models.Contract, error) {
	var c models.Contract
	var snapshot []byte
	var status string
	err := scan(&c.ID, &c.OrderID, &status, &snapshot, &c.PaymentIntentID, &c.TripDate,
		&c.DepositDeadline, &c.SigningDeadline, &c.FullPaymentDue, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Contract{}, err
	}
	c.Status = models.ContractStatus(status)
	if err := json.Unmarshal(snapshot, &c.Snapshot); err != nil {
		return models.Contract{}, fmt.Errorf("storage: unmarshal snapshot: %w", err)
	}
	return c, nil
}
