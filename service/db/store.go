package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daverbj/solana-llm-integration/service/metrics"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS airdrops (
    signature           TEXT PRIMARY KEY,
    address             TEXT NOT NULL,
    requested_lamports  BIGINT NOT NULL,
    initial_balance     BIGINT NOT NULL,
    new_balance         BIGINT NOT NULL,
    delta               BIGINT NOT NULL,
    confirmation_status TEXT NOT NULL,
    source              TEXT NOT NULL DEFAULT 'api',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS airdrops_address_created_at_idx ON airdrops (address, created_at DESC);
`

// Store records completed airdrops. The airdrop pipeline itself is stateless;
// this ledger exists for history queries only.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Airdrop is a row of the airdrop ledger.
type Airdrop struct {
	Signature          string    `json:"signature"`
	Address            string    `json:"address"`
	RequestedLamports  int64     `json:"requested_lamports"`
	InitialBalance     int64     `json:"initial_balance"`
	NewBalance         int64     `json:"new_balance"`
	Delta              int64     `json:"delta"`
	ConfirmationStatus string    `json:"confirmation_status"`
	Source             string    `json:"source"`
	CreatedAt          time.Time `json:"created_at"`
}

// ListAirdropsParams contains pagination parameters.
type ListAirdropsParams struct {
	Address string
	Limit   int32
	Offset  int32
}

// EnsureSchema creates the airdrops table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordAirdrop inserts a completed airdrop. Recording the same signature twice
// is a no-op and returns the existing row.
func (s *Store) RecordAirdrop(ctx context.Context, result *solana.AirdropResult, source string) (*Airdrop, error) {
	if source == "" {
		source = "api"
	}

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO airdrops (
			signature, address, requested_lamports, initial_balance,
			new_balance, delta, confirmation_status, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature) DO UPDATE SET signature = EXCLUDED.signature
		RETURNING signature, address, requested_lamports, initial_balance,
			new_balance, delta, confirmation_status, source, created_at`,
		result.Signature,
		result.Address,
		int64(result.RequestedLamports),
		int64(result.InitialBalance),
		int64(result.NewBalance),
		result.Delta,
		result.ConfirmationStatus,
		source,
	)
	a, err := scanAirdrop(row)
	s.record("insert", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to record airdrop: %w", err)
	}
	return a, nil
}

// GetAirdrop returns the airdrop with the given signature, or ErrNotFound.
func (s *Store) GetAirdrop(ctx context.Context, signature string) (*Airdrop, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT signature, address, requested_lamports, initial_balance,
			new_balance, delta, confirmation_status, source, created_at
		FROM airdrops WHERE signature = $1`, signature)
	a, err := scanAirdrop(row)
	if errors.Is(err, pgx.ErrNoRows) {
		s.record("select", start, nil)
		return nil, ErrNotFound
	}
	s.record("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get airdrop: %w", err)
	}
	return a, nil
}

// ListAirdropsByAddress returns airdrops to an address, newest first.
// An empty address lists all airdrops.
func (s *Store) ListAirdropsByAddress(ctx context.Context, params ListAirdropsParams) ([]*Airdrop, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT signature, address, requested_lamports, initial_balance,
			new_balance, delta, confirmation_status, source, created_at
		FROM airdrops
		WHERE $1 = '' OR address = $1
		ORDER BY created_at DESC, signature
		LIMIT $2 OFFSET $3`,
		params.Address, params.Limit, params.Offset,
	)
	if err != nil {
		s.record("select", start, err)
		return nil, fmt.Errorf("failed to list airdrops: %w", err)
	}
	defer rows.Close()

	var out []*Airdrop
	for rows.Next() {
		a, err := scanAirdrop(rows)
		if err != nil {
			s.record("select", start, err)
			return nil, fmt.Errorf("failed to scan airdrop: %w", err)
		}
		out = append(out, a)
	}
	err = rows.Err()
	s.record("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list airdrops: %w", err)
	}
	return out, nil
}

func scanAirdrop(row pgx.Row) (*Airdrop, error) {
	var a Airdrop
	err := row.Scan(
		&a.Signature,
		&a.Address,
		&a.RequestedLamports,
		&a.InitialBalance,
		&a.NewBalance,
		&a.Delta,
		&a.ConfirmationStatus,
		&a.Source,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, "airdrops", time.Since(start).Seconds(), err)
	}
}
