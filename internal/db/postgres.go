package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/clearing-engine/internal/settlement"
)

// PostgresStore is the audit sink for settlement cycles. The in-memory
// journal stays canonical; this store exists so operators can query
// historical cycles and reconcile against counterparties offline.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Settlement Audit Store")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Settlement Audit Schema initialized")
	return nil
}

// SaveCycleReport persists one settlement cycle — obligations, clearing
// outcomes and margin requirements — in a single transaction.
func (s *PostgresStore) SaveCycleReport(ctx context.Context, report settlement.CycleReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertCycleSQL := `
		INSERT INTO settlement_cycles
		(cycle_id, trade_count, obligation_count, journal_hash, compression_ratio, gross_reduction)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cycle_id) DO NOTHING;
	`
	_, err = tx.Exec(ctx, insertCycleSQL,
		report.CycleID,
		report.Efficiency.TradeCount,
		report.Efficiency.ObligationCount,
		fmt.Sprintf("%016x", report.JournalHash),
		report.Efficiency.CompressionRatio,
		report.Efficiency.GrossReduction,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement_cycles: %v", err)
	}

	insertOutcomeSQL := `
		INSERT INTO clearing_outcomes
		(cycle_id, symbol_hash, deliverer_id, receiver_id, net_quantity, net_payment, trade_count, success, fail_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, outcome := range report.Outcomes {
		ob := outcome.Obligation
		_, err = tx.Exec(ctx, insertOutcomeSQL,
			report.CycleID,
			int64(ob.SymbolHash),
			int64(ob.DelivererID),
			int64(ob.ReceiverID),
			int64(ob.NetQuantity),
			ob.NetPayment,
			int32(ob.TradeCount),
			outcome.Success,
			outcome.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert clearing outcome: %v", err)
		}
	}

	insertMarginSQL := `
		INSERT INTO margin_requirements
		(cycle_id, account_id, initial_margin, variation_margin, stress_margin, total_margin, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for _, req := range report.Margins {
		_, err = tx.Exec(ctx, insertMarginSQL,
			report.CycleID,
			int64(req.AccountID),
			req.InitialMargin,
			req.VariationMargin,
			req.StressMargin,
			req.TotalMargin,
			fmt.Sprintf("%016x", req.ContentHash),
		)
		if err != nil {
			return fmt.Errorf("failed to insert margin requirement: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// SaveJournalEntries appends replay steps to the durable journal
// mirror. Steps are keyed by sequence, so replaying the same range is
// idempotent.
func (s *PostgresStore) SaveJournalEntries(ctx context.Context, steps []settlement.ReplayStep) error {
	sql := `
		INSERT INTO journal_entries (sequence, timestamp_ns, event_kind, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sequence) DO NOTHING;
	`
	for _, step := range steps {
		_, err := s.pool.Exec(ctx, sql,
			int64(step.Sequence),
			int64(step.TimestampNS),
			int16(step.EventKind),
			fmt.Sprintf("%016x", step.ContentHash),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// StoredAccount is a clearing account row loaded at startup.
type StoredAccount struct {
	AccountID uint64
	Balance   int64
}

// LoadAccounts warm-loads registered clearing accounts so members
// survive an engine restart.
func (s *PostgresStore) LoadAccounts(ctx context.Context) ([]StoredAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT account_id, balance FROM clearing_accounts;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []StoredAccount
	for rows.Next() {
		var id, balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, StoredAccount{AccountID: uint64(id), Balance: balance})
	}
	return accounts, rows.Err()
}

// UpsertAccount mirrors an account registration to the store.
func (s *PostgresStore) UpsertAccount(ctx context.Context, accountID uint64, balance int64) error {
	sql := `
		INSERT INTO clearing_accounts (account_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, int64(accountID), balance)
	return err
}
